package filesapi

import (
	"context"
	"io"
	stdmultipart "mime/multipart"
)

// MultipartFile — файл, полученный приложением из входящего multipart-запроса.
type MultipartFile interface {
	// Filename возвращает исходное имя файла.
	Filename() string
	// ContentType возвращает MIME-тип (может быть пустым).
	ContentType() string
	// Open открывает содержимое файла.
	Open() (io.ReadCloser, error)
}

// fileHeaderFile адаптирует *multipart.FileHeader к MultipartFile.
type fileHeaderFile struct {
	header *stdmultipart.FileHeader
}

func (f fileHeaderFile) Filename() string    { return f.header.Filename }
func (f fileHeaderFile) ContentType() string { return f.header.Header.Get("Content-Type") }
func (f fileHeaderFile) Open() (io.ReadCloser, error) {
	return f.header.Open()
}

// FromFileHeaders адаптирует файлы из (*http.Request).MultipartForm к MultipartFile.
func FromFileHeaders(headers []*stdmultipart.FileHeader) []MultipartFile {
	files := make([]MultipartFile, 0, len(headers))
	for _, h := range headers {
		if h != nil {
			files = append(files, fileHeaderFile{header: h})
		}
	}
	return files
}

// UploadMultipartFiles загружает files в корневой путь без метаданных.
// onFinish вызывается только при успешном ответе с непустым списком файлов.
func (c *Client) UploadMultipartFiles(ctx context.Context, files []MultipartFile, onFinish func([]FileInfo)) error {
	return c.UploadMultipartFilesWithPath(ctx, "", files, nil, onFinish)
}

// UploadMultipartFilesWithPath загружает files в path с метаданными metadata.
// Пустой список файлов — *UploadError до сетевого вызова. При ошибке onFinish не вызывается.
func (c *Client) UploadMultipartFilesWithPath(
	ctx context.Context,
	path string,
	files []MultipartFile,
	metadata map[string]string,
	onFinish func([]FileInfo),
) error {
	if len(files) == 0 {
		return newUploadError("список файлов пуст", nil)
	}

	opened := make([]io.ReadCloser, 0, len(files))
	defer func() {
		for _, rc := range opened {
			_ = rc.Close()
		}
	}()

	b := NewUploadRequestBuilder().Path(path).AddMetadataMap(metadata)
	for _, f := range files {
		content, err := f.Open()
		if err != nil {
			return newUploadError("не удалось открыть multipart-файл "+f.Filename(), err)
		}
		opened = append(opened, content)

		data, err := NewFileDataBuilder().
			Filename(f.Filename()).
			ContentType(f.ContentType()).
			Content(content).
			Build()
		if err != nil {
			return err
		}
		b.AddFile(data)
	}

	req, err := b.Build()
	if err != nil {
		return err
	}

	resp, err := c.UploadFiles(ctx, req)
	if err != nil {
		return err
	}

	if resp.Success() && len(resp.uploadedFiles) > 0 && onFinish != nil {
		onFinish(resp.UploadedFiles())
	}
	return nil
}
