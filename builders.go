package filesapi

import (
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/ahmtvc/scisbo-files-api-wrapper/internal/multipart"
)

// FileDataBuilder собирает FileData.
type FileDataBuilder struct {
	filename    string
	contentType string
	content     io.Reader
}

// NewFileDataBuilder создаёт пустой builder.
func NewFileDataBuilder() *FileDataBuilder {
	return &FileDataBuilder{}
}

// Filename задаёт имя файла.
func (b *FileDataBuilder) Filename(filename string) *FileDataBuilder {
	b.filename = filename
	return b
}

// ContentType задаёт MIME-тип. Пустое значение — application/octet-stream.
func (b *FileDataBuilder) ContentType(contentType string) *FileDataBuilder {
	b.contentType = contentType
	return b
}

// Content задаёт поток содержимого.
func (b *FileDataBuilder) Content(content io.Reader) *FileDataBuilder {
	b.content = content
	return b
}

// Build проверяет инварианты и возвращает FileData.
func (b *FileDataBuilder) Build() (FileData, error) {
	if strings.TrimSpace(b.filename) == "" {
		return FileData{}, newConfigurationError("имя файла не задано")
	}
	if b.content == nil {
		return FileData{}, newConfigurationError("содержимое файла " + b.filename + " не задано")
	}
	contentType := strings.TrimSpace(b.contentType)
	if contentType == "" {
		contentType = multipart.DefaultContentType
	}
	return FileData{
		filename:    b.filename,
		contentType: contentType,
		content:     b.content,
	}, nil
}

// UploadRequestBuilder собирает FileUploadRequest.
type UploadRequestBuilder struct {
	path         string
	files        []FileData
	metadata     map[string]string
	metadataKeys []string
}

// NewUploadRequestBuilder создаёт builder с пустым путём.
func NewUploadRequestBuilder() *UploadRequestBuilder {
	return &UploadRequestBuilder{metadata: make(map[string]string)}
}

// Path задаёт целевой путь.
func (b *UploadRequestBuilder) Path(path string) *UploadRequestBuilder {
	b.path = path
	return b
}

// AddFile добавляет файл. Нулевое значение FileData пропускается.
func (b *UploadRequestBuilder) AddFile(file FileData) *UploadRequestBuilder {
	if file.content != nil {
		b.files = append(b.files, file)
	}
	return b
}

// AddFiles добавляет несколько файлов в заданном порядке.
func (b *UploadRequestBuilder) AddFiles(files []FileData) *UploadRequestBuilder {
	for _, f := range files {
		b.AddFile(f)
	}
	return b
}

// AddMetadata добавляет пару метаданных. Пустой ключ пропускается;
// повторный ключ заменяет значение, сохраняя исходную позицию.
func (b *UploadRequestBuilder) AddMetadata(key, value string) *UploadRequestBuilder {
	if key == "" {
		return b
	}
	if _, ok := b.metadata[key]; !ok {
		b.metadataKeys = append(b.metadataKeys, key)
	}
	b.metadata[key] = value
	return b
}

// AddMetadataMap добавляет все пары из metadata в порядке сортировки ключей. nil допустим.
func (b *UploadRequestBuilder) AddMetadataMap(metadata map[string]string) *UploadRequestBuilder {
	for _, k := range slices.Sorted(maps.Keys(metadata)) {
		b.AddMetadata(k, metadata[k])
	}
	return b
}

// Build проверяет, что добавлен хотя бы один файл, и возвращает запрос.
func (b *UploadRequestBuilder) Build() (*FileUploadRequest, error) {
	if len(b.files) == 0 {
		return nil, newConfigurationError("в запросе на загрузку должен быть хотя бы один файл")
	}

	files := make([]FileData, len(b.files))
	copy(files, b.files)
	return &FileUploadRequest{
		path:         b.path,
		files:        files,
		metadata:     maps.Clone(b.metadata),
		metadataKeys: slices.Clone(b.metadataKeys),
	}, nil
}

// AccessTokenRequestBuilder собирает AccessTokenRequest.
type AccessTokenRequestBuilder struct {
	fileIDs  []string
	userID   *string
	duration time.Duration
}

// NewAccessTokenRequestBuilder создаёт builder со сроком действия 15 минут.
func NewAccessTokenRequestBuilder() *AccessTokenRequestBuilder {
	return &AccessTokenRequestBuilder{duration: DefaultAccessTokenDuration}
}

// AddFileID добавляет идентификатор файла. Пустые и пробельные значения пропускаются.
func (b *AccessTokenRequestBuilder) AddFileID(fileID string) *AccessTokenRequestBuilder {
	if strings.TrimSpace(fileID) != "" {
		b.fileIDs = append(b.fileIDs, fileID)
	}
	return b
}

// AddFileIDs добавляет несколько идентификаторов. nil допустим.
func (b *AccessTokenRequestBuilder) AddFileIDs(fileIDs []string) *AccessTokenRequestBuilder {
	for _, id := range fileIDs {
		b.AddFileID(id)
	}
	return b
}

// UserID задаёт идентификатор пользователя.
func (b *AccessTokenRequestBuilder) UserID(userID string) *AccessTokenRequestBuilder {
	b.userID = &userID
	return b
}

// Duration задаёт срок действия токена.
func (b *AccessTokenRequestBuilder) Duration(d time.Duration) *AccessTokenRequestBuilder {
	b.duration = d
	return b
}

// Build проверяет инварианты и возвращает запрос.
func (b *AccessTokenRequestBuilder) Build() (*AccessTokenRequest, error) {
	if len(b.fileIDs) == 0 {
		return nil, newConfigurationError("в запросе токена должен быть хотя бы один идентификатор файла")
	}
	if b.duration.Milliseconds() <= 0 {
		return nil, newConfigurationError("срок действия токена должен быть не меньше 1ms")
	}

	fileIDs := make([]string, len(b.fileIDs))
	copy(fileIDs, b.fileIDs)

	return &AccessTokenRequest{
		fileIDs:  fileIDs,
		userID:   b.userID,
		duration: b.duration,
	}, nil
}
