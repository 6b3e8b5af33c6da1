// Пакет multipart — сборка тела multipart/form-data для загрузки файлов в Files API.
//
// Формат тела (все переводы строк — CRLF):
//
//	--<boundary>
//	Content-Disposition: form-data; name="<field>"; filename="<filename>"
//	Content-Type: <content-type>
//
//	<байты файла>
//	--<boundary>
//	Content-Disposition: form-data; name="<field>"
//	Content-Type: text/plain; charset=UTF-8
//
//	<значение>
//	--<boundary>--
//
// Сначала идут файловые части в порядке добавления, затем текстовые.
// Значения имён полей и файлов не экранируются.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/google/uuid"
)

const (
	// BoundaryPrefix — постоянный ASCII-префикс boundary.
	BoundaryPrefix = "FilesApiBoundary-"

	// DefaultContentType — Content-Type файловой части, если тип не задан.
	DefaultContentType = "application/octet-stream"

	textContentType = "text/plain; charset=UTF-8"

	// maxBoundaryAttempts — сколько раз перегенерируется boundary при коллизии с содержимым.
	maxBoundaryAttempts = 8
)

var (
	// ErrBoundaryCollision — boundary встречается в содержимом части.
	ErrBoundaryCollision = errors.New("boundary встречается в содержимом части")

	// ErrNoParts — попытка собрать тело без единой части.
	ErrNoParts = errors.New("multipart-тело не содержит частей")

	// ErrAlreadyConsumed — потоковое тело уже было прочитано.
	ErrAlreadyConsumed = errors.New("потоковое multipart-тело уже прочитано")
)

// filePart — файловая часть.
type filePart struct {
	fieldName   string
	filename    string
	contentType string
	content     io.Reader
}

// textPart — текстовая часть.
type textPart struct {
	fieldName string
	value     string
}

// Writer собирает multipart-тело. Один экземпляр — один запрос, не потокобезопасен.
type Writer struct {
	boundary string
	files    []filePart
	fields   []textPart
}

// NewWriter создаёт Writer с новым уникальным boundary.
func NewWriter() *Writer {
	return &Writer{boundary: newBoundary()}
}

// newBoundary генерирует boundary вида FilesApiBoundary-<uuid>.
func newBoundary() string {
	return BoundaryPrefix + uuid.NewString()
}

// Boundary возвращает текущий boundary.
// Encode может его перегенерировать, поэтому после Encode используйте Body.Boundary.
func (w *Writer) Boundary() string {
	return w.boundary
}

// AddFile добавляет файловую часть. content читается ровно один раз при сборке тела.
func (w *Writer) AddFile(fieldName, filename, contentType string, content io.Reader) {
	if contentType == "" {
		contentType = DefaultContentType
	}
	w.files = append(w.files, filePart{
		fieldName:   fieldName,
		filename:    filename,
		contentType: contentType,
		content:     content,
	})
}

// AddField добавляет текстовую часть.
func (w *Writer) AddField(fieldName, value string) {
	w.fields = append(w.fields, textPart{fieldName: fieldName, value: value})
}

// PartCount возвращает количество частей.
func (w *Writer) PartCount() int {
	return len(w.files) + len(w.fields)
}

// Body — полностью собранное тело в памяти. Может отправляться повторно.
type Body struct {
	boundary string
	data     []byte
}

// Boundary возвращает boundary, использованный в теле.
func (b *Body) Boundary() string { return b.boundary }

// ContentType возвращает значение заголовка Content-Type.
func (b *Body) ContentType() string { return contentTypeFor(b.boundary) }

// Bytes возвращает байты тела.
func (b *Body) Bytes() []byte { return b.data }

// Len возвращает длину тела в байтах.
func (b *Body) Len() int { return len(b.data) }

// Open возвращает новый reader по телу.
func (b *Body) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Replayable — тело в памяти можно отправить повторно.
func (b *Body) Replayable() bool { return true }

// Encode читает все части в память и собирает тело.
// Если boundary встречается в содержимом какой-либо части, boundary перегенерируется.
func (w *Writer) Encode() (*Body, error) {
	if w.PartCount() == 0 {
		return nil, ErrNoParts
	}

	contents := make([][]byte, len(w.files))
	for i, f := range w.files {
		data, err := io.ReadAll(f.content)
		if err != nil {
			return nil, fmt.Errorf("чтение содержимого файла %q: %w", f.filename, err)
		}
		contents[i] = data
	}

	boundary, err := w.pickBoundary(contents)
	if err != nil {
		return nil, err
	}
	w.boundary = boundary

	var buf bytes.Buffer
	mw, err := newFormWriter(&buf, boundary)
	if err != nil {
		return nil, err
	}
	for i, f := range w.files {
		pw, err := mw.CreatePart(fileHeader(f))
		if err != nil {
			return nil, fmt.Errorf("создание части %q: %w", f.filename, err)
		}
		if _, err := pw.Write(contents[i]); err != nil {
			return nil, fmt.Errorf("запись части %q: %w", f.filename, err)
		}
	}
	if err := writeFields(mw, w.fields); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("закрытие multipart-тела: %w", err)
	}

	return &Body{boundary: boundary, data: buf.Bytes()}, nil
}

// pickBoundary подбирает boundary, которого нет ни в одной части.
func (w *Writer) pickBoundary(contents [][]byte) (string, error) {
	boundary := w.boundary
	for attempt := 0; attempt < maxBoundaryAttempts; attempt++ {
		if !w.collides(boundary, contents) {
			return boundary, nil
		}
		boundary = newBoundary()
	}
	return "", ErrBoundaryCollision
}

func (w *Writer) collides(boundary string, contents [][]byte) bool {
	needle := []byte(boundary)
	for _, c := range contents {
		if bytes.Contains(c, needle) {
			return true
		}
	}
	for _, f := range w.fields {
		if bytes.Contains([]byte(f.value), needle) {
			return true
		}
	}
	return false
}

// newFormWriter создаёт multipart.Writer с заданным boundary.
// Первая часть пишется без ведущего CRLF, каждая следующая — с "\r\n--boundary",
// что побайтно совпадает с форматом "часть\r\n" + "--boundary".
func newFormWriter(dst io.Writer, boundary string) (*multipart.Writer, error) {
	mw := multipart.NewWriter(dst)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("установка boundary: %w", err)
	}
	return mw, nil
}

// fileHeader формирует заголовки файловой части без экранирования значений.
func fileHeader(f filePart) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader, 2)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.fieldName, f.filename))
	h.Set("Content-Type", f.contentType)
	return h
}

// fieldHeader формирует заголовки текстовой части.
func fieldHeader(fieldName string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader, 2)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, fieldName))
	h.Set("Content-Type", textContentType)
	return h
}

func writeFields(mw *multipart.Writer, fields []textPart) error {
	for _, f := range fields {
		pw, err := mw.CreatePart(fieldHeader(f.fieldName))
		if err != nil {
			return fmt.Errorf("создание поля %q: %w", f.fieldName, err)
		}
		if _, err := io.WriteString(pw, f.value); err != nil {
			return fmt.Errorf("запись поля %q: %w", f.fieldName, err)
		}
	}
	return nil
}

// contentTypeFor возвращает Content-Type запроса для boundary.
func contentTypeFor(boundary string) string {
	return "multipart/form-data; boundary=" + boundary
}
