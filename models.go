package filesapi

import (
	"io"
	"maps"
	"slices"
	"time"
)

// DefaultAccessTokenDuration — срок действия токена доступа по умолчанию.
const DefaultAccessTokenDuration = 15 * time.Minute

// FileData — один файл для загрузки.
// Content читается ровно один раз во время загрузки; закрытие потока остаётся за вызывающим.
type FileData struct {
	filename    string
	contentType string
	content     io.Reader
}

// Filename возвращает имя файла.
func (f FileData) Filename() string { return f.filename }

// ContentType возвращает MIME-тип (application/octet-stream, если не задан).
func (f FileData) ContentType() string { return f.contentType }

// Content возвращает поток содержимого.
func (f FileData) Content() io.Reader { return f.content }

// FileUploadRequest — запрос на загрузку файлов.
type FileUploadRequest struct {
	path         string
	files        []FileData
	metadata     map[string]string
	metadataKeys []string
}

// Path возвращает целевой путь (по умолчанию "").
func (r *FileUploadRequest) Path() string { return r.path }

// Files возвращает копию списка файлов в порядке добавления.
func (r *FileUploadRequest) Files() []FileData { return slices.Clone(r.files) }

// Metadata возвращает копию метаданных.
func (r *FileUploadRequest) Metadata() map[string]string { return maps.Clone(r.metadata) }

// MetadataKeys возвращает ключи метаданных в порядке добавления.
func (r *FileUploadRequest) MetadataKeys() []string { return slices.Clone(r.metadataKeys) }

// AccessTokenRequest — запрос токена доступа к файлам.
// Сериализуется в {"fileIds": [...], "userId": "..."|null, "duration": <ms>}.
type AccessTokenRequest struct {
	fileIDs  []string
	userID   *string
	duration time.Duration
}

// FileIDs возвращает копию списка идентификаторов файлов.
func (r *AccessTokenRequest) FileIDs() []string { return slices.Clone(r.fileIDs) }

// UserID возвращает идентификатор пользователя, если он задан.
func (r *AccessTokenRequest) UserID() (string, bool) {
	if r.userID == nil {
		return "", false
	}
	return *r.userID, true
}

// Duration возвращает срок действия токена.
func (r *AccessTokenRequest) Duration() time.Duration { return r.duration }

// DurationMillis возвращает срок действия токена в миллисекундах.
func (r *AccessTokenRequest) DurationMillis() int64 { return r.duration.Milliseconds() }

// accessTokenPayload — JSON-представление запроса токена.
type accessTokenPayload struct {
	FileIDs  []string `json:"fileIds"`
	UserID   *string  `json:"userId"`
	Duration int64    `json:"duration"`
}

func (r *AccessTokenRequest) payload() accessTokenPayload {
	return accessTokenPayload{
		FileIDs:  r.FileIDs(),
		UserID:   r.userID,
		Duration: r.DurationMillis(),
	}
}

// FileType — MIME-тип и расширение файла.
type FileType struct {
	MimeType  string
	Extension string
}

// FileInfo — описание загруженного файла из ответа сервиса.
type FileInfo struct {
	id               string
	storedFilename   string
	originalFilename string
	fileType         FileType
	metadata         map[string]string
	createdAt        int64
}

// NewFileInfo создаёт FileInfo; metadata копируется.
func NewFileInfo(
	id, storedFilename, originalFilename string,
	fileType FileType,
	metadata map[string]string,
	createdAt int64,
) FileInfo {
	md := make(map[string]string, len(metadata))
	maps.Copy(md, metadata)
	return FileInfo{
		id:               id,
		storedFilename:   storedFilename,
		originalFilename: originalFilename,
		fileType:         fileType,
		metadata:         md,
		createdAt:        createdAt,
	}
}

// ID возвращает идентификатор файла в сервисе.
func (f FileInfo) ID() string { return f.id }

// StoredFilename возвращает имя, под которым файл сохранён.
func (f FileInfo) StoredFilename() string { return f.storedFilename }

// OriginalFilename возвращает исходное имя файла.
func (f FileInfo) OriginalFilename() string { return f.originalFilename }

// FileType возвращает тип файла.
func (f FileInfo) FileType() FileType { return f.fileType }

// Metadata возвращает копию метаданных файла.
func (f FileInfo) Metadata() map[string]string {
	md := make(map[string]string, len(f.metadata))
	maps.Copy(md, f.metadata)
	return md
}

// CreatedAt возвращает время создания в миллисекундах Unix (UTC).
func (f FileInfo) CreatedAt() int64 { return f.createdAt }

// CreatedAtTime возвращает время создания как time.Time в UTC.
func (f FileInfo) CreatedAtTime() time.Time { return time.UnixMilli(f.createdAt).UTC() }

// FileUploadResponse — результат загрузки.
type FileUploadResponse struct {
	success       bool
	message       string
	uploadedFiles []FileInfo
}

// Success сообщает, были ли файлы приняты сервисом.
func (r *FileUploadResponse) Success() bool { return r.success }

// Message возвращает текстовое описание результата.
func (r *FileUploadResponse) Message() string { return r.message }

// UploadedFiles возвращает копию списка загруженных файлов (может быть пустым).
func (r *FileUploadResponse) UploadedFiles() []FileInfo {
	out := make([]FileInfo, len(r.uploadedFiles))
	copy(out, r.uploadedFiles)
	return out
}

// AccessTokenResponse — результат запроса токена доступа.
type AccessTokenResponse struct {
	success bool
	message string
	token   *string
}

// Success сообщает, выдан ли токен.
func (r *AccessTokenResponse) Success() bool { return r.success }

// Message возвращает текстовое описание результата.
func (r *AccessTokenResponse) Message() string { return r.message }

// Token возвращает токен, если он выдан.
func (r *AccessTokenResponse) Token() (string, bool) {
	if r.token == nil {
		return "", false
	}
	return *r.token, true
}
