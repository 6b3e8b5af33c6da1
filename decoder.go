package filesapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Сообщения ответов клиента.
const (
	messageUploadSuccessful = "Upload successful"
	messageNoFilesUploaded  = "No files uploaded"
	messageTokenGenerated   = "Token generated successfully"
	messageNoTokenGenerated = "No token generated"
)

// Форматы createdAt без смещения (ISO-8601 local date-time).
var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

var errMalformedResponse = errors.New("некорректная структура ответа")

// envelope — внешняя обёртка ответа {"data": ...}.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// uploadedFileJSON — элемент data.uploadedFiles.
type uploadedFileJSON struct {
	FileMetadata *fileMetadataJSON `json:"fileMetadata"`
}

type fileMetadataJSON struct {
	ID               *string       `json:"id"`
	StoredFilename   *string       `json:"storedFilename"`
	OriginalFilename *string       `json:"originalFilename"`
	FileType         *fileTypeJSON `json:"fileType"`
	CreatedAt        *string       `json:"createdAt"`
}

type fileTypeJSON struct {
	MimeType  *string `json:"mimeType"`
	Extension *string `json:"extension"`
}

// decodeEnvelope разбирает верхний уровень и возвращает data,
// либо nil, если data отсутствует или равно null.
func decodeEnvelope(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: ожидался JSON-объект", errMalformedResponse)
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	if isNull(env.Data) {
		return nil, nil
	}
	return env.Data, nil
}

// decodeUploadResponse преобразует ответ сервиса на загрузку.
// createdAt без смещения интерпретируется в loc.
func decodeUploadResponse(body []byte, loc *time.Location) (*FileUploadResponse, error) {
	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return noFilesUploaded(), nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	rawFiles, ok := fields["uploadedFiles"]
	if !ok {
		return noFilesUploaded(), nil
	}

	var items []uploadedFileJSON
	if isNull(rawFiles) {
		return nil, fmt.Errorf("%w: uploadedFiles равно null", errMalformedResponse)
	}
	if err := json.Unmarshal(rawFiles, &items); err != nil {
		return nil, fmt.Errorf("uploadedFiles: %w", err)
	}

	files := make([]FileInfo, 0, len(items))
	for i, item := range items {
		info, err := item.toFileInfo(loc)
		if err != nil {
			return nil, fmt.Errorf("uploadedFiles[%d]: %w", i, err)
		}
		files = append(files, info)
	}

	return &FileUploadResponse{
		success:       true,
		message:       messageUploadSuccessful,
		uploadedFiles: files,
	}, nil
}

func noFilesUploaded() *FileUploadResponse {
	return &FileUploadResponse{
		success:       false,
		message:       messageNoFilesUploaded,
		uploadedFiles: []FileInfo{},
	}
}

// toFileInfo проверяет наличие всех полей fileMetadata.
func (u uploadedFileJSON) toFileInfo(loc *time.Location) (FileInfo, error) {
	m := u.FileMetadata
	if m == nil {
		return FileInfo{}, fmt.Errorf("%w: нет fileMetadata", errMalformedResponse)
	}
	if m.ID == nil || m.StoredFilename == nil || m.OriginalFilename == nil || m.CreatedAt == nil {
		return FileInfo{}, fmt.Errorf("%w: неполные fileMetadata", errMalformedResponse)
	}
	if m.FileType == nil || m.FileType.MimeType == nil || m.FileType.Extension == nil {
		return FileInfo{}, fmt.Errorf("%w: неполный fileType", errMalformedResponse)
	}

	createdAt, err := parseCreatedAt(*m.CreatedAt, loc)
	if err != nil {
		return FileInfo{}, err
	}

	return NewFileInfo(
		*m.ID,
		*m.StoredFilename,
		*m.OriginalFilename,
		FileType{MimeType: *m.FileType.MimeType, Extension: *m.FileType.Extension},
		nil,
		createdAt.UnixMilli(),
	), nil
}

// parseCreatedAt разбирает createdAt. Значение со смещением (RFC 3339) берётся как есть,
// значение без смещения интерпретируется в loc.
func parseCreatedAt(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: createdAt %q не в формате ISO-8601", errMalformedResponse, value)
}

// decodeAccessTokenResponse преобразует ответ сервиса на запрос токена.
func decodeAccessTokenResponse(body []byte) (*AccessTokenResponse, error) {
	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, err
	}
	noToken := &AccessTokenResponse{success: false, message: messageNoTokenGenerated}
	if data == nil {
		return noToken, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	rawToken, ok := fields["token"]
	if !ok || isNull(rawToken) {
		return noToken, nil
	}

	var token string
	if err := json.Unmarshal(rawToken, &token); err != nil {
		return nil, fmt.Errorf("data.token: %w", err)
	}

	return &AccessTokenResponse{
		success: true,
		message: messageTokenGenerated,
		token:   &token,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
