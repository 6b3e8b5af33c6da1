package filesapi

import (
	"errors"
	"fmt"
	"strings"
)

// NoStatusCode — значение StatusCode, когда HTTP-статус отсутствует.
const NoStatusCode = -1

// FilesAPIError — общая часть всех ошибок клиента.
// StatusCode равен NoStatusCode, если ответа не было; ResponseBody — nil, если тела нет.
type FilesAPIError struct {
	Message      string
	StatusCode   int
	ResponseBody *string
	Err          error
}

func (e *FilesAPIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.StatusCode != NoStatusCode {
		fmt.Fprintf(&b, " [status: %d]", e.StatusCode)
	}
	if e.ResponseBody != nil {
		fmt.Fprintf(&b, " [response: %s]", *e.ResponseBody)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap возвращает исходную причину.
func (e *FilesAPIError) Unwrap() error { return e.Err }

// HasStatus сообщает, содержит ли ошибка HTTP-статус.
func (e *FilesAPIError) HasStatus() bool { return e.StatusCode != NoStatusCode }

func (e *FilesAPIError) base() *FilesAPIError { return e }

// ConfigurationError — нарушение инвариантов при создании конфигурации или запроса.
type ConfigurationError struct {
	FilesAPIError
}

// UploadError — ошибка загрузки файлов: сетевая, статус вне 2xx или некорректный ответ.
type UploadError struct {
	FilesAPIError
}

// AccessTokenError — ошибка запроса токена доступа: сетевая, статус не 200 или некорректный ответ.
type AccessTokenError struct {
	FilesAPIError
}

func newConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{FilesAPIError{Message: message, StatusCode: NoStatusCode}}
}

func newUploadError(message string, cause error) *UploadError {
	return &UploadError{FilesAPIError{Message: message, StatusCode: NoStatusCode, Err: cause}}
}

func newUploadStatusError(statusCode int, body string) *UploadError {
	return &UploadError{FilesAPIError{
		Message:      fmt.Sprintf("загрузка файлов завершилась статусом %d", statusCode),
		StatusCode:   statusCode,
		ResponseBody: &body,
	}}
}

func newAccessTokenError(message string, cause error) *AccessTokenError {
	return &AccessTokenError{FilesAPIError{Message: message, StatusCode: NoStatusCode, Err: cause}}
}

func newAccessTokenStatusError(statusCode int, body string) *AccessTokenError {
	return &AccessTokenError{FilesAPIError{
		Message:      fmt.Sprintf("запрос токена доступа завершился статусом %d", statusCode),
		StatusCode:   statusCode,
		ResponseBody: &body,
	}}
}

// AsFilesAPIError извлекает общую часть ошибки любого из видов клиента.
func AsFilesAPIError(err error) (*FilesAPIError, bool) {
	var target interface{ base() *FilesAPIError }
	if errors.As(err, &target) {
		return target.base(), true
	}
	return nil, false
}

// StatusCode возвращает HTTP-статус из ошибки клиента или NoStatusCode.
func StatusCode(err error) int {
	if apiErr, ok := AsFilesAPIError(err); ok {
		return apiErr.StatusCode
	}
	return NoStatusCode
}

// ResponseBody возвращает тело ответа из ошибки клиента, если оно есть.
func ResponseBody(err error) (string, bool) {
	if apiErr, ok := AsFilesAPIError(err); ok && apiErr.ResponseBody != nil {
		return *apiErr.ResponseBody, true
	}
	return "", false
}
