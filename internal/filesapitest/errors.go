package filesapitest

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок фейкового сервиса.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// apiError — тело ответа с ошибкой: {"error": {"code": "...", "message": "..."}}.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	var body apiError
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, statusCode, body)
}

func badRequest(w http.ResponseWriter, message string) {
	respondError(w, http.StatusBadRequest, CodeValidationError, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	respondError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func forbidden(w http.ResponseWriter, message string) {
	respondError(w, http.StatusForbidden, CodeForbidden, message)
}

func notFound(w http.ResponseWriter, message string) {
	respondError(w, http.StatusNotFound, CodeNotFound, message)
}

func internalError(w http.ResponseWriter, message string) {
	respondError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// writeJSON записывает v как JSON с заданным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
