// Пакет filesapitest — фейковый сервис Files API для тестов клиента.
// Поднимает httptest.Server с маршрутами загрузки, выдачи токенов,
// скачивания по токену и health-эндпоинтом. Все входящие запросы записываются.
package filesapitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Route — идентификатор маршрута фейкового сервиса.
type Route string

const (
	RouteUpload      Route = "upload"
	RouteAccessToken Route = "access_token"
	RouteDownload    Route = "download"
)

// CreatedAtLayout — формат createdAt в ответе на загрузку (локальное время без смещения).
const CreatedAtLayout = "2006-01-02T15:04:05"

// RecordedPart — часть multipart-тела запроса.
type RecordedPart struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// RecordedRequest — запрос, принятый фейковым сервисом.
type RecordedRequest struct {
	Route    Route
	Method   string
	Header   http.Header
	RawQuery string
	Query    url.Values
	Body     []byte
	Parts    []RecordedPart
}

// StoredFile — файл, сохранённый фейковым сервисом.
type StoredFile struct {
	ID               string
	StoredFilename   string
	OriginalFilename string
	ContentType      string
	Extension        string
	Path             string
	Metadata         map[string]string
	Data             []byte
}

// override — подменённый ответ маршрута.
type override struct {
	status int
	body   string
	left   int
}

// Server — фейковый сервис Files API.
type Server struct {
	apiKey   string
	srv      *httptest.Server
	contract *contract
	tokens   *tokenIssuer

	mu        sync.Mutex
	files     map[string]StoredFile
	requests  []RecordedRequest
	overrides map[Route]*override
}

// New запускает фейковый сервис, принимающий ключ apiKey.
// Сервер останавливается в t.Cleanup.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()

	c, err := loadContract()
	if err != nil {
		t.Fatalf("loadContract: %v", err)
	}

	s := &Server{
		apiKey:    apiKey,
		contract:  c,
		tokens:    newTokenIssuer(),
		files:     make(map[string]StoredFile),
		overrides: make(map[Route]*override),
	}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/files", s.handleUpload)
	r.Post("/files/access-tokens", s.handleAccessToken)
	r.Get("/files/{fileID}/download", s.handleDownload)
	r.Get("/health", s.handleHealth)
	return r
}

// URL возвращает корневой URL сервера.
func (s *Server) URL() string { return s.srv.URL }

// BaseURL возвращает базовый URL Files API (корень + "/files").
func (s *Server) BaseURL() string { return s.srv.URL + "/files" }

// Close останавливает сервер. Повторный вызов безопасен.
func (s *Server) Close() { s.srv.Close() }

// Fail подменяет ответ маршрута route на status/body для следующих times запросов.
// Подмена срабатывает после проверки API-KEY.
func (s *Server) Fail(route Route, status int, body string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[route] = &override{status: status, body: body, left: times}
}

// Requests возвращает копию всех записанных запросов.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount возвращает число запросов к маршруту route.
func (s *Server) RequestCount(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Route == route {
			n++
		}
	}
	return n
}

// LastRequest возвращает последний запрос к маршруту route.
func (s *Server) LastRequest(route Route) (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Route == route {
			return s.requests[i], true
		}
	}
	return RecordedRequest{}, false
}

// File возвращает сохранённый файл по идентификатору.
func (s *Server) File(id string) (StoredFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f, ok
}

// record читает тело запроса, сохраняет запись и восстанавливает r.Body.
func (s *Server) record(route Route, r *http.Request) (RecordedRequest, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return RecordedRequest{}, fmt.Errorf("чтение тела запроса: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	rec := RecordedRequest{
		Route:    route,
		Method:   r.Method,
		Header:   r.Header.Clone(),
		RawQuery: r.URL.RawQuery,
		Query:    r.URL.Query(),
		Body:     raw,
	}
	// Нераспознанное multipart-тело записывается без частей.
	rec.Parts, _ = parseParts(r.Header.Get("Content-Type"), raw)

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()
	return rec, nil
}

// authorize проверяет заголовок API-KEY. При ошибке ответ уже записан.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("API-KEY") != s.apiKey {
		unauthorized(w, "неверный или отсутствующий API-KEY")
		return false
	}
	return true
}

// takeOverride применяет подменённый ответ, если он задан для route.
func (s *Server) takeOverride(w http.ResponseWriter, route Route) bool {
	s.mu.Lock()
	o, ok := s.overrides[route]
	if ok {
		o.left--
		if o.left <= 0 {
			delete(s.overrides, route)
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(o.status)
	_, _ = io.WriteString(w, o.body)
	return true
}

// parseParts разбирает multipart/form-data тело.
func parseParts(contentType string, raw []byte) ([]RecordedPart, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("разбор Content-Type: %w", err)
	}
	if mediaType != "multipart/form-data" {
		return nil, fmt.Errorf("ожидался multipart/form-data, получен %s", mediaType)
	}

	mr := multipart.NewReader(bytes.NewReader(raw), params["boundary"])
	var parts []RecordedPart
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("чтение части multipart: %w", err)
		}
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("чтение части %s: %w", p.FormName(), err)
		}
		parts = append(parts, RecordedPart{
			FieldName:   p.FormName(),
			Filename:    p.FileName(),
			ContentType: p.Header.Get("Content-Type"),
			Data:        data,
		})
	}
}

// --- Обработчики ---

type fileTypeJSON struct {
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
}

type fileMetadataJSON struct {
	ID               string       `json:"id"`
	StoredFilename   string       `json:"storedFilename"`
	OriginalFilename string       `json:"originalFilename"`
	FileType         fileTypeJSON `json:"fileType"`
	CreatedAt        string       `json:"createdAt"`
}

type uploadedFileJSON struct {
	FileMetadata fileMetadataJSON `json:"fileMetadata"`
}

type uploadData struct {
	UploadedFiles []uploadedFileJSON `json:"uploadedFiles"`
}

type envelope[T any] struct {
	Data T `json:"data"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rec, err := s.record(RouteUpload, r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if err := s.contract.validate(r, "/files", map[string]string{}, true); err != nil {
		badRequest(w, err.Error())
		return
	}
	if s.takeOverride(w, RouteUpload) {
		return
	}

	if _, err := parseParts(r.Header.Get("Content-Type"), rec.Body); err != nil {
		badRequest(w, err.Error())
		return
	}

	metadata := make(map[string]string)
	var files []RecordedPart
	for _, p := range rec.Parts {
		if p.Filename != "" {
			files = append(files, p)
			continue
		}
		metadata[p.FieldName] = string(p.Data)
	}
	if len(files) == 0 {
		badRequest(w, "в запросе нет файлов")
		return
	}

	createdAt := time.Now().UTC().Format(CreatedAtLayout)
	path := rec.Query.Get("path")
	resp := uploadData{UploadedFiles: make([]uploadedFileJSON, 0, len(files))}

	s.mu.Lock()
	for _, p := range files {
		id := uuid.NewString()
		ext := strings.TrimPrefix(filepath.Ext(p.Filename), ".")
		if ext == "" {
			ext = "bin"
		}
		stored := StoredFile{
			ID:               id,
			StoredFilename:   id + "." + ext,
			OriginalFilename: p.Filename,
			ContentType:      p.ContentType,
			Extension:        ext,
			Path:             path,
			Metadata:         metadata,
			Data:             p.Data,
		}
		s.files[id] = stored

		resp.UploadedFiles = append(resp.UploadedFiles, uploadedFileJSON{
			FileMetadata: fileMetadataJSON{
				ID:               id,
				StoredFilename:   stored.StoredFilename,
				OriginalFilename: stored.OriginalFilename,
				FileType:         fileTypeJSON{MimeType: stored.ContentType, Extension: ext},
				CreatedAt:        createdAt,
			},
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, envelope[uploadData]{Data: resp})
}

type accessTokenRequest struct {
	FileIDs  []string `json:"fileIds"`
	UserID   *string  `json:"userId"`
	Duration int64    `json:"duration"`
}

type tokenData struct {
	Token string `json:"token"`
}

func (s *Server) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	rec, err := s.record(RouteAccessToken, r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if err := s.contract.validate(r, "/files/access-tokens", map[string]string{}, false); err != nil {
		badRequest(w, err.Error())
		return
	}
	if s.takeOverride(w, RouteAccessToken) {
		return
	}

	var req accessTokenRequest
	if err := json.Unmarshal(rec.Body, &req); err != nil {
		badRequest(w, "некорректный JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	for _, id := range req.FileIDs {
		if _, ok := s.files[id]; !ok {
			s.mu.Unlock()
			notFound(w, "файл не найден: "+id)
			return
		}
	}
	s.mu.Unlock()

	token, err := s.tokens.issue(req.FileIDs, req.UserID, time.Duration(req.Duration)*time.Millisecond)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, envelope[tokenData]{Data: tokenData{Token: token}})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.record(RouteDownload, r); err != nil {
		badRequest(w, err.Error())
		return
	}

	fileID := chi.URLParam(r, "fileID")
	pathParams := map[string]string{"fileId": fileID}
	if err := s.contract.validate(r, "/files/{fileId}/download", pathParams, true); err != nil {
		badRequest(w, err.Error())
		return
	}
	if s.takeOverride(w, RouteDownload) {
		return
	}

	claims, err := s.tokens.verify(r.URL.Query().Get("access_token"))
	if err != nil {
		unauthorized(w, err.Error())
		return
	}
	if !claims.allows(fileID) {
		forbidden(w, "токен не распространяется на файл "+fileID)
		return
	}

	f, ok := s.File(fileID)
	if !ok {
		notFound(w, "файл не найден: "+fileID)
		return
	}

	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": f.OriginalFilename,
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
