package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupServer создаёт mock HTTP-сервер Files API.
func setupServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newTestClient создаёт транспорт с изолированным registry.
func newTestClient(t *testing.T, opts Options) (*Client, *Metrics) {
	t.Helper()
	metrics, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	opts.Metrics = metrics
	opts.Logger = testLogger()

	client, err := New("secret-key", opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, metrics
}

// bytesPayload — простое тело для тестов.
type bytesPayload struct {
	contentType string
	data        string
	replayable  bool
}

func (p bytesPayload) ContentType() string { return p.contentType }
func (p bytesPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(p.data)), nil
}
func (p bytesPayload) Replayable() bool { return p.replayable }

// TestClient_PostMultipart_Headers проверяет заголовки и тело запроса.
func TestClient_PostMultipart_Headers(t *testing.T) {
	server := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, ожидался POST", r.Method)
		}
		if got := r.Header.Get(HeaderAPIKey); got != "secret-key" {
			t.Errorf("API-KEY = %q, ожидался secret-key", got)
		}
		if got := r.Header.Get("Content-Type"); got != "multipart/form-data; boundary=b" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.URL.Query().Get("path"); got != "docs" {
			t.Errorf("path = %q, ожидался docs", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("Body = %q, ожидался payload", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	client, metrics := newTestClient(t, Options{})
	resp, err := client.PostMultipart(context.Background(), server.URL+"?path=docs",
		bytesPayload{contentType: "multipart/form-data; boundary=b", data: "payload"})
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, ожидался 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Errorf("Body = %q", resp.Body)
	}

	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(OperationUpload, "201")); got != 1 {
		t.Errorf("filesapi_client_requests_total{upload,201} = %v, ожидалось 1", got)
	}
}

// TestClient_PostJSON проверяет сериализацию JSON и заголовки.
func TestClient_PostJSON(t *testing.T) {
	server := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, ожидался application/json", got)
		}
		if got := r.Header.Get(HeaderAPIKey); got != "secret-key" {
			t.Errorf("API-KEY = %q", got)
		}
		if r.ContentLength <= 0 {
			t.Errorf("ContentLength = %d, ожидалась длина тела", r.ContentLength)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("Body = %q", body)
		}
		_, _ = w.Write([]byte(`{}`))
	})

	client, _ := newTestClient(t, Options{})
	resp, err := client.PostJSON(context.Background(), server.URL, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

// TestClient_ReadTimeout проверяет таймаут чтения на запрос.
func TestClient_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client, metrics := newTestClient(t, Options{ReadTimeout: 50 * time.Millisecond})
	_, err := client.PostJSON(context.Background(), server.URL, struct{}{})
	if err == nil {
		t.Fatal("ожидалась ошибка таймаута")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ожидалась context.DeadlineExceeded в цепочке, получено %v", err)
	}
	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues(OperationAccessToken, "error")); got != 1 {
		t.Errorf("requests_total{access_token,error} = %v, ожидалось 1", got)
	}
}

// TestClient_Unreachable проверяет ошибку недоступного сервера.
func TestClient_Unreachable(t *testing.T) {
	client, _ := newTestClient(t, Options{})
	_, err := client.PostJSON(context.Background(), "http://127.0.0.1:1", struct{}{})
	if err == nil {
		t.Fatal("ожидалась ошибка, получен nil")
	}
}

// TestClient_Retry_StatusThenSuccess проверяет повтор после 503.
func TestClient_Retry_StatusThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("попытка %d: Body = %q", calls.Load()+1, body)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("done"))
	})

	client, metrics := newTestClient(t, Options{
		Retry: &RetryPolicy{MaxRetries: 3, InitialInterval: 5 * time.Millisecond},
	})
	resp, err := client.PostMultipart(context.Background(), server.URL,
		bytesPayload{contentType: "x", data: "payload", replayable: true})
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "done" {
		t.Errorf("ответ = %d %q, ожидался 200 done", resp.StatusCode, resp.Body)
	}
	if calls.Load() != 3 {
		t.Errorf("попыток = %d, ожидалось 3", calls.Load())
	}
	if got := testutil.ToFloat64(metrics.retriesTotal.WithLabelValues(OperationUpload)); got != 2 {
		t.Errorf("retries_total = %v, ожидалось 2", got)
	}
}

// TestClient_Retry_Exhausted проверяет, что после исчерпания повторов
// возвращается последний ответ, а не ошибка.
func TestClient_Retry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	server := setupServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	client, _ := newTestClient(t, Options{
		Retry: &RetryPolicy{MaxRetries: 2, InitialInterval: 5 * time.Millisecond},
	})
	resp, err := client.PostJSON(context.Background(), server.URL, struct{}{})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway || string(resp.Body) != "upstream down" {
		t.Errorf("ответ = %d %q", resp.StatusCode, resp.Body)
	}
	if calls.Load() != 3 {
		t.Errorf("попыток = %d, ожидалось 3 (1 + 2 повтора)", calls.Load())
	}
}

// TestClient_Retry_NotForOtherStatuses проверяет, что 500 не повторяется.
func TestClient_Retry_NotForOtherStatuses(t *testing.T) {
	var calls atomic.Int32
	server := setupServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	client, _ := newTestClient(t, Options{
		Retry: &RetryPolicy{MaxRetries: 3, InitialInterval: 5 * time.Millisecond},
	})
	resp, err := client.PostJSON(context.Background(), server.URL, struct{}{})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, ожидался 500", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("попыток = %d, ожидалась 1", calls.Load())
	}
}

// TestClient_Retry_SkipsNonReplayable проверяет, что потоковое тело не повторяется.
func TestClient_Retry_SkipsNonReplayable(t *testing.T) {
	var calls atomic.Int32
	server := setupServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, _ := newTestClient(t, Options{
		Retry: &RetryPolicy{MaxRetries: 3, InitialInterval: 5 * time.Millisecond},
	})
	resp, err := client.PostMultipart(context.Background(), server.URL,
		bytesPayload{contentType: "x", data: "stream", replayable: false})
	if err != nil {
		t.Fatalf("PostMultipart: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, ожидался 503", resp.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("попыток = %d, ожидалась 1", calls.Load())
	}
}

// TestClient_Retry_ConnectFailure проверяет повтор ошибок соединения.
func TestClient_Retry_ConnectFailure(t *testing.T) {
	client, metrics := newTestClient(t, Options{
		Retry: &RetryPolicy{MaxRetries: 2, InitialInterval: 5 * time.Millisecond},
	})
	_, err := client.PostJSON(context.Background(), "http://127.0.0.1:1", struct{}{})
	if err == nil {
		t.Fatal("ожидалась ошибка соединения")
	}
	if got := testutil.ToFloat64(metrics.retriesTotal.WithLabelValues(OperationAccessToken)); got != 2 {
		t.Errorf("retries_total = %v, ожидалось 2", got)
	}
}

// TestNewMetrics_Reuse проверяет повторную регистрацию в одном registry.
func TestNewMetrics_Reuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics #1: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics #2: %v", err)
	}
	if first.requestsTotal != second.requestsTotal {
		t.Error("ожидался тот же коллектор requests_total")
	}
}

// TestNew_BadCACert проверяет ошибку при отсутствующем CA-сертификате.
func TestNew_BadCACert(t *testing.T) {
	_, err := New("k", Options{CACertPath: "/nonexistent/ca.pem", Logger: testLogger()})
	if err == nil {
		t.Fatal("ожидалась ошибка загрузки CA")
	}
}
