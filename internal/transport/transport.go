// Пакет transport — HTTP-обёртка над Files API.
// Один *http.Client на экземпляр (переиспользование соединений), заголовок API-KEY
// на каждом запросе, таймаут чтения на каждую попытку, опциональный повтор
// с экспоненциальной задержкой и Prometheus-метрики клиента.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	// HeaderAPIKey — заголовок с API-ключом сервиса.
	HeaderAPIKey = "API-KEY"

	// OperationUpload и OperationAccessToken — значения лейбла operation в метриках.
	OperationUpload      = "upload"
	OperationAccessToken = "access_token"
)

// Payload — тело запроса, которое умеет открываться для отправки.
// Replayable сообщает, можно ли открыть тело повторно (для повторных попыток).
type Payload interface {
	ContentType() string
	Open() (io.ReadCloser, error)
	Replayable() bool
}

// Response — статус и полностью прочитанное тело ответа.
type Response struct {
	StatusCode int
	Body       []byte
}

// Options — параметры транспорта.
type Options struct {
	// ConnectTimeout — таймаут установки TCP-соединения.
	ConnectTimeout time.Duration
	// ReadTimeout — таймаут на одну попытку запроса, включая чтение ответа.
	ReadTimeout time.Duration
	// CACertPath — путь к CA-сертификату (пустая строка — системный пул).
	CACertPath string
	// Retry — политика повторов; nil — без повторов.
	Retry *RetryPolicy
	// Metrics — метрики клиента; nil — метрики не собираются.
	Metrics *Metrics
	// Logger — логгер транспорта.
	Logger *slog.Logger
}

// Client — HTTP-транспорт Files API. Безопасен для конкурентного использования.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	readTimeout time.Duration
	retry       *RetryPolicy
	metrics     *Metrics
	logger      *slog.Logger
}

// New создаёт транспорт с собственным *http.Client.
func New(apiKey string, opts Options) (*Client, error) {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Files API: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат Files API добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	return NewWithHTTPClient(apiKey, &http.Client{Transport: transport}, opts), nil
}

// NewWithHTTPClient создаёт транспорт поверх готового *http.Client.
// ConnectTimeout и CACertPath из opts игнорируются.
func NewWithHTTPClient(apiKey string, httpClient *http.Client, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient:  httpClient,
		apiKey:      apiKey,
		readTimeout: opts.ReadTimeout,
		retry:       opts.Retry,
		metrics:     opts.Metrics,
		logger:      logger.With(slog.String("component", "files_api_transport")),
	}
}

// PostMultipart отправляет multipart-тело POST-запросом на rawURL.
func (c *Client) PostMultipart(ctx context.Context, rawURL string, payload Payload) (*Response, error) {
	return c.post(ctx, OperationUpload, rawURL, payload)
}

// PostJSON сериализует v в JSON и отправляет POST-запросом на rawURL.
func (c *Client) PostJSON(ctx context.Context, rawURL string, v any) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("сериализация JSON-тела: %w", err)
	}
	return c.post(ctx, OperationAccessToken, rawURL, jsonPayload(data))
}

// CloseIdleConnections закрывает простаивающие соединения.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// post выполняет запрос с учётом политики повторов.
func (c *Client) post(ctx context.Context, operation, rawURL string, payload Payload) (*Response, error) {
	attempt := func() (*Response, error) {
		return c.do(ctx, operation, rawURL, payload)
	}

	if c.retry == nil || !payload.Replayable() {
		return attempt()
	}
	return c.retry.run(ctx, operation, attempt, c.metrics, c.logger)
}

// do выполняет одну попытку: новый запрос, таймаут чтения, полное чтение тела.
func (c *Client) do(ctx context.Context, operation, rawURL string, payload Payload) (*Response, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	body, err := payload.Open()
	if err != nil {
		return nil, fmt.Errorf("открытие тела запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("создание запроса %s: %w", operation, err)
	}
	if sized, ok := payload.(interface{ Len() int }); ok {
		req.ContentLength = int64(sized.Len())
	}
	req.Header.Set("Content-Type", payload.ContentType())
	req.Header.Set(HeaderAPIKey, c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации клиента
	if err != nil {
		c.metrics.observe(operation, "error", time.Since(start))
		return nil, fmt.Errorf("запрос %s к Files API: %w", operation, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.observe(operation, statusLabel(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("чтение ответа %s: %w", operation, err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// jsonPayload — JSON-тело запроса.
type jsonPayload []byte

func (p jsonPayload) ContentType() string { return "application/json" }

func (p jsonPayload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p)), nil
}

func (p jsonPayload) Replayable() bool { return true }

func (p jsonPayload) Len() int { return len(p) }

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в %s нет PEM-сертификатов", caCertPath)
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
