package filesapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/ahmtvc/scisbo-files-api-wrapper/internal/multipart"
	"github.com/ahmtvc/scisbo-files-api-wrapper/internal/transport"
)

// uploadFieldName — имя multipart-поля для всех файлов (часть контракта сервиса).
const uploadFieldName = "files"

// Client — клиент Files API. Безопасен для конкурентного использования;
// HTTP-соединения переиспользуются между вызовами.
type Client struct {
	cfg       *Config
	transport *transport.Client
	logger    *slog.Logger
	async     *semaphore.Weighted
}

// Option настраивает Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	httpClient *http.Client
}

// WithLogger задаёт логгер (по умолчанию slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithRegisterer задаёт Prometheus registerer для метрик клиента
// (по умолчанию и при nil prometheus.DefaultRegisterer).
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *clientOptions) {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		o.registerer = registerer
	}
}

// WithHTTPClient задаёт готовый *http.Client. ConnectTimeout и CA-сертификат
// из конфигурации в этом случае не применяются.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = httpClient }
}

// New создаёт клиент. cfg должен быть получен из NewConfig.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, newConfigurationError("конфигурация не задана")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		logger:     slog.Default(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if !cfg.loggingEnabled {
		logger = slog.New(slog.DiscardHandler)
	}

	metrics, err := transport.NewMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("регистрация метрик Files API: %w", err)
	}

	tOpts := transport.Options{
		ConnectTimeout: cfg.connectTimeout,
		ReadTimeout:    cfg.readTimeout,
		CACertPath:     cfg.caCertPath,
		Metrics:        metrics,
		Logger:         logger,
	}
	if cfg.retryEnabled {
		tOpts.Retry = &transport.RetryPolicy{
			MaxRetries:      cfg.maxRetries,
			InitialInterval: cfg.retryInitialInterval,
		}
	}

	var tr *transport.Client
	if o.httpClient != nil {
		tr = transport.NewWithHTTPClient(cfg.apiKey, o.httpClient, tOpts)
	} else {
		tr, err = transport.New(cfg.apiKey, tOpts)
		if err != nil {
			return nil, &ConfigurationError{FilesAPIError{
				Message:    "не удалось создать HTTP-транспорт",
				StatusCode: NoStatusCode,
				Err:        err,
			}}
		}
	}

	return &Client{
		cfg:       cfg,
		transport: tr,
		logger:    logger.With(slog.String("component", "files_api_client")),
		async:     semaphore.NewWeighted(int64(cfg.asyncConcurrency)),
	}, nil
}

// Config возвращает конфигурацию клиента.
func (c *Client) Config() *Config { return c.cfg }

// Close закрывает простаивающие HTTP-соединения.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// UploadFiles загружает файлы одним multipart-запросом.
// Статус 2xx — успех; иначе *UploadError со статусом и телом ответа.
func (c *Client) UploadFiles(ctx context.Context, req *FileUploadRequest) (*FileUploadResponse, error) {
	if req == nil || len(req.files) == 0 {
		return nil, newConfigurationError("в запросе на загрузку должен быть хотя бы один файл")
	}

	c.logger.Info("Загрузка файлов начата", slog.Int("files", len(req.files)))

	rawURL, err := c.cfg.uploadURL(req.path)
	if err != nil {
		return nil, newUploadError("не удалось сформировать URL загрузки", err)
	}

	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, newUploadError("не удалось собрать multipart-тело", err)
	}

	resp, err := c.transport.PostMultipart(ctx, rawURL, payload)
	if err != nil {
		return nil, newUploadError("не удалось загрузить файлы", err)
	}

	c.logger.Info("Получен ответ на загрузку", slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newUploadStatusError(resp.StatusCode, string(resp.Body))
	}

	result, err := decodeUploadResponse(resp.Body, c.cfg.createdAtLocation)
	if err != nil {
		return nil, newUploadError("не удалось разобрать ответ на загрузку", err)
	}
	return result, nil
}

// buildPayload собирает multipart-тело: сначала файлы, затем метаданные.
func (c *Client) buildPayload(req *FileUploadRequest) (transport.Payload, error) {
	w := multipart.NewWriter()
	for _, f := range req.files {
		w.AddFile(uploadFieldName, f.filename, f.contentType, f.content)
	}
	for _, k := range req.metadataKeys {
		w.AddField(k, req.metadata[k])
	}

	if c.cfg.streamUploads {
		stream, err := w.Stream()
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
	body, err := w.Encode()
	if err != nil {
		return nil, err
	}
	return body, nil
}

// UploadFilesAsync запускает UploadFiles в фоновом пуле и сразу возвращает Future.
func (c *Client) UploadFilesAsync(ctx context.Context, req *FileUploadRequest) *Future[*FileUploadResponse] {
	return runAsync(ctx, c.async, func(ctx context.Context) (*FileUploadResponse, error) {
		return c.UploadFiles(ctx, req)
	})
}

// AccessTokenOption дополняет запрос токена.
type AccessTokenOption func(*AccessTokenRequestBuilder)

// WithUserID задаёт идентификатор пользователя (по умолчанию null).
func WithUserID(userID string) AccessTokenOption {
	return func(b *AccessTokenRequestBuilder) { b.UserID(userID) }
}

// WithDuration задаёт срок действия токена (по умолчанию 15 минут).
func WithDuration(d time.Duration) AccessTokenOption {
	return func(b *AccessTokenRequestBuilder) { b.Duration(d) }
}

// RequestAccessToken запрашивает токен доступа к файлам fileIDs.
func (c *Client) RequestAccessToken(
	ctx context.Context,
	fileIDs []string,
	opts ...AccessTokenOption,
) (*AccessTokenResponse, error) {
	b := NewAccessTokenRequestBuilder().AddFileIDs(fileIDs)
	for _, opt := range opts {
		opt(b)
	}
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return c.RequestAccessTokenWith(ctx, req)
}

// RequestAccessTokenForFile запрашивает токен доступа к одному файлу.
func (c *Client) RequestAccessTokenForFile(
	ctx context.Context,
	fileID string,
	opts ...AccessTokenOption,
) (*AccessTokenResponse, error) {
	return c.RequestAccessToken(ctx, []string{fileID}, opts...)
}

// RequestAccessTokenWith отправляет готовый запрос токена.
// Только статус 200 считается успехом; иначе *AccessTokenError со статусом и телом.
func (c *Client) RequestAccessTokenWith(ctx context.Context, req *AccessTokenRequest) (*AccessTokenResponse, error) {
	if req == nil || len(req.fileIDs) == 0 {
		return nil, newConfigurationError("в запросе токена должен быть хотя бы один идентификатор файла")
	}

	c.logger.Info("Запрос токена доступа", slog.Int("files", len(req.fileIDs)))

	resp, err := c.transport.PostJSON(ctx, c.cfg.AccessTokenURL(), req.payload())
	if err != nil {
		return nil, newAccessTokenError("не удалось запросить токен доступа", err)
	}

	c.logger.Info("Получен ответ на запрос токена", slog.Int("status", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, newAccessTokenStatusError(resp.StatusCode, string(resp.Body))
	}

	result, err := decodeAccessTokenResponse(resp.Body)
	if err != nil {
		return nil, newAccessTokenError("не удалось разобрать ответ с токеном", err)
	}
	return result, nil
}

// RequestAccessTokenAsync запускает RequestAccessToken в фоновом пуле.
// Ошибки валидации также наблюдаются через Future.
func (c *Client) RequestAccessTokenAsync(
	ctx context.Context,
	fileIDs []string,
	opts ...AccessTokenOption,
) *Future[*AccessTokenResponse] {
	return runAsync(ctx, c.async, func(ctx context.Context) (*AccessTokenResponse, error) {
		return c.RequestAccessToken(ctx, fileIDs, opts...)
	})
}

// GeneratePreviewURL формирует URL скачивания файла по токену доступа.
func (c *Client) GeneratePreviewURL(fileID, accessToken string) string {
	return c.cfg.PreviewURL(fileID, accessToken)
}

// IsConfigurationError сообщает, является ли err ошибкой конфигурации.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
