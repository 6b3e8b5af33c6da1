package filesapi

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Значения конфигурации по умолчанию.
const (
	DefaultConnectTimeout       = 30 * time.Second
	DefaultReadTimeout          = 60 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultAsyncConcurrency     = 16
)

// Config — неизменяемая конфигурация клиента Files API.
// Создаётся через NewConfig; поля доступны только на чтение.
type Config struct {
	apiKey         string
	baseURL        string
	connectTimeout time.Duration
	readTimeout    time.Duration
	maxRetries     int
	loggingEnabled bool

	retryEnabled         bool
	retryInitialInterval time.Duration
	encodeURLParams      bool
	streamUploads        bool
	createdAtLocation    *time.Location
	caCertPath           string
	asyncConcurrency     int
}

// ConfigOption изменяет конфигурацию при создании.
type ConfigOption func(*Config)

// WithConnectTimeout задаёт таймаут установки соединения (по умолчанию 30s).
func WithConnectTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.connectTimeout = d }
}

// WithReadTimeout задаёт таймаут одного запроса (по умолчанию 60s).
func WithReadTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.readTimeout = d }
}

// WithMaxRetries задаёт максимальное число повторов (по умолчанию 3).
// Повторы выполняются только при включённом WithRetry.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) { c.maxRetries = n }
}

// WithLogging включает или выключает логирование операций (по умолчанию включено).
func WithLogging(enabled bool) ConfigOption {
	return func(c *Config) { c.loggingEnabled = enabled }
}

// WithRetry включает ограниченный повтор (MaxRetries попыток) с экспоненциальной
// задержкой для ошибок соединения и ответов 502/503/504.
// initialInterval <= 0 — задержка по умолчанию (500ms).
func WithRetry(initialInterval time.Duration) ConfigOption {
	return func(c *Config) {
		c.retryEnabled = true
		if initialInterval > 0 {
			c.retryInitialInterval = initialInterval
		}
	}
}

// WithURLEncoding включает URL-кодирование path, fileId и access_token.
// По умолчанию значения подставляются в URL как есть.
func WithURLEncoding() ConfigOption {
	return func(c *Config) { c.encodeURLParams = true }
}

// WithStreamingUploads включает потоковую отправку multipart-тела без буферизации в памяти.
// Потоковые загрузки не повторяются.
func WithStreamingUploads() ConfigOption {
	return func(c *Config) { c.streamUploads = true }
}

// WithCreatedAtLocation задаёт часовой пояс, в котором интерпретируется createdAt
// без смещения (по умолчанию time.Local).
func WithCreatedAtLocation(loc *time.Location) ConfigOption {
	return func(c *Config) { c.createdAtLocation = loc }
}

// WithCACert задаёт путь к CA-сертификату для TLS.
func WithCACert(path string) ConfigOption {
	return func(c *Config) { c.caCertPath = path }
}

// WithAsyncConcurrency ограничивает число одновременно выполняемых асинхронных операций.
func WithAsyncConcurrency(n int) ConfigOption {
	return func(c *Config) { c.asyncConcurrency = n }
}

// NewConfig создаёт и валидирует конфигурацию.
// Возвращает *ConfigurationError, если apiKey или baseURL пусты или значения некорректны.
func NewConfig(apiKey, baseURL string, opts ...ConfigOption) (*Config, error) {
	cfg := &Config{
		apiKey:               apiKey,
		baseURL:              baseURL,
		connectTimeout:       DefaultConnectTimeout,
		readTimeout:          DefaultReadTimeout,
		maxRetries:           DefaultMaxRetries,
		loggingEnabled:       true,
		retryInitialInterval: DefaultRetryInitialInterval,
		createdAtLocation:    time.Local,
		asyncConcurrency:     DefaultAsyncConcurrency,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет инварианты конфигурации.
func (c *Config) validate() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return newConfigurationError("API-ключ не задан")
	}
	if strings.TrimSpace(c.baseURL) == "" {
		return newConfigurationError("базовый URL не задан")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return newConfigurationError(fmt.Sprintf("базовый URL %q должен быть абсолютным", c.baseURL))
	}
	if c.connectTimeout <= 0 {
		return newConfigurationError("таймаут соединения должен быть > 0")
	}
	if c.readTimeout <= 0 {
		return newConfigurationError("таймаут чтения должен быть > 0")
	}
	if c.maxRetries < 0 {
		return newConfigurationError("maxRetries не может быть отрицательным")
	}
	if c.asyncConcurrency <= 0 {
		return newConfigurationError("размер пула асинхронных операций должен быть > 0")
	}
	if c.createdAtLocation == nil {
		return newConfigurationError("часовой пояс createdAt не задан")
	}
	return nil
}

// APIKey возвращает API-ключ.
func (c *Config) APIKey() string { return c.apiKey }

// BaseURL возвращает базовый URL без нормализации.
func (c *Config) BaseURL() string { return c.baseURL }

// ConnectTimeout возвращает таймаут установки соединения.
func (c *Config) ConnectTimeout() time.Duration { return c.connectTimeout }

// ReadTimeout возвращает таймаут одного запроса.
func (c *Config) ReadTimeout() time.Duration { return c.readTimeout }

// MaxRetries возвращает максимальное число повторов.
func (c *Config) MaxRetries() int { return c.maxRetries }

// LoggingEnabled сообщает, включено ли логирование операций.
func (c *Config) LoggingEnabled() bool { return c.loggingEnabled }

// RetryEnabled сообщает, включены ли повторы.
func (c *Config) RetryEnabled() bool { return c.retryEnabled }

// RetryInitialInterval возвращает задержку перед первым повтором.
func (c *Config) RetryInitialInterval() time.Duration { return c.retryInitialInterval }

// URLEncodingEnabled сообщает, кодируются ли параметры URL.
func (c *Config) URLEncodingEnabled() bool { return c.encodeURLParams }

// StreamingUploads сообщает, используется ли потоковая отправка.
func (c *Config) StreamingUploads() bool { return c.streamUploads }

// CreatedAtLocation возвращает часовой пояс для createdAt без смещения.
func (c *Config) CreatedAtLocation() *time.Location { return c.createdAtLocation }

// CACertPath возвращает путь к CA-сертификату.
func (c *Config) CACertPath() string { return c.caCertPath }

// AsyncConcurrency возвращает размер пула асинхронных операций.
func (c *Config) AsyncConcurrency() int { return c.asyncConcurrency }

// AccessTokenURL возвращает endpoint выдачи токенов доступа: baseURL + "/access-tokens".
func (c *Config) AccessTokenURL() string {
	return c.baseURL + "/access-tokens"
}
