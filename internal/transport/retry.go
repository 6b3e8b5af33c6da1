// retry.go — ограниченный повтор запросов с экспоненциальной задержкой.
// Повторяются только ошибки установки соединения и ответы 502/503/504.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy — параметры повторов.
type RetryPolicy struct {
	// MaxRetries — максимальное число повторов после первой попытки.
	MaxRetries int
	// InitialInterval — задержка перед первым повтором.
	InitialInterval time.Duration
}

// retryableStatusError — ответ со статусом, который имеет смысл повторить.
type retryableStatusError struct {
	statusCode int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("повторяемый статус %d", e.statusCode)
}

// run выполняет attempt с повторами. Если повторы исчерпаны на повторяемом
// статусе, возвращается последний ответ — решение об ошибке принимает вызывающий.
func (p *RetryPolicy) run(
	ctx context.Context,
	operation string,
	attempt func() (*Response, error),
	metrics *Metrics,
	logger *slog.Logger,
) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	// Ограничение только по количеству попыток
	b.MaxElapsedTime = 0

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	var last *Response
	op := func() error {
		resp, err := attempt()
		if err != nil {
			last = nil
			if isRetryableError(ctx, err) {
				return err
			}
			return backoff.Permanent(err)
		}
		last = resp
		if isRetryableStatus(resp.StatusCode) {
			return &retryableStatusError{statusCode: resp.StatusCode}
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metrics.retried(operation)
		logger.Warn("Повтор запроса к Files API",
			slog.String("operation", operation),
			slog.Duration("wait", wait),
			slog.String("reason", err.Error()),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var statusErr *retryableStatusError
		if errors.As(err, &statusErr) && last != nil {
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

// isRetryableStatus — 502, 503, 504.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isRetryableError — только ошибки установки соединения, пока контекст жив.
func isRetryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
