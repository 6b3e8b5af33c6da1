package filesapi

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Future — результат асинхронной операции.
// Результат и ошибка доступны после закрытия Done.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done закрывается по завершении операции.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await ждёт завершения операции или отмены ctx.
// Отмена ctx в Await не отменяет саму операцию — для этого отменяйте
// контекст, переданный в асинхронный вызов.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	// Завершённая операция возвращает результат даже при отменённом ctx
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// runAsync выполняет fn в отдельной горутине, ограничивая число
// одновременно выполняемых операций семафором pool.
func runAsync[T any](ctx context.Context, pool *semaphore.Weighted, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := pool.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer pool.Release(1)
		f.value, f.err = fn(ctx)
	}()
	return f
}
