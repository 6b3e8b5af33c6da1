// stream.go — потоковая сборка multipart-тела через io.Pipe.
// Содержимое файлов не буферизуется целиком; коллизия boundary с содержимым
// обнаруживается на лету и прерывает тело ошибкой ErrBoundaryCollision.
package multipart

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Stream — потоковое тело. Читается ровно один раз.
type Stream struct {
	boundary string
	files    []filePart
	fields   []textPart

	mu     sync.Mutex
	opened bool
}

// Stream возвращает потоковое тело с текущим boundary.
// Части будут прочитаны при первом Open.
func (w *Writer) Stream() (*Stream, error) {
	if w.PartCount() == 0 {
		return nil, ErrNoParts
	}
	return &Stream{
		boundary: w.boundary,
		files:    w.files,
		fields:   w.fields,
	}, nil
}

// Boundary возвращает boundary тела.
func (s *Stream) Boundary() string { return s.boundary }

// ContentType возвращает значение заголовка Content-Type.
func (s *Stream) ContentType() string { return contentTypeFor(s.boundary) }

// Replayable — потоковое тело нельзя отправить повторно.
func (s *Stream) Replayable() bool { return false }

// Open запускает запись тела в pipe и возвращает читающую сторону.
// Повторный вызов возвращает ErrAlreadyConsumed.
func (s *Stream) Open() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, ErrAlreadyConsumed
	}
	s.opened = true

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.writeTo(pw))
	}()
	return pr, nil
}

// writeTo пишет всё тело в dst.
func (s *Stream) writeTo(dst io.Writer) error {
	mw, err := newFormWriter(dst, s.boundary)
	if err != nil {
		return err
	}
	for _, f := range s.files {
		pw, err := mw.CreatePart(fileHeader(f))
		if err != nil {
			return fmt.Errorf("создание части %q: %w", f.filename, err)
		}
		guard := newBoundaryGuard(pw, s.boundary)
		if _, err := io.Copy(guard, f.content); err != nil {
			return fmt.Errorf("запись части %q: %w", f.filename, err)
		}
	}
	for _, f := range s.fields {
		if bytes.Contains([]byte(f.value), []byte(s.boundary)) {
			return fmt.Errorf("поле %q: %w", f.fieldName, ErrBoundaryCollision)
		}
	}
	if err := writeFields(mw, s.fields); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("закрытие multipart-тела: %w", err)
	}
	return nil
}

// boundaryGuard пропускает данные в w и отказывает, если в потоке
// встретился boundary (в том числе на стыке двух Write).
type boundaryGuard struct {
	w      io.Writer
	needle []byte
	tail   []byte
}

func newBoundaryGuard(w io.Writer, boundary string) *boundaryGuard {
	return &boundaryGuard{w: w, needle: []byte(boundary)}
}

func (g *boundaryGuard) Write(p []byte) (int, error) {
	window := make([]byte, 0, len(g.tail)+len(p))
	window = append(window, g.tail...)
	window = append(window, p...)
	if bytes.Contains(window, g.needle) {
		return 0, ErrBoundaryCollision
	}

	keep := len(g.needle) - 1
	if len(window) > keep {
		window = window[len(window)-keep:]
	}
	g.tail = window

	return g.w.Write(p)
}
