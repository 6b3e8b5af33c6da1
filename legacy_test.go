package filesapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync/atomic"
	"testing"
)

// fileHeaders собирает []*multipart.FileHeader так, как их получает HTTP-обработчик.
func fileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="upload"; filename="`+name+`"`)
		h.Set("Content-Type", "text/plain")
		pw, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = io.WriteString(pw, content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["upload"]
}

// brokenFile — MultipartFile, который не удаётся открыть.
type brokenFile struct{}

var errBrokenFile = errors.New("диск недоступен")

func (brokenFile) Filename() string             { return "broken.txt" }
func (brokenFile) ContentType() string          { return "" }
func (brokenFile) Open() (io.ReadCloser, error) { return nil, errBrokenFile }

func TestUploadMultipartFiles_Success(t *testing.T) {
	server := setupMockFiles(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "path=" {
			t.Errorf("RawQuery = %q", r.URL.RawQuery)
		}
		parts := readParts(t, r)
		if len(parts) != 1 || parts[0].name != "files" || parts[0].filename != "a.txt" ||
			parts[0].contentType != "text/plain" || parts[0].data != "hello" {
			t.Errorf("части = %d", len(parts))
		}
		writeBody(w, http.StatusOK, singleUploadBody)
	})
	c := newTestClient(t, server.URL+"/files")

	var got []FileInfo
	err := c.UploadMultipartFiles(context.Background(),
		FromFileHeaders(fileHeaders(t, map[string]string{"a.txt": "hello"})),
		func(files []FileInfo) { got = files },
	)
	if err != nil {
		t.Fatalf("UploadMultipartFiles: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "1" {
		t.Errorf("callback получил %d файлов", len(got))
	}
}

func TestUploadMultipartFilesWithPath(t *testing.T) {
	server := setupMockFiles(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "path=docs" {
			t.Errorf("RawQuery = %q, ожидается path=docs", r.URL.RawQuery)
		}
		parts := readParts(t, r)
		if len(parts) != 2 || parts[1].name != "owner" || parts[1].data != "u1" {
			t.Errorf("части = %d", len(parts))
		}
		writeBody(w, http.StatusOK, singleUploadBody)
	})
	c := newTestClient(t, server.URL+"/files")

	called := false
	err := c.UploadMultipartFilesWithPath(context.Background(), "docs",
		FromFileHeaders(fileHeaders(t, map[string]string{"a.txt": "hello"})),
		map[string]string{"owner": "u1"},
		func([]FileInfo) { called = true },
	)
	if err != nil {
		t.Fatalf("UploadMultipartFilesWithPath: %v", err)
	}
	if !called {
		t.Error("callback не вызван")
	}
}

func TestUploadMultipartFiles_CallbackSkipped(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		errNil bool
	}{
		{"пустой список в ответе", http.StatusOK, `{"data":{"uploadedFiles":[]}}`, true},
		{"нет data", http.StatusOK, `{}`, true},
		{"ошибка сервера", http.StatusInternalServerError, "boom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockFiles(t, func(w http.ResponseWriter, r *http.Request) {
				writeBody(w, tt.status, tt.body)
			})
			c := newTestClient(t, server.URL+"/files")

			called := false
			err := c.UploadMultipartFiles(context.Background(),
				FromFileHeaders(fileHeaders(t, map[string]string{"a.txt": "hello"})),
				func([]FileInfo) { called = true },
			)
			if (err == nil) != tt.errNil {
				t.Errorf("ошибка = %v", err)
			}
			if !tt.errNil {
				var uploadErr *UploadError
				if !errors.As(err, &uploadErr) || uploadErr.StatusCode != tt.status {
					t.Errorf("ошибка %v, ожидалась *UploadError со статусом %d", err, tt.status)
				}
			}
			if called {
				t.Error("callback вызван")
			}
		})
	}
}

func TestUploadMultipartFiles_EmptyList(t *testing.T) {
	var calls atomic.Int32
	server := setupMockFiles(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	c := newTestClient(t, server.URL+"/files")

	err := c.UploadMultipartFiles(context.Background(), nil, func([]FileInfo) {
		t.Error("callback вызван")
	})
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("ошибка %v, ожидалась *UploadError", err)
	}
	if calls.Load() != 0 {
		t.Errorf("выполнено запросов: %d", calls.Load())
	}
}

func TestUploadMultipartFiles_OpenError(t *testing.T) {
	c := newTestClient(t, "https://example/files")

	err := c.UploadMultipartFiles(context.Background(), []MultipartFile{brokenFile{}}, nil)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("ошибка %v, ожидалась *UploadError", err)
	}
	if !errors.Is(err, errBrokenFile) {
		t.Errorf("ошибка %v не содержит причину", err)
	}
}

func TestFromFileHeaders_SkipsNil(t *testing.T) {
	headers := fileHeaders(t, map[string]string{"a.txt": "hello"})
	files := FromFileHeaders(append(headers, nil))
	if len(files) != 1 {
		t.Fatalf("файлов = %d, ожидается 1", len(files))
	}
	if files[0].Filename() != "a.txt" || files[0].ContentType() != "text/plain" {
		t.Errorf("файл = %s/%s", files[0].Filename(), files[0].ContentType())
	}
}
