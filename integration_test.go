package filesapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ahmtvc/scisbo-files-api-wrapper/internal/filesapitest"
)

func TestFakeService_UploadTokenDownload(t *testing.T) {
	srv := filesapitest.New(t, "k")
	c := newTestClient(t, srv.BaseURL(), WithCreatedAtLocation(time.UTC))
	ctx := context.Background()

	req, err := NewUploadRequestBuilder().
		Path("docs").
		AddFile(mustFile(t, "report.txt", "text/plain", "hello")).
		AddMetadata("owner", "user-1").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	uploaded, err := c.UploadFiles(ctx, req)
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	files := uploaded.UploadedFiles()
	if !uploaded.Success() || len(files) != 1 {
		t.Fatalf("загрузка: success=%v files=%d", uploaded.Success(), len(files))
	}
	info := files[0]
	if info.OriginalFilename() != "report.txt" || info.FileType().Extension != "txt" {
		t.Errorf("FileInfo = %s/%s", info.OriginalFilename(), info.FileType().Extension)
	}
	if d := time.Since(info.CreatedAtTime()); d < -time.Minute || d > time.Minute {
		t.Errorf("createdAt = %v, расхождение %v", info.CreatedAtTime(), d)
	}

	stored, ok := srv.File(info.ID())
	if !ok || stored.Path != "docs" || stored.Metadata["owner"] != "user-1" {
		t.Errorf("сохранённый файл = %+v", stored)
	}

	tokenResp, err := c.RequestAccessTokenForFile(ctx, info.ID(), WithUserID("u1"), WithDuration(time.Minute))
	if err != nil {
		t.Fatalf("RequestAccessTokenForFile: %v", err)
	}
	token, ok := tokenResp.Token()
	if !ok {
		t.Fatal("токен не выдан")
	}

	resp, err := http.Get(c.GeneratePreviewURL(info.ID(), token))
	if err != nil {
		t.Fatalf("GET preview: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != "hello" {
		t.Errorf("скачивание: %d %q", resp.StatusCode, data)
	}

	for _, route := range []filesapitest.Route{filesapitest.RouteUpload, filesapitest.RouteAccessToken} {
		rec, ok := srv.LastRequest(route)
		if !ok {
			t.Fatalf("запрос %s не записан", route)
		}
		if rec.Header.Get("API-KEY") != "k" {
			t.Errorf("%s: API-KEY = %q", route, rec.Header.Get("API-KEY"))
		}
	}
}

func TestFakeService_WrongAPIKey(t *testing.T) {
	srv := filesapitest.New(t, "другой-ключ")
	c := newTestClient(t, srv.BaseURL())

	_, err := c.UploadFiles(context.Background(), singleFileRequest(t))
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, ожидается 401 (%v)", StatusCode(err), err)
	}
	if body, _ := ResponseBody(err); !strings.Contains(body, filesapitest.CodeUnauthorized) {
		t.Errorf("ResponseBody = %q", body)
	}

	_, err = c.RequestAccessToken(context.Background(), []string{"f1"})
	var tokenErr *AccessTokenError
	if !errors.As(err, &tokenErr) || tokenErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("ошибка %v, ожидалась *AccessTokenError со статусом 401", err)
	}
}

func TestFakeService_EncodedPath(t *testing.T) {
	srv := filesapitest.New(t, "k")
	c := newTestClient(t, srv.BaseURL(), WithURLEncoding())

	req, err := NewUploadRequestBuilder().
		Path("отчёты/2024 q1").
		AddFile(mustFile(t, "a.txt", "text/plain", "hello")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	resp, err := c.UploadFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	stored, _ := srv.File(resp.UploadedFiles()[0].ID())
	if stored.Path != "отчёты/2024 q1" {
		t.Errorf("path = %q", stored.Path)
	}
}

func TestFakeService_RetryAfterUnavailable(t *testing.T) {
	srv := filesapitest.New(t, "k")
	srv.Fail(filesapitest.RouteUpload, http.StatusServiceUnavailable, `{"error":"maintenance"}`, 1)

	c := newTestClient(t, srv.BaseURL(), WithRetry(time.Millisecond))
	if _, err := c.UploadFiles(context.Background(), singleFileRequest(t)); err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if n := srv.RequestCount(filesapitest.RouteUpload); n != 2 {
		t.Errorf("запросов = %d, ожидается 2", n)
	}
}

func TestFakeService_EmptyTokenData(t *testing.T) {
	srv := filesapitest.New(t, "k")
	srv.Fail(filesapitest.RouteAccessToken, http.StatusOK, `{"data":null}`, 1)
	c := newTestClient(t, srv.BaseURL())

	uploaded, err := c.UploadFiles(context.Background(), singleFileRequest(t))
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	resp, err := c.RequestAccessTokenForFile(context.Background(), uploaded.UploadedFiles()[0].ID())
	if err != nil {
		t.Fatalf("RequestAccessTokenForFile: %v", err)
	}
	if resp.Success() {
		t.Error("Success = true при data=null")
	}
}
