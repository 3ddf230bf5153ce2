package storage

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestUpload(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotUpsert string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotUpsert = r.Header.Get("x-upsert")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "service-key", discardLogger())
	err := c.Upload(context.Background(), "merge-uploads", "uploads/job1/a.mp4", []byte("data"), "video/mp4")
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if gotMethod != "PUT" {
		t.Errorf("method = %s, want PUT", gotMethod)
	}
	if gotPath != "/storage/v1/object/merge-uploads/uploads/job1/a.mp4" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotUpsert != "true" {
		t.Errorf("x-upsert = %q, want true", gotUpsert)
	}
	if string(gotBody) != "data" {
		t.Errorf("body = %q", gotBody)
	}
}

func TestUploadNonRetryableStatusFailsImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", discardLogger())
	err := c.Upload(context.Background(), "bucket", "key", []byte("x"), "text/plain")
	if err == nil {
		t.Fatal("Upload() error = nil, want failure on 403")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a non-retryable status", attempts)
	}
}

func TestUploadCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", discardLogger())
	if err := c.Upload(ctx, "bucket", "key", []byte("x"), "text/plain"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload() error = %v, want context.Canceled", err)
	}
}

func TestSignedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/storage/v1/object/sign/merge-output/output/job1/out.mp4" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"expiresIn": 86400`) {
			t.Errorf("body = %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"signedURL":"/object/sign/merge-output/output/job1/out.mp4?token=abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", discardLogger())
	url, err := c.SignedURL(context.Background(), "merge-output", "output/job1/out.mp4", 86400)
	if err != nil {
		t.Fatalf("SignedURL() error: %v", err)
	}
	want := srv.URL + "/object/sign/merge-output/output/job1/out.mp4?token=abc"
	if url != want {
		t.Errorf("SignedURL() = %q, want %q", url, want)
	}
}

func TestSignedURLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such key", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", discardLogger())
	if _, err := c.SignedURL(context.Background(), "bucket", "missing", 60); err == nil {
		t.Fatal("SignedURL() error = nil, want failure on 404")
	}
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey("uploads", "job-123", "clip.mp4")
	if got != "uploads/job-123/clip.mp4" {
		t.Errorf("ObjectKey() = %q", got)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"video.mp4", "video/mp4"},
		{"video.MOV", "video/quicktime"},
		{"video.mkv", "video/x-matroska"},
		{"voice.mp3", "audio/mpeg"},
		{"card.png", "image/png"},
		{"script.txt", "text/plain"},
		{"mystery.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeFor(tt.name); got != tt.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, status := range []int{408, 429, 502, 503, 504} {
		if !isRetryableStatus(status) {
			t.Errorf("isRetryableStatus(%d) = false, want true", status)
		}
	}
	for _, status := range []int{200, 400, 401, 403, 404, 413} {
		if isRetryableStatus(status) {
			t.Errorf("isRetryableStatus(%d) = true, want false", status)
		}
	}
}
