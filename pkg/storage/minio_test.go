package storage

import (
	"context"
	"errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, rel, want string
	}{
		{"hls/abc", "480p/index.m3u8", "hls/abc/480p/index.m3u8"},
		{"/hls/abc", "master.m3u8", "hls/abc/master.m3u8"},
		{"thumbnail", "abc.jpg", "thumbnail/abc.jpg"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.prefix, tt.rel); got != tt.want {
			t.Errorf("ObjectName(%q, %q) = %q, want %q", tt.prefix, tt.rel, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"index.m3u8":     "application/vnd.apple.mpegurl",
		"segment_001.ts": "video/MP2T",
		"thumb.JPG":      "image/jpeg",
		"notes.txt":      "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

const accessDenied = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message><Resource>/media</Resource><RequestId>1</RequestId></Error>`

func TestRemovePrefixReturnsListError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, accessDenied)
	}))
	defer srv.Close()

	client, err := minio.New(strings.TrimPrefix(srv.URL, "http://"), &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	mirror := NewMinioMirror(client, "media")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = mirror.RemovePrefix(ctx, "hls/abc/")
	if ctx.Err() != nil {
		t.Fatal("RemovePrefix blocked until the deadline")
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "AccessDenied" {
		t.Fatalf("RemovePrefix error = %v, want AccessDenied", err)
	}
}
