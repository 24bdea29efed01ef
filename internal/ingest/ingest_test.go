package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestValidateSourceURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https", "https://example.com/video.mp4", false},
		{"http", "http://example.com/video.mp4", false},
		{"file scheme", "file:///etc/passwd", true},
		{"ftp scheme", "ftp://example.com/video.mp4", true},
		{"relative path", "videos/input.mp4", true},
		{"empty", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSourceURL(tc.url)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSourceURL(%q) error = %v, wantErr %v", tc.url, err, tc.wantErr)
			}
		})
	}
}

func TestDownloadStreamsToDisk(t *testing.T) {
	payload := []byte("fake video bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "source.mp4")
	d := NewDownloader(zap.NewNop())

	n, err := d.Download(context.Background(), srv.URL, dest)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("Download wrote %d bytes, want %d", n, len(payload))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("downloaded content mismatch")
	}
}

func TestDownloadRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(zap.NewNop())
	_, err := d.Download(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x.mp4"))
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}
