package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

// ValidateSourceURL checks that a job source URL is an absolute http or
// https URL. Other schemes, including file paths, are rejected.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("source url has no host")
	}
	return nil
}

// Downloader fetches source videos over HTTP, streaming them to local disk.
type Downloader struct {
	client *http.Client
	logger *zap.Logger
}

// NewDownloader creates a downloader with a shared HTTP client.
func NewDownloader(logger *zap.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 30 * time.Minute},
		logger: logger,
	}
}

// Download streams the source URL into destPath and returns the byte count.
func (d *Downloader) Download(ctx context.Context, sourceURL, destPath string) (int64, error) {
	if err := ValidateSourceURL(sourceURL); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create download target: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("download stream interrupted: %w", err)
	}

	d.logger.Info("source video downloaded",
		zap.String("url", sourceURL),
		zap.Int64("bytes", written))
	return written, nil
}
