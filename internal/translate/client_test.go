package translate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// bodyTracker counts response bodies handed to the client that have not been
// closed yet.
type bodyTracker struct {
	next http.RoundTripper
	mu   sync.Mutex
	open int
}

func (t *bodyTracker) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.open++
	t.mu.Unlock()
	resp.Body = &trackedBody{ReadCloser: resp.Body, release: func() {
		t.mu.Lock()
		t.open--
		t.mu.Unlock()
	}}
	return resp, nil
}

func (t *bodyTracker) openBodies() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

type trackedBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *trackedBody) Close() error {
	b.once.Do(b.release)
	return b.ReadCloser.Close()
}

func TestTranslateClosesRetriedResponses(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":0,"message":"","data":["Bonjour"]}`)
	}))
	defer srv.Close()

	c := NewClient(config.TranslatorConfig{APIURL: srv.URL, APIKey: "key"}, zap.NewNop())
	c.retryDelay = 0
	tracker := &bodyTracker{next: http.DefaultTransport}
	c.client.Transport = tracker

	out, err := c.Translate(context.Background(), []string{"Hello"}, "en", "fr")
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if len(out) != 1 || out[0] != "Bonjour" {
		t.Fatalf("Translate returned %v", out)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("server saw %d attempts, want 3", got)
	}
	if open := tracker.openBodies(); open != 0 {
		t.Fatalf("%d response bodies left open after retries", open)
	}
}

func TestTranslateReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":1,"message":"quota exhausted","data":null}`)
	}))
	defer srv.Close()

	c := NewClient(config.TranslatorConfig{APIURL: srv.URL, APIKey: "key"}, zap.NewNop())
	c.retryDelay = 0

	if _, err := c.Translate(context.Background(), []string{"Hello"}, "en", "fr"); err == nil {
		t.Fatal("expected an error for a non-zero api code")
	}
}
