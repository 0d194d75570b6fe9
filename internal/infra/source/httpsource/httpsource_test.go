package httpsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newServer(t *testing.T, initCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["a","b c","missing"]`))
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/a", "/files/b c":
			_, _ = w.Write([]byte("payload"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/init", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		initCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestSource(t *testing.T) {
	var initCalls atomic.Int32
	server := newServer(t, &initCalls)

	src := New(Config{
		ManifestURL:     server.URL + "/manifest",
		ResourceBaseURL: server.URL + "/files/",
		InitURL:         server.URL + "/init",
		Timeout:         5 * time.Second,
	})
	defer src.Close()
	ctx := context.Background()

	manifest, err := src.LoadManifest(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if manifest.Len() != 3 || manifest[1] != "b c" {
		t.Fatalf("unexpected manifest: %v", manifest)
	}

	if err := src.LoadResource(ctx, "a"); err != nil {
		t.Errorf("load a: %v", err)
	}
	if err := src.LoadResource(ctx, "b c"); err != nil {
		t.Errorf("load 'b c': %v", err)
	}

	err = src.LoadResource(ctx, "missing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("expected 404 StatusError, got %v", err)
	}

	if err := src.Initialize(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if initCalls.Load() != 1 {
		t.Errorf("expected 1 init call, got %d", initCalls.Load())
	}
}

func TestInitialize_NoHook(t *testing.T) {
	src := New(Config{})
	if err := src.Initialize(context.Background()); err != nil {
		t.Fatalf("expected nil without hook, got %v", err)
	}
}

func TestLoadManifest_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	src := New(Config{ManifestURL: server.URL, Timeout: time.Second})
	_, err := src.LoadManifest(context.Background())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 StatusError, got %v", err)
	}
	if statusErr.Body != "boom" {
		t.Errorf("expected body 'boom', got %q", statusErr.Body)
	}
}
