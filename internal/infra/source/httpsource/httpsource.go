// Package httpsource fetches the manifest and resources over HTTP.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/warmup/internal/core/domain"
)

// Config holds the endpoints of a remote source.
type Config struct {
	ManifestURL     string
	ResourceBaseURL string
	InitURL         string // optional
	Timeout         time.Duration
}

// Source talks to a manifest endpoint, a resource store and an init hook.
type Source struct {
	cfg        Config
	httpClient *http.Client
}

// New creates an HTTP source with a pooled client.
func New(cfg Config) *Source {
	return &Source{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// LoadManifest GETs the manifest URL and decodes a JSON array of ids.
func (s *Source) LoadManifest(ctx context.Context) (domain.Manifest, error) {
	resp, err := s.do(ctx, http.MethodGet, s.cfg.ManifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return domain.Manifest(ids), nil
}

// LoadResource GETs <base>/<id> and drains the body.
func (s *Source) LoadResource(ctx context.Context, id domain.ResourceID) error {
	target := strings.TrimRight(s.cfg.ResourceBaseURL, "/") + "/" + url.PathEscape(id)

	resp, err := s.do(ctx, http.MethodGet, target)
	if err != nil {
		return fmt.Errorf("fetch resource %s: %w", id, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read resource %s: %w", id, err)
	}
	return nil
}

// Initialize POSTs to the init hook. No hook means nothing to do.
func (s *Source) Initialize(ctx context.Context) error {
	if s.cfg.InitURL == "" {
		return nil
	}
	resp, err := s.do(ctx, http.MethodPost, s.cfg.InitURL)
	if err != nil {
		return fmt.Errorf("init hook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close cleans up idle connections.
func (s *Source) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// do sends a request and turns non-2xx responses into errors.
func (s *Source) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}
