// Package filesource reads the manifest and resources from local disk.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/warmup/internal/core/domain"
)

var ErrInvalidResourceID = errors.New("invalid resource id")

// manifestFile is the on-disk manifest layout.
type manifestFile struct {
	Resources []string `yaml:"resources"`
}

// Source loads resources as files under a root directory.
type Source struct {
	manifestPath string
	root         string
}

func New(manifestPath, root string) *Source {
	return &Source{manifestPath: manifestPath, root: root}
}

// LoadManifest parses the YAML manifest.
func (s *Source) LoadManifest(ctx context.Context) (domain.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return domain.Manifest(mf.Resources), nil
}

// LoadResource reads <root>/<id> to the end.
func (s *Source) LoadResource(ctx context.Context, id domain.ResourceID) error {
	path, err := s.resolve(id)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open resource: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(io.Discard, contextReader{ctx: ctx, r: f}); err != nil {
		return fmt.Errorf("read resource %s: %w", id, err)
	}
	return nil
}

// Initialize checks the root directory is still there.
func (s *Source) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root %s is not a directory", s.root)
	}
	return nil
}

// resolve keeps ids inside the root directory.
func (s *Source) resolve(id domain.ResourceID) (string, error) {
	if id == "" || filepath.IsAbs(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidResourceID, id)
	}
	clean := filepath.Clean(id)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidResourceID, id)
	}
	return filepath.Join(s.root, clean), nil
}

// contextReader stops a long read once ctx ends.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
