package filesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setup(t *testing.T) (*Source, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifest := filepath.Join(dir, "manifest.yaml")
	content := "resources:\n  - a.txt\n  - missing.txt\n  - a.txt\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(manifest, root), root
}

func TestLoadManifest(t *testing.T) {
	src, _ := setup(t)

	manifest, err := src.LoadManifest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a.txt", "missing.txt", "a.txt"}
	if len(manifest) != len(want) {
		t.Fatalf("expected %v, got %v", want, manifest)
	}
	for i := range want {
		if manifest[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], manifest[i])
		}
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	src := New(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
	if _, err := src.LoadManifest(context.Background()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestLoadResource(t *testing.T) {
	src, _ := setup(t)
	ctx := context.Background()

	if err := src.LoadResource(ctx, "a.txt"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := src.LoadResource(ctx, "missing.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadResource_RejectsEscape(t *testing.T) {
	src, _ := setup(t)

	for _, id := range []string{"", "../secret", "/etc/passwd"} {
		if err := src.LoadResource(context.Background(), id); !errors.Is(err, ErrInvalidResourceID) {
			t.Errorf("id %q: expected ErrInvalidResourceID, got %v", id, err)
		}
	}
}

func TestInitialize(t *testing.T) {
	src, root := setup(t)
	if err := src.Initialize(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	if err := src.Initialize(context.Background()); err == nil {
		t.Fatal("expected error once root is gone")
	}
}
