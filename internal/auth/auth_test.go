package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticTokenSource(t *testing.T) {
	ctx := context.Background()

	t.Run("empty token is no identity", func(t *testing.T) {
		src := NewStaticTokenSource("")
		_, err := src.Token(ctx)
		if !errors.Is(err, ErrNoIdentity) {
			t.Errorf("err = %v, want ErrNoIdentity", err)
		}
	})

	t.Run("returns held token", func(t *testing.T) {
		src := NewStaticTokenSource("tok-123")
		tok, err := src.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-123" {
			t.Errorf("token = %q, want %q", tok, "tok-123")
		}
	})

	t.Run("SetToken signs out on empty", func(t *testing.T) {
		src := NewStaticTokenSource("tok-123")
		src.SetToken("")
		if _, err := src.Token(ctx); !errors.Is(err, ErrNoIdentity) {
			t.Errorf("err = %v, want ErrNoIdentity", err)
		}
	})
}

func TestFileTokenSource(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file is no identity", func(t *testing.T) {
		src := &FileTokenSource{Path: filepath.Join(dir, "absent")}
		if _, err := src.Token(ctx); !errors.Is(err, ErrNoIdentity) {
			t.Errorf("err = %v, want ErrNoIdentity", err)
		}
	})

	t.Run("reads and trims token", func(t *testing.T) {
		path := filepath.Join(dir, "token")
		if err := os.WriteFile(path, []byte("  tok-456\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		src := &FileTokenSource{Path: path}
		tok, err := src.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-456" {
			t.Errorf("token = %q, want %q", tok, "tok-456")
		}
	})
}
