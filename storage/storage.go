package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobStore persists opaque deliverable content and returns a stable URL.
type BlobStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

// DirStore writes blobs into a single directory on local disk. Good enough
// for a single-node deployment; swap in an object store behind the same
// interface for anything bigger.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		root = "data/blobs"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("storage: store: %w", err)
	}

	name := uuid.NewString() + extensionFor(contentType)
	path := filepath.Join(d.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", name, err)
	}
	return "file://" + path, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "application/zip":
		return ".zip"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "text/plain":
		return ".txt"
	}
	return ".bin"
}
