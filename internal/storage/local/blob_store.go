// Package local writes catalog artifacts below a directory on disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// metaSuffix names the sidecar that records an artifact's content type, the
// local stand-in for object metadata on GCS.
const metaSuffix = ".meta.json"

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory artifacts are written below. It is created
	// when missing.
	BaseDir string
}

// Meta is the sidecar written next to every artifact.
type Meta struct {
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	root string
}

// New prepares root for writing and returns a store rooted there.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base directory %s is not a directory", root)
	}
	check, err := os.CreateTemp(root, ".writecheck-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	_ = check.Close()
	if err := os.Remove(check.Name()); err != nil {
		return nil, fmt.Errorf("remove write check: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// PutObject stores data at path below the root and returns a file:// URI.
// An existing artifact at the same path is replaced atomically.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	size, err := writeAtomic(target, func(w io.Writer) (int64, error) {
		return io.Copy(w, data)
	})
	if err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	meta, err := json.Marshal(Meta{ContentType: contentType, Size: size})
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := writeAtomic(target+metaSuffix, func(w io.Writer) (int64, error) {
		n, err := w.Write(meta)
		return int64(n), err
	}); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return "file://" + filepath.ToSlash(target), nil
}

// ReadMeta returns the sidecar recorded for path.
func (s *BlobStore) ReadMeta(path string) (Meta, error) {
	target, err := s.resolve(path)
	if err != nil {
		return Meta{}, err
	}
	raw, err := os.ReadFile(target + metaSuffix) // #nosec G304 -- resolved below root.
	if err != nil {
		return Meta{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

// resolve maps a slash-separated object path to a file below root.
func (s *BlobStore) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if strings.HasSuffix(path, metaSuffix) {
		return "", fmt.Errorf("path %q uses the reserved %s suffix", path, metaSuffix)
	}
	target := filepath.Join(s.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the storage root", path)
	}
	return target, nil
}

// writeAtomic streams into a sibling temp file and renames it over target.
func writeAtomic(target string, fill func(io.Writer) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := fill(tmp)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("rename into place: %w", err)
	}
	return n, nil
}
