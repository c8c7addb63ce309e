package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage persists generated artifacts (images, 3D models) under opaque
// keys. The memory layer only ever sees the resulting key/path strings.
type Storage interface {
	// Put returns a writer to save an artifact under the key
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an artifact by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// localStorage implements Storage on a local directory.
type localStorage struct {
	baseDir string
}

// NewLocalStorage creates a directory-backed artifact storage.
func NewLocalStorage(baseDir string) (Storage, error) {
	if baseDir == "" {
		return nil, goerr.New("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact directory", goerr.V("dir", baseDir))
	}

	return &localStorage{baseDir: baseDir}, nil
}

func (s *localStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", goerr.New("invalid artifact key", goerr.V("key", key))
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *localStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact subdirectory", goerr.V("key", key))
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create artifact file", goerr.V("key", key))
	}
	return f, nil
}

func (s *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open artifact", goerr.V("key", key))
	}
	return f, nil
}

// gcsStorage implements Storage on a Cloud Storage bucket.
type gcsStorage struct {
	bucketName string
	client     *storage.Client
}

// NewGCSStorage creates a Cloud Storage backed artifact storage.
func NewGCSStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &gcsStorage{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *gcsStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	return obj.NewWriter(ctx), nil
}

func (s *gcsStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.client.Bucket(s.bucketName).Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read artifact from storage", goerr.V("key", key))
	}

	return reader, nil
}
