// Package storage provides the object store that archived reports are kept in:
// a local directory for development and S3 for shared deployments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/arkilian/advisor/internal/config"
	adverrors "github.com/arkilian/advisor/internal/errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
	ErrInvalidKey     = errors.New("invalid object key")
)

// ObjectStore abstracts a flat key/value object store.
// Keys are slash-separated and never start with a slash.
type ObjectStore interface {
	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys under the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// New creates the object store selected by the archive configuration.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.Path)
	case "s3":
		s3cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3cfg.Region = cfg.S3.Region
		}
		s3cfg.Endpoint = cfg.S3.Endpoint
		s3cfg.UsePathStyle = cfg.S3.Endpoint != ""
		return NewS3Storage(ctx, cfg.S3.Bucket, s3cfg)
	default:
		return nil, adverrors.NewConfigError(fmt.Sprintf("unknown storage type %q", cfg.Type))
	}
}

// cleanKey validates and normalizes an object key.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return cleaned, nil
}
