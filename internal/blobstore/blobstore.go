// Package blobstore сохраняет загруженные файлы в объектном хранилище.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gocloud.dev/blob"

	// Драйверы хранилища выбираются по схеме адреса бакета.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// ErrEmptyKey возвращается, если ключ объекта не задан.
var ErrEmptyKey = errors.New("blobstore: object key is required")

// Store сохраняет файлы в бакете gocloud.dev.
type Store struct {
	bucket *blob.Bucket
	base   string
	logger *zap.Logger
}

// Open открывает бакет по адресу вида mem://, file:///path, s3://bucket.
func Open(ctx context.Context, bucketURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	return &Store{bucket: b, base: locatorBase(bucketURL), logger: logger}, nil
}

// Upload записывает объект и возвращает его адрес.
func (s *Store) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("new writer %s: %w", key, err)
	}

	n, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}

	s.logger.Debug("blob uploaded", zap.String("key", key), zap.Int64("bytes", n))
	return s.base + "/" + key, nil
}

// Close закрывает бакет.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// locatorBase отбрасывает параметры драйвера из адреса бакета.
func locatorBase(bucketURL string) string {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return strings.TrimRight(bucketURL, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/")
}
