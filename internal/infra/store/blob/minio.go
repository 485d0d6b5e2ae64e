package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/you-humble/camstage/internal/domain"
	mio "github.com/you-humble/camstage/internal/libs/minio"

	"github.com/minio/minio-go/v7"
)

type minioStore struct {
	db       *minio.Client
	bucket   string
	basePath string
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*minioStore, error) {
	mioClient, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &minioStore{
		db:       mioClient,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

func (s *minioStore) Save(
	ctx context.Context,
	reader io.Reader,
	key string,
	size int64,
) (int64, string, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return 0, "", err
	}

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	hasher := sha256.New()
	info, err := s.db.PutObject(ctx, s.bucket, objectName, io.TeeReader(reader, hasher), putSize, minio.PutObjectOptions{
		ContentType: "application/vnd.android.package-archive",
	})
	if err != nil {
		return 0, "", fmt.Errorf("put object: %w", err)
	}

	return info.Size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return nil, 0, err
	}

	obj, err := s.db.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object: %w", err)
	}

	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, s.statError(key, err)
	}

	return obj, st.Size, nil
}

func (s *minioStore) Stat(ctx context.Context, key string) (int64, error) {
	objectName, err := s.objectName(key)
	if err != nil {
		return 0, err
	}

	st, err := s.db.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return 0, s.statError(key, err)
	}

	return st.Size, nil
}

func (s *minioStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    s.basePath,
		Recursive: true,
	}

	var deleted []string
	for objectInfo := range s.db.ListObjects(ctx, s.bucket, opts) {
		if objectInfo.Err != nil {
			if ctx.Err() != nil {
				return deleted, ctx.Err()
			}
			slog.Warn("minioStore: list objects", slog.String("error", objectInfo.Err.Error()))
			continue
		}

		if !objectInfo.LastModified.Before(cutoff) {
			continue
		}

		err := s.db.RemoveObject(ctx, s.bucket, objectInfo.Key, minio.RemoveObjectOptions{})
		if err != nil {
			slog.Warn("minioStore: remove old object",
				slog.String("key", objectInfo.Key),
				slog.String("error", err.Error()),
			)
			continue
		}

		deleted = append(deleted, strings.TrimPrefix(objectInfo.Key, s.basePath))
	}

	return deleted, nil
}

func (s *minioStore) statError(key string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code == minio.NoSuchKey {
		return fmt.Errorf("stat %s: %w", key, domain.ErrBlobNotFound)
	}
	return fmt.Errorf("stat object: %w", err)
}

func (s *minioStore) objectName(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return s.basePath + key, nil
}
