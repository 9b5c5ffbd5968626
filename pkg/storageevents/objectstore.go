package storageevents

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// ObjectStore abstracts the object-store read needed by the worker to turn
// an Event's path into content bytes; the store itself is an external
// collaborator behind this interface.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// ObjectStoreConfig configures the MinIO-backed ObjectStore.
type ObjectStoreConfig struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
}

// MinioObjectStore implements ObjectStore against a real MinIO/S3 endpoint.
type MinioObjectStore struct {
	client *minio.Client
}

// NewMinioObjectStore constructs a MinioObjectStore from cfg.
func NewMinioObjectStore(cfg ObjectStoreConfig) (*MinioObjectStore, error) {
	if cfg.EndpointURL == "" {
		return nil, errs.Validation("storageevents.NewMinioObjectStore", "endpoint url is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errs.Validation("storageevents.NewMinioObjectStore", "credentials are required")
	}

	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, errs.Dependency("storageevents.NewMinioObjectStore", "invalid endpoint url", err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}
	useSSL := cfg.UseSSL || u.Scheme == "https"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Dependency("storageevents.NewMinioObjectStore", "failed to create minio client", err)
	}
	return &MinioObjectStore{client: client}, nil
}

func (s *MinioObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, errs.Validation("storageevents.GetObject", "bucket and key are required")
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyObjectStoreErr(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyObjectStoreErr(err)
	}
	return data, nil
}

func classifyObjectStoreErr(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "NoSuchBucket") {
		return errs.Wrap(errs.KindNotFound, "storageevents.objectstore", "object not found", err)
	}
	return errs.Transient("storageevents.objectstore", "object-store call failed", err)
}

// LocalObjectStore reads objects from a local filesystem root, the
// fallback for tests and dev without a running MinIO endpoint. The bucket
// is joined as a path segment under root.
type LocalObjectStore struct {
	root string
}

// NewLocalObjectStore roots a LocalObjectStore at dir.
func NewLocalObjectStore(dir string) *LocalObjectStore {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "p8fs-objects")
	}
	return &LocalObjectStore{root: dir}
}

func (s *LocalObjectStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" || key == "" {
		return nil, errs.Validation("storageevents.GetObject", "bucket and key are required")
	}
	full := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("storageevents.objectstore", "object not found")
		}
		return nil, errs.Internal("storageevents.objectstore", "local read failed", err)
	}
	return data, nil
}

// PutObject is a test/seed convenience, not part of the ObjectStore
// interface the worker consumes.
func (s *LocalObjectStore) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errs.Internal("storageevents.objectstore", "local mkdir failed", err)
	}
	return os.WriteFile(full, data, 0o644)
}
