package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectSink uploads run logs to an S3-compatible object store. Objects are
// keyed as "<label>/<log file name>" inside the configured bucket.
type ObjectSink struct {
	client *minio.Client
	bucket string
}

type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewObjectSink(cfg ObjectConfig) (*ObjectSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return &ObjectSink{client: client, bucket: cfg.Bucket}, nil
}

func (s *ObjectSink) Store(ctx context.Context, label, logPath string) error {
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log for archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log for archive: %w", err)
	}
	key := label + "/" + filepath.Base(logPath)
	_, err = s.client.PutObject(ctx, s.bucket, key, f, st.Size(),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
