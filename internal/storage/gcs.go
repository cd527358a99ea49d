package storage

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// GCSConnection writes objects into a Google Cloud Storage bucket.
type GCSConnection struct {
	client *gcs.Client
	bucket string
}

// NewGCSConnection dials GCS using the configured credentials file, falling
// back to application default credentials when none is set.
func NewGCSConnection(ctx context.Context, cfg Config) (*GCSConnection, error) {
	if cfg.Bucket == "" {
		return nil, exception.Newf(moduleName, "gcs storage requires a bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, exception.New(moduleName, "failed to create GCS client", err, true)
	}
	return &GCSConnection{client: client, bucket: cfg.Bucket}, nil
}

func (c *GCSConnection) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	w := c.client.Bucket(c.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return exception.New(moduleName, fmt.Sprintf("failed to write gs://%s/%s", c.bucket, objectName), err, true)
	}
	if err := w.Close(); err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to finalize gs://%s/%s", c.bucket, objectName), err, true)
	}
	logger.Debugf("Uploaded object to gs://%s/%s.", c.bucket, objectName)
	return nil
}

func (c *GCSConnection) Type() string { return "gcs" }

func (c *GCSConnection) Close() error { return c.client.Close() }

var _ Connection = (*GCSConnection)(nil)
