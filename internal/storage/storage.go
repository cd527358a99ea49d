// Package storage abstracts the object stores the flat-file exporter writes
// to, behind an upload-oriented connection interface.
package storage

import (
	"context"
	"io"

	"github.com/mitchellh/mapstructure"

	"github.com/ambientdata/horaria/pkg/util/exception"
)

const moduleName = "storage"

// Connection is one handle onto an object store.
type Connection interface {
	// Upload writes data under objectName in the connection's bucket.
	Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error
	// Type returns the backend identifier ("local" or "gcs").
	Type() string
	// Close releases the underlying client.
	Close() error
}

// Config selects and parameterizes one storage backend. It is decoded from
// the exporter's free-form options map.
type Config struct {
	// Type selects the backend: "local" (default) or "gcs".
	Type string `mapstructure:"type"`
	// Bucket is the target bucket (gcs) or subdirectory (local).
	Bucket string `mapstructure:"bucket"`
	// BaseDir is the root directory for the local backend.
	BaseDir string `mapstructure:"base_dir"`
	// CredentialsFile optionally points at a service account key for gcs.
	CredentialsFile string `mapstructure:"credentials_file"`
}

// DecodeConfig binds a free-form options map onto a Config.
func DecodeConfig(options map[string]interface{}) (Config, error) {
	cfg := Config{Type: "local", BaseDir: "output"}
	if err := mapstructure.Decode(options, &cfg); err != nil {
		return Config{}, exception.New(moduleName, "failed to decode storage options", err, false)
	}
	return cfg, nil
}

// Open establishes a connection to the configured backend.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalConnection(cfg)
	case "gcs":
		return NewGCSConnection(ctx, cfg)
	default:
		return nil, exception.Newf(moduleName, "unsupported storage type %q", cfg.Type)
	}
}
