package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// LocalConnection writes objects into a directory tree under BaseDir.
type LocalConnection struct {
	cfg Config
}

// NewLocalConnection validates BaseDir, creating it when missing.
func NewLocalConnection(cfg Config) (*LocalConnection, error) {
	if cfg.BaseDir == "" {
		return nil, exception.Newf(moduleName, "local storage requires base_dir")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, exception.New(moduleName, fmt.Sprintf("failed to create base_dir %q", cfg.BaseDir), err, false)
		}
	case err != nil:
		return nil, exception.New(moduleName, fmt.Sprintf("failed to stat base_dir %q", cfg.BaseDir), err, false)
	case !info.IsDir():
		return nil, exception.Newf(moduleName, "base_dir %q is not a directory", cfg.BaseDir)
	}
	return &LocalConnection{cfg: cfg}, nil
}

func (c *LocalConnection) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := c.resolvePath(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to create directory for %q", fullPath), err, false)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to create %q", fullPath), err, false)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return exception.New(moduleName, fmt.Sprintf("failed to write %q", fullPath), err, false)
	}
	logger.Debugf("Uploaded object to %s.", fullPath)
	return nil
}

func (c *LocalConnection) Type() string { return "local" }

func (c *LocalConnection) Close() error { return nil }

// resolvePath joins BaseDir, the optional bucket subdirectory and the object
// name, rejecting paths that would escape BaseDir.
func (c *LocalConnection) resolvePath(objectName string) (string, error) {
	fullPath := filepath.Join(c.cfg.BaseDir, c.cfg.Bucket, objectName)

	absBase, err := filepath.Abs(c.cfg.BaseDir)
	if err != nil {
		return "", exception.New(moduleName, "failed to resolve base_dir", err, false)
	}
	absFull, err := filepath.Abs(fullPath)
	if err != nil {
		return "", exception.New(moduleName, "failed to resolve object path", err, false)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(os.PathSeparator)) {
		return "", exception.Newf(moduleName, "object path %q escapes base_dir %q", objectName, c.cfg.BaseDir)
	}
	return fullPath, nil
}

var _ Connection = (*LocalConnection)(nil)
