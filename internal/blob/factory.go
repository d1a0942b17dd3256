package blob

import (
	"context"
	"fmt"

	fsdriver "frauddwh/internal/infra/blob/fs"
	"frauddwh/internal/infra/blob/memory"
	s3driver "frauddwh/internal/infra/blob/s3"
)

// S3Config mirrors the S3 driver settings.
type S3Config = s3driver.Config

// Config selects and parameterises a driver.
type Config struct {
	Driver Driver // fs|s3|memory, default fs
	FSRoot string // directory root when Driver is fs
	S3     S3Config
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fsdriver.New(cfg.FSRoot)
	case DriverS3:
		return s3driver.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewFilesystem returns a filesystem store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsdriver.New(root) }

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewMockS3ForTests returns an S3 store backed by a fake transport.
func NewMockS3ForTests(prefix string) Store { return s3driver.NewMockForTests(prefix) }
