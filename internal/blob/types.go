// Package blob re-exports the core object store abstractions and selects a
// concrete driver. Packages outside internal/blob depend on blob.Store and
// never import the infra drivers directly.
package blob

import (
	"frauddwh/internal/blob/core"
)

type (
	// Driver identifies an object store backend.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface for object store backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned by Put for a key that is already stored.
	ErrExists = core.ErrExists
	// ErrNotFound is returned for absent keys.
	ErrNotFound = core.ErrNotFound
)
