// Package archive moves processed extracts into the object store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"frauddwh/internal/blob"
)

// Suffix is appended to the extension-less file name of an archived extract.
const Suffix = ".backup"

// maxAttempts bounds the collision counter.
const maxAttempts = 10000

// Archiver uploads extracts to a blob.Store and removes the local copy.
type Archiver struct {
	store  blob.Store
	logger *zap.Logger
}

// New returns an Archiver writing to store.
func New(store blob.Store, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, logger: logger}
}

// KeyFor returns the archive key of path for collision counter n; n == 0 is
// the plain name, later attempts insert "(n)" before the suffix.
func KeyFor(path string, n int) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if n == 0 {
		return stem + Suffix
	}
	return fmt.Sprintf("%s(%d)%s", stem, n, Suffix)
}

// Archive stores every path under its first free key and deletes the source
// once the upload succeeded. Files are processed in order and the first
// failure stops the run; earlier files stay archived.
func (a *Archiver) Archive(ctx context.Context, token string, paths []string) ([]blob.Info, error) {
	out := make([]blob.Info, 0, len(paths))
	for _, p := range paths {
		info, err := a.archiveOne(ctx, token, p)
		if err != nil {
			return out, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (a *Archiver) archiveOne(ctx context.Context, token, path string) (blob.Info, error) {
	opts := blob.PutOptions{
		ContentType: contentType(path),
		Metadata: map[string]string{
			"batch_date":  token,
			"source_file": filepath.Base(path),
		},
	}
	for n := 0; n < maxAttempts; n++ {
		key := KeyFor(path, n)
		if _, err := a.store.Head(ctx, key); err == nil {
			continue
		} else if !errors.Is(err, blob.ErrNotFound) {
			return blob.Info{}, fmt.Errorf("archive %s: %w", path, err)
		}
		info, err := a.put(ctx, key, path, opts)
		if errors.Is(err, blob.ErrExists) {
			continue
		}
		if err != nil {
			return blob.Info{}, fmt.Errorf("archive %s: %w", path, err)
		}
		if err := os.Remove(path); err != nil {
			return info, fmt.Errorf("remove archived %s: %w", path, err)
		}
		a.logger.Info("extract archived",
			zap.String("file", filepath.Base(path)),
			zap.String("key", key),
			zap.String("driver", string(a.store.Driver())),
			zap.Int64("size_bytes", info.Size),
		)
		return info, nil
	}
	return blob.Info{}, fmt.Errorf("archive %s: no free key after %d attempts", path, maxAttempts)
}

func (a *Archiver) put(ctx context.Context, key, path string, opts blob.PutOptions) (blob.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return blob.Info{}, err
	}
	defer f.Close()
	return a.store.Put(ctx, key, f, opts)
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
