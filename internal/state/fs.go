package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
)

// FileSystem is the storage a Store persists its record to.
type FileSystem interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// WriteFileAtomic replaces name with data such that a reader never
	// observes a partially written file.
	WriteFileAtomic(ctx context.Context, name string, data []byte, perm os.FileMode) error
}

// LocalFS stores state on the local disk.
type LocalFS struct{}

// ReadFile implements FileSystem.
func (LocalFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}

// WriteFileAtomic creates the parent directory if needed and replaces name
// through a synced temporary file in the same directory.
func (LocalFS) WriteFileAtomic(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	if err := atomicwriter.WriteFile(name, data, perm); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
