// Package scratch manages request-scoped temporary files handed to vendor clients that read audio
// from disk.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
)

// File is a temporary file owned by a single request. Release must be deferred right after a
// successful Acquire.
type File struct {
	path string
	once sync.Once
}

// Acquire writes data to a uniquely named file in dir (os.TempDir when empty). pattern follows
// os.CreateTemp, e.g. "audio-*.wav".
func Acquire(dir, pattern string, data []byte) (*File, error) {
	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := tempFile.Name()
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(name)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		os.Remove(name)
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	return &File{path: name}, nil
}

func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Release removes the file. Failures are logged and swallowed; calling it more than once is safe.
func (f *File) Release(logger *zap.Logger) {
	if f == nil {
		return
	}
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if logger != nil {
				logger.Warn("could not delete temporary file", zap.String("path", f.path), zap.Error(err))
			}
		}
	})
}
