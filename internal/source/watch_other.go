//go:build !linux

package source

import (
	"fmt"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
)

func watchDirectory(directory string, emit func(name string)) (stop func(), done <-chan error, err error) {
	return nil, nil, fmt.Errorf("watching %s: %w", directory, kerrors.ErrUnsupported)
}

func openForWriting(path string) bool { return false }
