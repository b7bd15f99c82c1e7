package workflows

import (
	"context"
	"os"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/transport"
)

// ServeOptions configures the upload test server.
type ServeOptions struct {
	Addr     string
	StoreDir string
	MaxBytes int64
	Logger   logger.Logger
}

// Serve runs the upload test server until ctx is cancelled.
func Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.StoreDir != "" {
		if err := os.MkdirAll(opts.StoreDir, 0700); err != nil {
			return kerrors.NewIOError("mkdir", opts.StoreDir, err)
		}
	}

	server := transport.NewServer(transport.ServerOptions{
		Logger:   opts.Logger,
		MaxBytes: opts.MaxBytes,
		StoreDir: opts.StoreDir,
	})
	return transport.ListenAndServe(ctx, opts.Addr, server, opts.Logger)
}
