package workflows

import (
	"context"
	"path/filepath"

	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/transport"
)

// SendOptions configures the send workflow.
type SendOptions struct {
	ConfigPath string

	// Input is a source specification, usually <output>/<recipient>.
	Input string

	// URL overrides [upload] url.
	URL string

	// Retries overrides [upload] retries when set.
	Retries *int

	AuditLog string

	Logger logger.Logger
	Hooks  RunHooks
}

// Send uploads every bundle that arrives at Input and deletes it once the
// server accepts it. Cancelling ctx returns nil.
//
// Returns ErrConfig if no upload URL is configured.
// Returns ErrUpload when the server rejects a bundle.
func Send(ctx context.Context, opts SendOptions) error {
	config, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.URL != "" {
		config.Upload.URL = opts.URL
	}
	if opts.Retries != nil {
		config.Upload.Retries = *opts.Retries
	}
	if err := config.ValidateUpload(); err != nil {
		return err
	}

	uploader, err := transport.NewUploader(config.Upload.URL, transport.UploaderOptions{
		Logger:  opts.Logger,
		Retries: config.Upload.Retries,
	})
	if err != nil {
		return err
	}

	src, err := openSource(ctx, opts.Input, sourceOptions(config, opts.Logger), opts.Hooks)
	if err != nil {
		return err
	}
	defer src.Close()

	sender := &transport.Sender{
		Uploader: uploader,
		Logger:   opts.Logger,
		Audit:    auditLogger(opts.AuditLog),
		// Bundles live under <output>/<recipient>.
		Recipient: filepath.Base(opts.Input),
	}

	opts.Logger.Infof("Sending bundles from %s to %s", opts.Input, config.Upload.URL)
	return finish(ctx, sender.Run(ctx, src))
}
