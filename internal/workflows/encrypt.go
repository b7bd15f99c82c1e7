package workflows

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sealdrop/sealdrop/internal/bundle"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/pipeline"
	"github.com/sealdrop/sealdrop/internal/secrets"
)

// EncryptOptions configures the encrypt workflow.
type EncryptOptions struct {
	// ConfigPath is the TOML file listing the targets.
	ConfigPath string

	// Input is a source specification: a directory or [user@]host:path.
	Input string

	// Output is the root under which <recipient>/<item> bundles are written.
	Output string

	// CacheDir, when set, keeps fetched public keys on disk.
	CacheDir string

	// AuditLog, when set, receives one JSON line per confirmed item.
	AuditLog string

	Logger logger.Logger
	Hooks  RunHooks
}

// Encrypt watches Input and writes one bundle per configured target for
// every item that arrives. It runs until the source fails, an item cannot
// be processed, or ctx is cancelled; cancellation returns nil.
//
// Returns ErrNoRecipients if the configuration lists no targets.
// Returns ErrInvalidSource if Input is not a valid source specification.
func Encrypt(ctx context.Context, opts EncryptOptions) error {
	config, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.ValidateTargets(); err != nil {
		return err
	}

	if opts.Output == "" {
		return fmt.Errorf("%w: an output directory is required", kerrors.ErrConfig)
	}
	if err := os.MkdirAll(opts.Output, 0700); err != nil {
		return kerrors.NewIOError("mkdir", opts.Output, err)
	}

	recipients := make([]pipeline.Recipient, len(config.Targets))
	for i, target := range config.Targets {
		recipients[i] = pipeline.Recipient{Name: target.Name, Location: target.KeyURL}
	}

	keys := &secrets.KeyFetcher{
		Client:   &http.Client{Timeout: secrets.DefaultFetchTimeout},
		CacheDir: opts.CacheDir,
		Logger:   opts.Logger,
	}

	enc, err := pipeline.NewEncryptor(recipients, keys, bundle.DirWriter{Root: opts.Output}, pipeline.EncryptOptions{
		Logger: opts.Logger,
		Audit:  auditLogger(opts.AuditLog),
	})
	if err != nil {
		return err
	}

	src, err := openSource(ctx, opts.Input, sourceOptions(config, opts.Logger), opts.Hooks)
	if err != nil {
		return err
	}
	defer src.Close()

	opts.Logger.Infof("Encrypting for %d target(s) into %s", len(recipients), opts.Output)
	return finish(ctx, enc.Run(ctx, src))
}
