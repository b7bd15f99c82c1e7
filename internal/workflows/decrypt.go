package workflows

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/sealdrop/sealdrop/internal/configs"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/pipeline"
	"github.com/sealdrop/sealdrop/internal/secrets"
)

// Sink names accepted by DecryptOptions.Sink.
const (
	SinkDir  = "dir"
	SinkMail = "mail"
	SinkLog  = "log"
)

// DecryptOptions configures the decrypt workflow.
type DecryptOptions struct {
	// ConfigPath is optional unless Sink is "mail" or the source needs [ssh]
	// settings.
	ConfigPath string

	// Source is a source specification of bundles addressed to this key.
	Source string

	// Sink is where plaintext goes: dir (default), mail or log.
	Sink string

	// Output is the directory for the dir sink.
	Output string

	// PrivateKeyPath is a JSON or PEM private key.
	PrivateKeyPath string

	// PrivateKeyData contains the private key bytes when reading from stdin.
	// If nil, the key is loaded from PrivateKeyPath.
	PrivateKeyData []byte

	// DiscardFailures confirms and drops bundles that fail to open instead
	// of stopping.
	DiscardFailures bool

	AuditLog string

	Logger logger.Logger
	Hooks  RunHooks
}

// Decrypt opens every bundle that arrives at Source and hands the plaintext
// to the chosen sink. Cancelling ctx returns nil.
//
// Returns ErrParse if the private key cannot be read.
// Returns ErrConfig if the sink is unknown or misconfigured.
func Decrypt(ctx context.Context, opts DecryptOptions) error {
	config, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	key, err := loadPrivateKey(opts.PrivateKeyData, opts.PrivateKeyPath)
	if err != nil {
		return err
	}

	sink, err := buildSink(opts, config.Mail)
	if err != nil {
		return err
	}

	decOpts := pipeline.DecryptOptions{
		Logger: opts.Logger,
		Audit:  auditLogger(opts.AuditLog),
	}
	if opts.DiscardFailures {
		decOpts.OnFailure = pipeline.DiscardFailures(opts.Logger)
	}

	dec, err := pipeline.NewDecryptor(key, sink, decOpts)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, opts.Source, sourceOptions(config, opts.Logger), opts.Hooks)
	if err != nil {
		return err
	}
	defer src.Close()

	opts.Logger.Infof("Decrypting into the %s sink", sink.Name())
	return finish(ctx, dec.Run(ctx, src))
}

func loadPrivateKey(data []byte, path string) (*rsa.PrivateKey, error) {
	if data != nil {
		key, err := secrets.ParsePrivateKeyData(data)
		if err != nil {
			return nil, fmt.Errorf("private key from stdin: %w", err)
		}
		return key, nil
	}
	if path == "" {
		return nil, fmt.Errorf("%w: a private key is required", kerrors.ErrConfig)
	}
	return secrets.LoadPrivateKey(path)
}

func buildSink(opts DecryptOptions, mail configs.Mail) (pipeline.Sink, error) {
	switch opts.Sink {
	case "", SinkDir:
		if opts.Output == "" {
			return nil, fmt.Errorf("%w: the dir sink needs an output directory", kerrors.ErrConfig)
		}
		return pipeline.DirSink{Root: opts.Output}, nil
	case SinkMail:
		sink, err := pipeline.NewMailSink(pipeline.MailConfig{
			Host:     mail.Host,
			Port:     mail.Port,
			From:     mail.From,
			To:       mail.To,
			Security: mail.Security,
			User:     mail.User,
			Pass:     mail.Pass,
		}, opts.Logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case SinkLog:
		return pipeline.LogSink{Logger: opts.Logger}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sink %q (want dir, mail or log)", kerrors.ErrConfig, opts.Sink)
	}
}
