package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sealdrop/sealdrop/internal/audit"
	"github.com/sealdrop/sealdrop/internal/bundle"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/secrets"
	"github.com/sealdrop/sealdrop/internal/source"
)

// EncryptOptions configures an Encryptor.
type EncryptOptions struct {
	Logger logger.Logger
	// Audit records every confirmed item. Nil disables it.
	Audit *audit.Logger
}

// Encryptor turns each source item into one bundle per recipient.
type Encryptor struct {
	recipients []Recipient
	keys       KeyResolver
	writer     BundleWriter
	log        logger.Logger
	audit      *audit.Logger
}

// NewEncryptor returns ErrNoRecipients when recipients is empty and
// ErrInvalidName when a recipient name cannot be a directory name.
func NewEncryptor(recipients []Recipient, keys KeyResolver, writer BundleWriter, opts EncryptOptions) (*Encryptor, error) {
	if len(recipients) == 0 {
		return nil, kerrors.ErrNoRecipients
	}

	seen := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		if err := bundle.ValidateName(r.Name); err != nil {
			return nil, fmt.Errorf("recipient: %w", err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: recipient %q listed twice", kerrors.ErrConfig, r.Name)
		}
		seen[r.Name] = true
	}

	return &Encryptor{
		recipients: append([]Recipient(nil), recipients...),
		keys:       keys,
		writer:     writer,
		log:        opts.Logger,
		audit:      opts.Audit,
	}, nil
}

// Process encrypts item for every recipient, each under its own fresh key,
// and persists the bundles as <recipient>/<item.ID>. Every recipient is
// attempted; the returned error joins the failures, each tagged with its
// recipient. The paths of the bundles that were written are returned either
// way.
func (e *Encryptor) Process(ctx context.Context, item source.Item) ([]string, error) {
	e.log.Infof("Handling item: %s", item.ID)

	var (
		paths []string
		errs  []error
	)
	for _, r := range e.recipients {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		e.log.Debugf(".. with recipient %s", r.Name)
		path, err := e.encryptFor(ctx, r, item)
		if err != nil {
			e.log.Warnf("Encrypting %s for %s failed: %v", item.ID, r.Name, err)
			errs = append(errs, fmt.Errorf("recipient %s: %w", r.Name, err))
			continue
		}
		paths = append(paths, path)
	}

	if len(errs) > 0 {
		return paths, errors.Join(errs...)
	}
	e.log.Infof("Done with %s", item.ID)
	return paths, nil
}

func (e *Encryptor) encryptFor(ctx context.Context, r Recipient, item source.Item) (string, error) {
	pub, err := e.keys.PublicKey(ctx, r.Name, r.Location)
	if err != nil {
		return "", err
	}

	c, err := secrets.NewCipher(nil)
	if err != nil {
		return "", err
	}
	defer c.Wipe()

	ciphertext, err := c.Encrypt(item.Payload)
	if err != nil {
		return "", err
	}

	key := c.Key()
	defer secrets.Zero(key)

	wrapped, err := secrets.WrapKey(pub, key)
	if err != nil {
		return "", err
	}

	b := &bundle.Bundle{Ciphertext: ciphertext, WrappedKey: wrapped}
	return e.writer.WriteBundle(r.Name, item.ID, b)
}

// Run consumes src until an error occurs or ctx is done. An item is
// confirmed only when every recipient's bundle was written; otherwise Run
// stops and the item is left in place to be retried in full.
func (e *Encryptor) Run(ctx context.Context, src source.Source) error {
	for {
		item, err := src.Next(ctx)
		if err != nil {
			return err
		}

		_, err = e.Process(ctx, item)
		size := len(item.Payload)
		secrets.Zero(item.Payload)
		if err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}

		if err := src.Confirm(item.ID); err != nil {
			return err
		}

		e.audit.Log(audit.Entry{
			Operation:  "encrypt",
			Item:       item.ID,
			Recipients: e.names(),
			Bytes:      size,
		})
	}
}

func (e *Encryptor) names() []string {
	names := make([]string, len(e.recipients))
	for i, r := range e.recipients {
		names[i] = r.Name
	}
	return names
}
