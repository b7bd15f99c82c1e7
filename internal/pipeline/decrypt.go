package pipeline

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/sealdrop/sealdrop/internal/audit"
	"github.com/sealdrop/sealdrop/internal/bundle"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/secrets"
	"github.com/sealdrop/sealdrop/internal/source"
)

// FailureHandler decides what happens to an item that could not be
// decrypted. Returning nil confirms and discards the item; returning an
// error stops Run with the item left in place.
type FailureHandler func(item source.Item, err error) error

// DecryptOptions configures a Decryptor.
type DecryptOptions struct {
	Logger logger.Logger
	Audit  *audit.Logger
	// OnFailure is consulted for items that fail to open. Nil stops Run on
	// the first failure.
	OnFailure FailureHandler
}

// Decryptor opens bundles addressed to one private key.
type Decryptor struct {
	key       *rsa.PrivateKey
	sink      Sink
	log       logger.Logger
	audit     *audit.Logger
	onFailure FailureHandler
}

// NewDecryptor returns a Decryptor delivering to sink.
func NewDecryptor(key *rsa.PrivateKey, sink Sink, opts DecryptOptions) (*Decryptor, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	return &Decryptor{
		key:       key,
		sink:      sink,
		log:       opts.Logger,
		audit:     opts.Audit,
		onFailure: opts.OnFailure,
	}, nil
}

// Open recovers the plaintext from an encoded bundle. It fails with
// ErrFormat for a malformed bundle, ErrUnwrap when the key was not wrapped
// for this private key, and ErrIntegrity when the ciphertext is damaged.
func (d *Decryptor) Open(data []byte) ([]byte, error) {
	b, err := bundle.Parse(data)
	if err != nil {
		return nil, err
	}

	key, err := secrets.UnwrapKey(d.key, b.WrappedKey)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero(key)

	c, err := secrets.NewCipher(key)
	if err != nil {
		return nil, err
	}
	defer c.Wipe()

	return c.Decrypt(b.Ciphertext)
}

// Run consumes src until an error occurs or ctx is done. Items that open are
// delivered to the sink and confirmed; items that do not are handed to the
// failure handler and never retried in-process.
func (d *Decryptor) Run(ctx context.Context, src source.Source) error {
	for {
		item, err := src.Next(ctx)
		if err != nil {
			return err
		}

		plaintext, err := d.Open(item.Payload)
		if err != nil {
			if handled := d.fail(item, err); handled != nil {
				return handled
			}
			if err := src.Confirm(item.ID); err != nil {
				return err
			}
			continue
		}

		err = d.sink.Deliver(ctx, item.ID, plaintext)
		size := len(plaintext)
		secrets.Zero(plaintext)
		if err != nil {
			return fmt.Errorf("delivering %s to %s: %w", item.ID, d.sink.Name(), err)
		}

		if err := src.Confirm(item.ID); err != nil {
			return err
		}
		d.log.Infof("Delivered %s to %s", item.ID, d.sink.Name())

		d.audit.Log(audit.Entry{
			Operation: "decrypt",
			Item:      item.ID,
			Bytes:     size,
			Sink:      d.sink.Name(),
		})
	}
}

func (d *Decryptor) fail(item source.Item, err error) error {
	err = fmt.Errorf("item %s: %w", item.ID, err)
	if d.onFailure == nil {
		return err
	}
	if handled := d.onFailure(item, err); handled != nil {
		return handled
	}
	d.log.Warnf("Discarding %s: %v", item.ID, err)
	return nil
}

// DiscardFailures is a FailureHandler that logs and drops every item that
// fails to open.
func DiscardFailures(log logger.Logger) FailureHandler {
	return func(item source.Item, err error) error {
		log.Errorf("%v", err)
		return nil
	}
}
