package pipeline

import (
	"context"
	"crypto/rsa"

	"github.com/sealdrop/sealdrop/internal/bundle"
)

// Recipient is a named holder of an RSA key pair. Location is where the
// public key document lives: an http(s) URL, a file:// URL or a local path.
type Recipient struct {
	Name     string
	Location string
}

// KeyResolver returns the public key for a recipient.
type KeyResolver interface {
	PublicKey(ctx context.Context, name, location string) (*rsa.PublicKey, error)
}

// BundleWriter stores a bundle for one recipient and item and returns where
// it was written. Writing the same recipient and item twice replaces the
// first bundle.
type BundleWriter interface {
	WriteBundle(recipient, item string, b *bundle.Bundle) (string, error)
}

// Sink is the final consumer of recovered plaintext.
type Sink interface {
	// Name identifies the sink in logs and audit entries.
	Name() string
	Deliver(ctx context.Context, item string, plaintext []byte) error
}
