package transport

import (
	"context"
	"fmt"

	"github.com/sealdrop/sealdrop/internal/audit"
	"github.com/sealdrop/sealdrop/internal/bundle"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/source"
)

// BundleUploader delivers one bundle to its remote destination.
type BundleUploader interface {
	Upload(ctx context.Context, name string, b *bundle.Bundle) error
}

// Sender forwards bundles from a source to an uploader.
type Sender struct {
	Uploader BundleUploader
	Logger   logger.Logger
	Audit    *audit.Logger
	// Recipient is recorded in audit entries when set.
	Recipient string
}

// Run consumes src until an error occurs or ctx is done. A bundle is
// confirmed, and so deleted, only after the server accepted it.
func (s *Sender) Run(ctx context.Context, src source.Source) error {
	for {
		item, err := src.Next(ctx)
		if err != nil {
			return err
		}

		b, err := bundle.Parse(item.Payload)
		if err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}

		if err := s.Uploader.Upload(ctx, item.ID, b); err != nil {
			return err
		}
		s.Logger.Infof("%s sent successfully", item.ID)

		if err := src.Confirm(item.ID); err != nil {
			return err
		}

		entry := audit.Entry{Operation: "send", Item: item.ID, Bytes: len(b.Ciphertext)}
		if s.Recipient != "" {
			entry.Recipients = []string{s.Recipient}
		}
		s.Audit.Log(entry)
	}
}
