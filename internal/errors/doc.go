// Package errors provides typed error values for sealdrop.
//
// Using sentinel errors allows callers to choose a recovery policy with
// errors.Is() rather than string matching: confirm-and-discard a poison
// bundle, leave an item unconfirmed for a retry, or stop the process so a
// supervisor can restart it.
//
// # Error Categories
//
//   - Configuration errors: ErrConfig and the errors derived from it
//     (ErrParse, ErrKeyType, ErrInvalidSource, ErrNoRecipients). Fatal.
//   - Crypto errors: ErrIntegrity, ErrUnwrap, ErrCipherSpent. Corruption or
//     a recipient mismatch.
//   - Data errors: ErrFormat for malformed bundles, ErrFetch for key
//     retrieval, ErrIO (see IOError) for filesystem and remote failures.
//   - Source errors: ErrWatcherStopped, ErrUnknownItem, ErrSourceClosed.
//
// Every error derived from ErrConfig also matches ErrConfig:
//
//	if errors.Is(err, kerrors.ErrConfig) {
//	    // do not retry
//	}
//
// Wrap errors with additional context:
//
//	return fmt.Errorf("wrapping key for %s: %w", name, errors.ErrUnwrap)
package errors
