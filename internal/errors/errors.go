package errors

import (
	"errors"
	"fmt"
)

// Configuration errors are fatal and never retried.
var (
	// ErrConfig indicates invalid configuration: a bad source specification,
	// a malformed key document or an unusable key.
	ErrConfig = errors.New("invalid configuration")

	// ErrParse indicates a key document failed strict schema validation.
	ErrParse = fmt.Errorf("%w: malformed key document", ErrConfig)

	// ErrKeyType indicates a key document is not of type RSA.
	ErrKeyType = fmt.Errorf("%w: unsupported key type", ErrConfig)

	// ErrInvalidSource indicates a source specification string is not understood.
	ErrInvalidSource = fmt.Errorf("%w: invalid source specification", ErrConfig)

	// ErrNoRecipients indicates an encryption pipeline was configured without targets.
	ErrNoRecipients = fmt.Errorf("%w: no recipients configured", ErrConfig)

	// ErrInvalidKeyLength indicates a symmetric key has an unexpected length.
	ErrInvalidKeyLength = fmt.Errorf("%w: invalid symmetric key length", ErrConfig)

	// ErrZeroKey indicates a caller supplied the all-zero symmetric key.
	ErrZeroKey = fmt.Errorf("%w: all-zero symmetric key", ErrConfig)

	// ErrInvalidName indicates a recipient or item name is not a single path element.
	ErrInvalidName = fmt.Errorf("%w: invalid name", ErrConfig)
)

// Cryptographic errors signal corruption or a recipient mismatch.
var (
	// ErrIntegrity indicates ciphertext is malformed or its padding is invalid.
	ErrIntegrity = errors.New("ciphertext integrity check failed")

	// ErrUnwrap indicates a wrapped key could not be recovered with the private key.
	// This usually means the bundle was wrapped for a different recipient.
	ErrUnwrap = errors.New("failed to unwrap symmetric key")

	// ErrCipherSpent indicates a single-use cipher was used a second time.
	ErrCipherSpent = errors.New("cipher already used")
)

// Data errors.
var (
	// ErrFormat indicates bundle bytes do not follow the wire format.
	ErrFormat = errors.New("malformed bundle")

	// ErrFetch indicates a recipient key could not be retrieved.
	ErrFetch = errors.New("failed to fetch recipient key")

	// ErrIO indicates a filesystem or remote I/O failure. See IOError.
	ErrIO = errors.New("i/o failure")

	// ErrUpload indicates the upload endpoint rejected a bundle.
	ErrUpload = errors.New("upload rejected")
)

// Source errors.
var (
	// ErrWatcherStopped indicates the background directory watcher has exited.
	// The source is not restarted.
	ErrWatcherStopped = errors.New("directory watcher stopped")

	// ErrUnknownItem indicates a confirm for an id that is not in flight.
	ErrUnknownItem = errors.New("unknown or already confirmed item")

	// ErrSourceClosed indicates the source has been closed.
	ErrSourceClosed = errors.New("source closed")

	// ErrUnsupported indicates the backend is not available on this platform.
	ErrUnsupported = errors.New("unsupported on this platform")
)

// IOError records the operation and path of a failed I/O call.
// It matches ErrIO as well as the underlying error.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// NewIOError wraps err with the operation and path that produced it.
func NewIOError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}
