package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// DefaultPollInterval is how long the remote backend waits after finding an
// empty directory.
const DefaultPollInterval = 5 * time.Second

// Item is one arrived payload. ID names the backing resource (a file name)
// and is what Confirm expects.
type Item struct {
	ID      string
	Payload []byte
}

// Source yields arrived items in arrival order. Next never removes the
// backing resource; Confirm does, and must be called exactly once per
// successfully processed item.
type Source interface {
	// Next blocks until an item is available, the context is done, or the
	// source fails.
	Next(ctx context.Context) (Item, error)

	// Confirm deletes the resource behind id. Confirming an id that was
	// never issued, or was already confirmed, returns ErrUnknownItem.
	Confirm(id string) error

	// State reports where the source is in its lifecycle.
	State() State

	Close() error
}

// State is the lifecycle of a Source.
type State int

const (
	// Idle means the backend is not yet available.
	Idle State = iota
	// Ready means the backend is reachable and yielding items.
	Ready
	// Degraded means the backend became unreachable or its worker stopped.
	Degraded
	// Failed is terminal.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind selects a backend.
type Kind int

const (
	KindDirectory Kind = iota + 1
	KindRemote
)

// Spec is a parsed source specification string.
type Spec struct {
	Kind Kind
	Path string
	User string
	Host string
}

func (s Spec) String() string {
	if s.Kind == KindDirectory {
		return s.Path
	}
	if s.User != "" {
		return s.User + "@" + s.Host + ":" + s.Path
	}
	return s.Host + ":" + s.Path
}

// ParseSpec parses a source specification. An absolute path selects the
// directory-watch backend and [user@]host:path selects the remote-poll
// backend. Anything else is ErrInvalidSource.
func ParseSpec(s string) (Spec, error) {
	switch {
	case strings.HasPrefix(s, "/"):
		return Spec{Kind: KindDirectory, Path: filepath.Clean(s)}, nil

	case strings.Contains(s, ":"):
		connection, remotePath, _ := strings.Cut(s, ":")
		if remotePath == "" || strings.Contains(remotePath, ":") {
			return Spec{}, fmt.Errorf("%w: %q: expected [user@]host:path", kerrors.ErrInvalidSource, s)
		}

		spec := Spec{Kind: KindRemote, Path: remotePath, Host: connection}
		if user, host, ok := strings.Cut(connection, "@"); ok {
			if user == "" || strings.Contains(host, "@") {
				return Spec{}, fmt.Errorf("%w: %q: invalid user", kerrors.ErrInvalidSource, s)
			}
			spec.User, spec.Host = user, host
		}
		if spec.Host == "" {
			return Spec{}, fmt.Errorf("%w: %q: missing host", kerrors.ErrInvalidSource, s)
		}
		return spec, nil

	default:
		return Spec{}, fmt.Errorf("%w: %q", kerrors.ErrInvalidSource, s)
	}
}

// Options configures the backends. The zero value is usable.
type Options struct {
	Logger logger.Logger

	// PollInterval overrides DefaultPollInterval for the remote backend.
	PollInterval time.Duration

	// IdentityFile is the SSH private key; defaults to ~/.ssh/id_ed25519.
	IdentityFile string
	// KnownHostsFile defaults to ~/.ssh/known_hosts.
	KnownHostsFile string
	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool
	// Port defaults to 22.
	Port int
	// DialTimeout bounds the TCP connect and SSH handshake. Defaults to
	// DefaultDialTimeout.
	DialTimeout time.Duration
}

// DefaultDialTimeout bounds connecting to a remote source when
// Options.DialTimeout is not set.
const DefaultDialTimeout = 30 * time.Second

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return DefaultDialTimeout
}

func (o Options) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return DefaultPollInterval
}

// Open parses spec and connects the matching backend. Connection failures
// are returned, never retried.
func Open(ctx context.Context, spec string, opts Options) (Source, error) {
	parsed, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	switch parsed.Kind {
	case KindDirectory:
		return NewDirSource(parsed.Path, opts)
	case KindRemote:
		return NewRemoteSource(ctx, parsed, opts)
	default:
		return nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidSource, spec)
	}
}

// ledger tracks issued, unconfirmed ids.
type ledger struct {
	mu     sync.Mutex
	issued map[string]bool
}

func (l *ledger) issue(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.issued == nil {
		l.issued = make(map[string]bool)
	}
	l.issued[id] = true
}

func (l *ledger) check(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.issued[id] {
		return fmt.Errorf("%w: %q", kerrors.ErrUnknownItem, id)
	}
	return nil
}

func (l *ledger) settle(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.issued, id)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
