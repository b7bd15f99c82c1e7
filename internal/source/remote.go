package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/utils"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// remoteFS is the subset of an SFTP session the remote backend needs.
type remoteFS interface {
	ReadDir(dir string) ([]os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	Remove(name string) error
	Close() error
}

// RemoteSource polls a directory on a remote host over SFTP. It has no
// background goroutine: Next lists the directory and, when it is empty,
// sleeps the poll interval on the caller's goroutine.
type RemoteSource struct {
	spec Spec
	fs   remoteFS
	log  logger.Logger
	poll time.Duration

	mu    sync.Mutex
	state State

	inflight ledger
}

// NewRemoteSource connects to spec.Host once. Authentication uses the
// local user's SSH key; failures are returned and never retried.
func NewRemoteSource(ctx context.Context, spec Spec, opts Options) (*RemoteSource, error) {
	if spec.Kind != KindRemote {
		return nil, fmt.Errorf("%w: %s is not a remote source", kerrors.ErrInvalidSource, spec)
	}

	fs, err := dialSFTP(ctx, spec, opts)
	if err != nil {
		return nil, err
	}
	return newRemoteSource(spec, fs, opts), nil
}

func newRemoteSource(spec Spec, fs remoteFS, opts Options) *RemoteSource {
	return &RemoteSource{
		spec:  spec,
		fs:    fs,
		log:   opts.Logger,
		poll:  opts.pollInterval(),
		state: Ready,
	}
}

// Next returns the oldest file in the remote directory, waiting for one to
// appear if necessary.
func (s *RemoteSource) Next(ctx context.Context) (Item, error) {
	for {
		if s.State() == Failed {
			return Item{}, kerrors.ErrSourceClosed
		}

		entries, err := s.fs.ReadDir(s.spec.Path)
		if err != nil {
			s.setState(Degraded)
			return Item{}, kerrors.NewIOError("readdir", s.spec.String(), err)
		}
		s.setState(Ready)

		name := oldestFile(entries)
		if name == "" {
			s.log.Debugf("No files in %s, sleeping %s", s.spec, s.poll)
			if err := sleepContext(ctx, s.poll); err != nil {
				return Item{}, err
			}
			continue
		}

		remotePath := path.Join(s.spec.Path, name)
		payload, err := s.fs.ReadFile(remotePath)
		if err != nil {
			s.setState(Degraded)
			return Item{}, kerrors.NewIOError("read", remotePath, err)
		}

		s.inflight.issue(name)
		s.log.Infof("New remote file available: %s", remotePath)
		return Item{ID: name, Payload: payload}, nil
	}
}

func oldestFile(entries []os.FileInfo) string {
	var files []os.FileInfo
	for _, entry := range entries {
		if entry.Mode().IsRegular() && !isHidden(entry.Name()) {
			files = append(files, entry)
		}
	}
	if len(files) == 0 {
		return ""
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ModTime().Equal(files[j].ModTime()) {
			return files[i].ModTime().Before(files[j].ModTime())
		}
		return files[i].Name() < files[j].Name()
	})
	return files[0].Name()
}

// Confirm unlinks the remote file named id.
func (s *RemoteSource) Confirm(id string) error {
	if err := s.inflight.check(id); err != nil {
		return err
	}

	remotePath := path.Join(s.spec.Path, id)
	s.log.Infof("Removing remote file: %s", remotePath)
	if err := s.fs.Remove(remotePath); err != nil {
		return kerrors.NewIOError("remove", remotePath, err)
	}

	s.inflight.settle(id)
	return nil
}

// State reports the lifecycle state.
func (s *RemoteSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RemoteSource) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Failed {
		s.state = state
	}
}

// Close ends the SFTP session and the SSH connection.
func (s *RemoteSource) Close() error {
	s.mu.Lock()
	if s.state == Failed {
		s.mu.Unlock()
		return nil
	}
	s.state = Failed
	s.mu.Unlock()

	return s.fs.Close()
}

// sftpFS adapts an SFTP client to remoteFS.
type sftpFS struct {
	client *sftp.Client
	conn   *ssh.Client
}

func (f *sftpFS) ReadDir(dir string) ([]os.FileInfo, error) {
	return f.client.ReadDir(dir)
}

func (f *sftpFS) ReadFile(name string) ([]byte, error) {
	file, err := f.client.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (f *sftpFS) Remove(name string) error {
	return f.client.Remove(name)
}

func (f *sftpFS) Close() error {
	sftpErr := f.client.Close()
	connErr := f.conn.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return connErr
}

func dialSFTP(ctx context.Context, spec Spec, opts Options) (*sftpFS, error) {
	log := opts.Logger

	user := spec.User
	if user == "" {
		current, err := utils.GetUsername()
		if err != nil {
			return nil, fmt.Errorf("unable to get current user: %w", err)
		}
		user = current
	}

	config, err := clientConfig(user, opts)
	if err != nil {
		return nil, err
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(spec.Host, strconv.Itoa(port))

	log.Infof("Connecting SSH to %s as %s", addr, user)
	dialer := net.Dialer{Timeout: opts.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, kerrors.NewIOError("dial", addr, err)
	}

	client, err := handshake(ctx, conn, addr, config, opts.dialTimeout())
	if err != nil {
		return nil, err
	}
	log.Infof("SSH authenticated")

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening SFTP session on %s: %w", addr, err)
	}
	log.Infof("SFTP session open")

	return &sftpFS{client: sftpClient, conn: client}, nil
}

// handshake runs the SSH handshake on conn, which the ssh package does
// without a deadline of its own. conn is closed on failure.
func handshake(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, kerrors.NewIOError("dial", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() || err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, kerrors.NewIOError("dial", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func clientConfig(user string, opts Options) (*ssh.ClientConfig, error) {
	home, homeErr := os.UserHomeDir()
	if homeErr != nil && needsHome(opts) {
		return nil, fmt.Errorf("unable to read home directory: %w", homeErr)
	}

	identity := expandHome(opts.IdentityFile, home)
	if identity == "" {
		identity = filepath.Join(home, ".ssh", "id_ed25519")
	}
	keyData, err := os.ReadFile(identity)
	if err != nil {
		return nil, kerrors.NewIOError("read", identity, err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("%w: SSH identity %s: %v", kerrors.ErrConfig, identity, err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if opts.InsecureIgnoreHostKey {
		// #nosec G106 -- explicitly requested by the operator
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		knownHostsFile := expandHome(opts.KnownHostsFile, home)
		if knownHostsFile == "" {
			knownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
		}
		hostKeyCallback, err = knownhosts.New(knownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("%w: known hosts %s: %v", kerrors.ErrConfig, knownHostsFile, err)
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.dialTimeout(),
	}, nil
}

func needsHome(opts Options) bool {
	if opts.IdentityFile == "" || strings.HasPrefix(opts.IdentityFile, "~/") {
		return true
	}
	if opts.InsecureIgnoreHostKey {
		return false
	}
	return opts.KnownHostsFile == "" || strings.HasPrefix(opts.KnownHostsFile, "~/")
}

// expandHome resolves a leading "~/" against home.
func expandHome(p, home string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		return filepath.Join(home, rest)
	}
	return p
}
