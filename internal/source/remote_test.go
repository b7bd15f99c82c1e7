package source

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"path"
	"sync"
	"testing"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	"golang.org/x/crypto/ssh"
)

type fakeInfo struct {
	name  string
	mode  fs.FileMode
	mtime time.Time
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

type fakeFile struct {
	data  []byte
	mtime time.Time
	dir   bool
}

// fakeRemote is an in-memory remoteFS rooted at one directory.
type fakeRemote struct {
	mu      sync.Mutex
	dir     string
	files   map[string]fakeFile
	listErr error
	lists   int
	closed  bool
}

func newFakeRemote(dir string) *fakeRemote {
	return &fakeRemote{dir: dir, files: make(map[string]fakeFile)}
}

func (f *fakeRemote) put(name, data string, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = fakeFile{data: []byte(data), mtime: mtime}
}

func (f *fakeRemote) ReadDir(dir string) ([]os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if dir != f.dir {
		return nil, fs.ErrNotExist
	}
	var infos []os.FileInfo
	for name, file := range f.files {
		mode := fs.FileMode(0600)
		if file.dir {
			mode = fs.ModeDir | 0700
		}
		infos = append(infos, fakeInfo{name: name, mode: mode, mtime: file.mtime})
	}
	return infos, nil
}

func (f *fakeRemote) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[path.Base(name)]
	if !ok || path.Dir(name) != f.dir {
		return nil, fs.ErrNotExist
	}
	return file.data, nil
}

func (f *fakeRemote) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path.Base(name)]; !ok || path.Dir(name) != f.dir {
		return fs.ErrNotExist
	}
	delete(f.files, path.Base(name))
	return nil
}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func newTestRemoteSource(remote *fakeRemote) *RemoteSource {
	spec := Spec{Kind: KindRemote, User: "relay", Host: "files.example", Path: remote.dir}
	return newRemoteSource(spec, remote, Options{PollInterval: 10 * time.Millisecond})
}

func TestRemoteSourceOldestFirst(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	now := time.Now()
	remote.put("b.txt", "bee", now.Add(-time.Minute))
	remote.put("a.txt", "ay", now)
	remote.put(".upload.tmp", "partial", now.Add(-time.Hour))
	remote.files["nested"] = fakeFile{dir: true, mtime: now.Add(-2 * time.Hour)}

	s := newTestRemoteSource(remote)

	item, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if item.ID != "b.txt" || string(item.Payload) != "bee" {
		t.Fatalf("Next = %q/%q, want b.txt/bee", item.ID, item.Payload)
	}

	if err := s.Confirm(item.ID); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if _, ok := remote.files["b.txt"]; ok {
		t.Fatal("Confirm should remove the remote file")
	}

	item, err = s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if item.ID != "a.txt" {
		t.Fatalf("Next = %q, want a.txt", item.ID)
	}
}

func TestRemoteSourceRedeliversUntilConfirmed(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	remote.put("report.txt", "hello world", time.Now())
	s := newTestRemoteSource(remote)

	first, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	second, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("unconfirmed item should be redelivered, got %q then %q", first.ID, second.ID)
	}
}

func TestRemoteSourcePollsEmptyDirectory(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	s := newTestRemoteSource(remote)

	go func() {
		time.Sleep(50 * time.Millisecond)
		remote.put("late.bin", "late", time.Now())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	item, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if item.ID != "late.bin" {
		t.Fatalf("Next = %q, want late.bin", item.ID)
	}

	remote.mu.Lock()
	lists := remote.lists
	remote.mu.Unlock()
	if lists < 2 {
		t.Errorf("expected the directory to be listed more than once, got %d", lists)
	}
}

func TestRemoteSourceContextCancel(t *testing.T) {
	s := newTestRemoteSource(newFakeRemote("/srv/inbox"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Next = %v, want deadline exceeded", err)
	}
}

func TestRemoteSourceListErrorDegrades(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	remote.listErr = errors.New("connection lost")
	s := newTestRemoteSource(remote)

	_, err := s.Next(context.Background())
	if !errors.Is(err, kerrors.ErrIO) {
		t.Fatalf("Next = %v, want ErrIO", err)
	}
	if s.State() != Degraded {
		t.Fatalf("State = %s, want degraded", s.State())
	}

	remote.mu.Lock()
	remote.listErr = nil
	remote.mu.Unlock()
	remote.put("x", "x", time.Now())
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next after recovery failed: %v", err)
	}
	if s.State() != Ready {
		t.Errorf("State = %s, want ready", s.State())
	}
}

func TestRemoteSourceConfirmUnknown(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	remote.put("report.txt", "x", time.Now())
	s := newTestRemoteSource(remote)

	if err := s.Confirm("report.txt"); !errors.Is(err, kerrors.ErrUnknownItem) {
		t.Fatalf("Confirm before Next = %v, want ErrUnknownItem", err)
	}
	if _, ok := remote.files["report.txt"]; !ok {
		t.Fatal("unknown Confirm must not remove anything")
	}
}

func TestRemoteSourceClose(t *testing.T) {
	remote := newFakeRemote("/srv/inbox")
	s := newTestRemoteSource(remote)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !remote.closed {
		t.Error("Close should close the session")
	}
	if s.State() != Failed {
		t.Errorf("State = %s, want failed", s.State())
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, kerrors.ErrSourceClosed) {
		t.Errorf("Next after Close = %v, want ErrSourceClosed", err)
	}
}

func TestNewRemoteSourceRejectsDirectorySpec(t *testing.T) {
	_, err := NewRemoteSource(context.Background(), Spec{Kind: KindDirectory, Path: "/tmp"}, Options{})
	if !errors.Is(err, kerrors.ErrInvalidSource) {
		t.Fatalf("NewRemoteSource = %v, want ErrInvalidSource", err)
	}
}

func TestClientConfigMissingIdentity(t *testing.T) {
	_, err := clientConfig("relay", Options{
		IdentityFile:          path.Join(t.TempDir(), "missing"),
		InsecureIgnoreHostKey: true,
	})
	if !errors.Is(err, kerrors.ErrIO) {
		t.Fatalf("clientConfig = %v, want ErrIO", err)
	}
}

func TestExpandHome(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~/.ssh/id_ed25519", "/home/relay/.ssh/id_ed25519"},
		{"/etc/ssh/key", "/etc/ssh/key"},
		{"~other/key", "~other/key"},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in, "/home/relay"); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// stalledServer accepts connections and never answers.
func stalledServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		var conns []net.Conn
		for {
			conn, err := ln.Accept()
			if err != nil {
				for _, c := range conns {
					c.Close()
				}
				return
			}
			conns = append(conns, conn)
		}
	}()
	return ln.Addr().String()
}

func TestHandshakeStalledServer(t *testing.T) {
	config := &ssh.ClientConfig{User: "relay", HostKeyCallback: ssh.InsecureIgnoreHostKey()}

	t.Run("timeout", func(t *testing.T) {
		addr := stalledServer(t)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		start := time.Now()
		if _, err := handshake(context.Background(), conn, addr, config, 200*time.Millisecond); err == nil {
			t.Fatal("handshake with a silent server succeeded")
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("handshake took %s, deadline not applied", elapsed)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		addr := stalledServer(t)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("Dial failed: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if _, err := handshake(ctx, conn, addr, config, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("handshake = %v, want context deadline exceeded", err)
		}
	})
}

func TestDialTimeoutDefault(t *testing.T) {
	if got := (Options{}).dialTimeout(); got != DefaultDialTimeout {
		t.Errorf("dialTimeout() = %s, want %s", got, DefaultDialTimeout)
	}
	if got := (Options{DialTimeout: time.Second}).dialTimeout(); got != time.Second {
		t.Errorf("dialTimeout() = %s, want 1s", got)
	}
}
