package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// DirSource watches one local directory. A background goroutine turns
// inotify events into an unbounded FIFO of file names that Next consumes.
//
// Files already present when the source starts are queued too, so items
// left unconfirmed by a previous run are delivered again. A file some
// process still has open for writing is skipped until its writer closes it.
// Hidden files are ignored; writers should create them and rename into
// place.
type DirSource struct {
	dir string
	log logger.Logger

	mu       sync.Mutex
	queue    []string
	queued   map[string]bool
	state    State
	watchErr error
	closed   bool

	notify  chan struct{}
	dead    chan struct{}
	closing chan struct{}
	stop    func()

	inflight ledger
}

// NewDirSource starts watching dir.
func NewDirSource(dir string, opts Options) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, kerrors.NewIOError("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", kerrors.ErrInvalidSource, dir)
	}

	s := &DirSource{
		dir:     dir,
		log:     opts.Logger,
		queued:  make(map[string]bool),
		state:   Idle,
		notify:  make(chan struct{}, 1),
		dead:    make(chan struct{}),
		closing: make(chan struct{}),
	}

	s.log.Infof("Starting watcher on %s", dir)
	stop, done, err := watchDirectory(dir, s.push)
	if err != nil {
		return nil, err
	}
	s.stop = stop
	s.setState(Ready)

	go s.monitor(done)

	// Scan after the watch is installed so nothing written in between is missed.
	if err := s.scan(); err != nil {
		s.Close()
		return nil, err
	}

	s.log.Infof("Watching for events in %s", dir)
	return s, nil
}

func (s *DirSource) monitor(done <-chan error) {
	err := <-done

	s.mu.Lock()
	if err == nil && !s.closed {
		err = errors.New("watcher exited its loop")
	}
	s.watchErr = err
	if s.state != Failed {
		s.state = Degraded
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Errorf("Watcher on %s stopped: %v", s.dir, err)
	}
	close(s.dead)
}

func (s *DirSource) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return kerrors.NewIOError("readdir", s.dir, err)
	}

	type pending struct {
		name string
		info fs.FileInfo
	}
	var files []pending
	for _, entry := range entries {
		if !entry.Type().IsRegular() || isHidden(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, pending{entry.Name(), info})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].info.ModTime().Equal(files[j].info.ModTime()) {
			return files[i].info.ModTime().Before(files[j].info.ModTime())
		}
		return files[i].name < files[j].name
	})

	for _, f := range files {
		s.log.Debugf("Queueing existing file %s", f.name)
		s.push(f.name)
	}
	return nil
}

// push is called from the watcher goroutine.
func (s *DirSource) push(name string) {
	if isHidden(name) {
		return
	}

	s.mu.Lock()
	if s.queued[name] {
		s.mu.Unlock()
		return
	}
	s.queued[name] = true
	s.queue = append(s.queue, name)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *DirSource) pop() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", kerrors.ErrSourceClosed
	}
	if s.watchErr != nil {
		s.state = Failed
		return "", fmt.Errorf("%w: %v", kerrors.ErrWatcherStopped, s.watchErr)
	}
	if len(s.queue) == 0 {
		return "", nil
	}

	name := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	delete(s.queued, name)
	return name, nil
}

// Next returns the next file written into the directory.
func (s *DirSource) Next(ctx context.Context) (Item, error) {
	s.log.Debugf("Next file requested")
	for {
		name, err := s.pop()
		if err != nil {
			return Item{}, err
		}

		if name != "" {
			path := filepath.Join(s.dir, name)
			// Its IN_CLOSE_WRITE queues it again once the writer is done.
			if openForWriting(path) {
				s.log.Debugf("File %s is still open for writing, waiting for close", name)
				continue
			}
			payload, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				s.log.Debugf("File %s disappeared before it was read", name)
				continue
			}
			if err != nil {
				return Item{}, kerrors.NewIOError("read", path, err)
			}

			s.inflight.issue(name)
			s.log.Infof("New file available: %s", name)
			return Item{ID: name, Payload: payload}, nil
		}

		select {
		case <-s.notify:
		case <-s.dead:
		case <-s.closing:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

// Confirm removes the file named id from the watched directory.
func (s *DirSource) Confirm(id string) error {
	if err := s.inflight.check(id); err != nil {
		return err
	}

	path := filepath.Join(s.dir, id)
	s.log.Infof("Removing file: %s", path)
	if err := os.Remove(path); err != nil {
		return kerrors.NewIOError("remove", path, err)
	}

	s.inflight.settle(id)
	return nil
}

// State reports the lifecycle state.
func (s *DirSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *DirSource) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close stops the watcher. Blocked and later calls to Next return
// ErrSourceClosed.
func (s *DirSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = Failed
	s.mu.Unlock()

	close(s.closing)
	if s.stop != nil {
		s.stop()
	}
	return nil
}
