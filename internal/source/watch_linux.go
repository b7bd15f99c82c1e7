//go:build linux

package source

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const watchMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF | unix.IN_ONLYDIR

// watchDirectory installs an inotify watch on directory and starts a read
// loop that calls emit with the name of every file closed after writing or
// moved into the directory. The loop ends when stop is called, when the
// watched directory goes away, or on a read error; its terminal error (nil
// after stop) is sent on done.
func watchDirectory(directory string, emit func(name string)) (stop func(), done <-chan error, err error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, fmt.Errorf("inotify_init1: %w", err)
	}

	if _, err := unix.InotifyAddWatch(fd, directory, watchMask); err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	stopChannel := make(chan struct{})
	doneChannel := make(chan error, 1)

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("watcher panicked: %v", r)
			}
			doneChannel <- err
			close(doneChannel)
		}()
		err = inotifyReadLoop(fd, emit, stopChannel)
	}()

	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		close(stopChannel)
	}

	return stop, doneChannel, nil
}

// inotifyReadLoop polls the inotify fd with a 100ms timeout so the
// goroutine notices the stop signal, and closes the fd when it returns.
func inotifyReadLoop(fd int, emit func(string), stopChannel <-chan struct{}) error {
	defer unix.Close(fd)

	buffer := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		select {
		case <-stopChannel:
			return nil
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("read inotify events: %w", err)
		}

		if err := dispatchEvents(buffer[:bytesRead], emit); err != nil {
			return err
		}
	}
}

// errWatchRemoved is returned when the watched directory is deleted or moved.
var errWatchRemoved = errors.New("watched directory was removed")

// dispatchEvents walks a buffer of raw inotify events.
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null padded
//	};
func dispatchEvents(buffer []byte, emit func(string)) error {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buffer) {
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		eventSize := unix.SizeofInotifyEvent + nameLength
		if offset+eventSize > len(buffer) {
			break
		}

		switch {
		case mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|unix.IN_IGNORED) != 0:
			return errWatchRemoved
		case mask&unix.IN_Q_OVERFLOW != 0:
			return errors.New("inotify event queue overflowed")
		case mask&unix.IN_ISDIR != 0:
			// subdirectories are not items
		case nameLength > 0 && mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0:
			name := nullTerminatedString(buffer[offset+unix.SizeofInotifyEvent : offset+eventSize])
			if name != "" {
				emit(name)
			}
		}

		offset += eventSize
	}
	return nil
}

func nullTerminatedString(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// openForWriting reports whether some process still holds path open for
// writing. The kernel refuses a read lease while a writer exists. Any other
// refusal (not the owner, no lease support on the filesystem) counts as
// settled so the file is not held back forever.
func openForWriting(path string) bool {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETLEASE, unix.F_RDLCK); err != nil {
		return errors.Is(err, unix.EAGAIN)
	}
	unix.FcntlInt(uintptr(fd), unix.F_SETLEASE, unix.F_UNLCK)
	return false
}
