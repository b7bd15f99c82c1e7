package pipeline

import (
	"context"
	"os"

	"github.com/sealdrop/sealdrop/internal/bundle"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
)

// DirSink writes each plaintext to Root/<item>, replacing any earlier file
// of the same name.
type DirSink struct {
	Root string
}

func (s DirSink) Name() string { return "dir" }

func (s DirSink) Deliver(_ context.Context, item string, plaintext []byte) error {
	if err := bundle.ValidateName(item); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Root, 0700); err != nil {
		return kerrors.NewIOError("mkdir", s.Root, err)
	}
	_, err := bundle.WriteFileAtomic(s.Root, item, plaintext)
	return err
}

// LogSink only records that an item was recovered.
type LogSink struct {
	Logger logger.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, item string, plaintext []byte) error {
	s.Logger.Infof("Recovered %s (%d bytes)", item, len(plaintext))
	return nil
}
