package workflows

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sealdrop/sealdrop/internal/audit"
	"github.com/sealdrop/sealdrop/internal/configs"
	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/source"
	"github.com/sealdrop/sealdrop/internal/utils"
)

// RunHooks lets the CLI layer follow a long-running workflow without the
// workflow knowing about spinners or output formatting.
type RunHooks struct {
	// Connecting is called before the source is opened.
	Connecting func(spec string)
	// Ready is called once the source is open and items are being awaited.
	Ready func(spec string)
}

func (h RunHooks) connecting(spec string) {
	if h.Connecting != nil {
		h.Connecting(spec)
	}
}

func (h RunHooks) ready(spec string) {
	if h.Ready != nil {
		h.Ready(spec)
	}
}

// loadConfig reads the configuration file, or returns an empty
// configuration when path is empty.
func loadConfig(path string) (*configs.Config, error) {
	if path == "" {
		return configs.Default(), nil
	}
	config, err := configs.Load(path)
	if err != nil {
		return nil, err
	}
	return config, nil
}

func sourceOptions(config *configs.Config, log logger.Logger) source.Options {
	return source.Options{
		Logger:                log,
		PollInterval:          config.SSH.PollInterval.Duration,
		IdentityFile:          config.SSH.IdentityFile,
		KnownHostsFile:        config.SSH.KnownHostsFile,
		InsecureIgnoreHostKey: config.SSH.InsecureIgnoreHostKey,
		Port:                  config.SSH.Port,
	}
}

// openSource connects the source named by spec, reporting progress through
// hooks.
func openSource(ctx context.Context, spec string, opts source.Options, hooks RunHooks) (source.Source, error) {
	spec = absoluteSpec(spec)
	hooks.connecting(spec)
	src, err := source.Open(ctx, spec, opts)
	if err != nil {
		return nil, fmt.Errorf("opening source %s: %w", spec, err)
	}
	hooks.ready(spec)
	return src, nil
}

// absoluteSpec turns a relative local directory into an absolute path so
// that "./drop" selects the directory backend. Anything containing a colon
// is left for ParseSpec to treat as remote.
func absoluteSpec(spec string) string {
	if spec == "" || strings.Contains(spec, ":") || filepath.IsAbs(spec) {
		return spec
	}
	abs, err := filepath.Abs(spec)
	if err != nil {
		return spec
	}
	return abs
}

func auditLogger(path string) *audit.Logger {
	if path == "" {
		return nil
	}
	host, _ := utils.GetHostname()
	return &audit.Logger{Path: path, Host: host}
}

// finish maps the cancellation that ends a long-running workflow to a clean
// exit. Every other error is returned unchanged.
func finish(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func validateKeyName(name string) error {
	if name == "" || name != utils.SanitizeName(name) {
		return fmt.Errorf("%w: key name %q (try %q)", kerrors.ErrInvalidName, name, utils.SanitizeName(name))
	}
	return nil
}
