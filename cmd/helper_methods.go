package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	kerrors "github.com/sealdrop/sealdrop/internal/errors"
	logger "github.com/sealdrop/sealdrop/internal/logging"
	"github.com/sealdrop/sealdrop/internal/ui"
	"github.com/sealdrop/sealdrop/internal/utils"
	"github.com/sealdrop/sealdrop/internal/workflows"

	"github.com/briandowns/spinner"
)

// startSpinner creates and starts a spinner on stderr with the given message
// when not in verbose or debug mode and stderr is a terminal.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(l logger.Logger, message string, verbose, debugFlag bool) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		// If we can't set spinner color, just continue without it.
		l.Warnf("Failed to set spinner color: %v", err)
	}

	animate := !verbose && !debugFlag && utils.IsStderrTerminal()
	if animate {
		l.Debugf("Starting spinner: %s", message)
		s.Start()
		// Ensure stray log output cannot tear the spinner line.
		log.SetOutput(io.Discard)
	} else {
		l.Infof("%s", message)
	}

	cleanup := func() {
		if animate {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		s.Stop()

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// sourceHooks reports source progress on the spinner: the spinner runs while
// the source connects and is replaced by a "watching" line once it is ready.
func sourceHooks(s *spinner.Spinner, action string) workflows.RunHooks {
	return workflows.RunHooks{
		Connecting: func(spec string) {
			s.Lock()
			s.Suffix = " Connecting to " + spec + "..."
			s.Unlock()
		},
		Ready: func(spec string) {
			s.Stop()
			fmt.Println(ui.Success.Sprint("✓") + " " + action + " " + ui.Path.Sprint(spec) +
				" " + ui.Muted.Sprint("Ctrl+C to stop"))
		},
	}
}

// failure sets the spinner's final message for err and returns it marked as
// reported so the process exits non-zero without printing it twice.
func failure(s *spinner.Spinner, message string, err error) error {
	finalMessage := ui.Error.Sprint("✗") + " " + message + "\n" +
		ui.Error.Sprint("Error: ") + err.Error()
	if hint := errorHint(err); hint != "" {
		finalMessage += "\n" + ui.Info.Sprint("→") + " " + hint
	}
	s.FinalMSG = finalMessage
	return reported(err)
}

// reportedError marks an error whose message a command already printed.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

func reported(err error) error {
	return reportedError{err}
}

// Reported reports whether err was already shown to the user, so the caller
// only needs to set the exit status.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// errorHint suggests a next step for errors the user can fix.
func errorHint(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrNoRecipients):
		return "Add a " + ui.Code.Sprint("[[targets]]") + " table to the config, see " + ui.Code.Sprint("sealdrop config init")
	case errors.Is(err, kerrors.ErrInvalidSource):
		return "Use a directory path or " + ui.Code.Sprint("[user@]host:path")
	case errors.Is(err, kerrors.ErrUnsupported):
		return "Directory watching needs Linux, use a remote source instead"
	case errors.Is(err, kerrors.ErrFetch):
		return "Check the target's " + ui.Code.Sprint("key_url")
	case errors.Is(err, kerrors.ErrUnwrap):
		return "The bundle was not sealed for this private key"
	case errors.Is(err, kerrors.ErrConfig):
		return "Check the configuration file and flags"
	}
	return ""
}
