package utils

import (
	"os"

	"golang.org/x/term"
)

// IsStderrTerminal returns true if stderr is a terminal. Spinners are only
// drawn when it is.
func IsStderrTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
