package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestLoggerLevels(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name      string
		logger    func(out, errOut *bytes.Buffer) Logger
		wantOut   []string
		rejectOut []string
	}{
		{
			name: "quiet",
			logger: func(out, errOut *bytes.Buffer) Logger {
				return Logger{Out: out, Err: errOut}
			},
			rejectOut: []string{"[info]", "[debug]"},
		},
		{
			name: "verbose",
			logger: func(out, errOut *bytes.Buffer) Logger {
				return Logger{Verbose: true, Out: out, Err: errOut}
			},
			wantOut:   []string{"[info] hello 1"},
			rejectOut: []string{"[debug]"},
		},
		{
			name: "debug",
			logger: func(out, errOut *bytes.Buffer) Logger {
				return Logger{Debug: true, Out: out, Err: errOut}
			},
			wantOut: []string{"[info] hello 1", "[debug] details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			l := tt.logger(&out, &errOut)
			l.Infof("hello %d", 1)
			l.Debugf("details")
			l.Warnf("careful")

			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected stdout to contain %q, got %q", want, out.String())
				}
			}
			for _, reject := range tt.rejectOut {
				if strings.Contains(out.String(), reject) {
					t.Errorf("expected stdout not to contain %q, got %q", reject, out.String())
				}
			}
			if !strings.Contains(errOut.String(), "[warn] careful") {
				t.Errorf("expected warning on stderr, got %q", errOut.String())
			}
		})
	}
}

func TestErrorfAndReturn(t *testing.T) {
	color.NoColor = true
	var errOut bytes.Buffer
	l := Logger{Err: &errOut}

	err := l.ErrorfAndReturn("failed to open %s", "inbox")
	if err == nil || err.Error() != "failed to open inbox" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(errOut.String(), "[error] failed to open inbox") {
		t.Errorf("expected error to be logged, got %q", errOut.String())
	}
}
