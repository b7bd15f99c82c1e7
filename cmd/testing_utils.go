// Package cmd contains testing utilities shared between command tests.
// This file provides common functions for building a fresh command tree
// and capturing output.
package cmd

import (
	"bytes"
	"io"
	"log"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	stdoutChan := make(chan string, 1)
	stderrChan := make(chan string, 1)

	go func() {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, stdoutReader); err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		stdoutChan <- buf.String()
	}()

	go func() {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, stderrReader); err != nil {
			log.Fatalf("Failed to run copy command: %s", err)
		}
		stderrChan <- buf.String()
	}()

	err := fn()

	// Close writers to signal EOF
	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-stdoutChan + <-stderrChan, err
}

// createTestCLI creates a fresh root command containing group, with every
// global flag variable reset, ready to run args.
func createTestCLI(t *testing.T, group *cobra.Command, args ...string) *cobra.Command {
	t.Helper()

	ResetGlobalState()
	ResetKeysState()
	ResetConfigState()
	t.Cleanup(func() {
		ResetGlobalState()
		ResetKeysState()
		ResetConfigState()
	})

	rootCmd := &cobra.Command{
		Use:           "sealdrop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(group)
	rootCmd.SetArgs(args)
	return rootCmd
}

// runCLI executes args against group and returns everything printed.
func runCLI(t *testing.T, group *cobra.Command, args ...string) (string, error) {
	t.Helper()
	rootCmd := createTestCLI(t, group, args...)
	return captureOutput(func() error {
		// Commands print through os.Stdout, so route cobra there too.
		rootCmd.SetOut(os.Stdout)
		rootCmd.SetErr(os.Stderr)
		return rootCmd.Execute()
	})
}
