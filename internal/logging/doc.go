// Package logger provides leveled logging for sealdrop commands and the
// long-running relay pipelines.
//
// # Verbosity Levels
//
// Logging behavior is controlled by two flags:
//
//   - --verbose: Shows info messages
//   - --debug: Shows all messages including debug details
//
// Warnings and errors are always shown on stderr.
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Processing %s for %d recipients", item, n)
//
// Commands create a logger in their PersistentPreRun and pass it to
// workflows, pipelines and sources by value.
package logger
