// Package utils provides small helpers shared by the commands and backends.
//
// # System Utilities
//
//   - GetUsername: returns the current system username
//   - GetHostname: returns the system hostname
//   - SanitizeName: normalizes a recipient or item name for safe storage
//
// # String Utilities
//
//   - FormatPaths: formats file paths for human-readable output
//
// # I/O Utilities
//
//   - ReadStdin: reads all data from standard input
//
// # Terminal Utilities
//
//   - IsStderrTerminal: reports whether stderr is a terminal
package utils
