// Package workflows provides high-level orchestration for sealdrop commands.
//
// Workflows coordinate configuration, key material, sources, pipelines and
// transports to implement complete user-facing features. Each workflow
// handles a single command's business logic, independent of CLI concerns
// like flag parsing, spinners, and output formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Loading and validating the TOML configuration
//   - Resolving keys and building the pipeline
//   - Opening the source and running until it stops
//   - Recording audit trail entries
//
// # Available Workflows
//
//   - Encrypt: watches a source and writes one bundle per target
//   - Decrypt: opens bundles addressed to a private key and delivers them
//   - Send: uploads bundles to an HTTP endpoint
//   - Serve: runs the upload test server
//   - GenerateKeys, ConvertKey: produce JSON key documents
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching:
//
//	err := workflows.Encrypt(ctx, opts)
//	if errors.Is(err, kerrors.ErrNoRecipients) {
//	    // Point the user at the [[targets]] table
//	}
//
// # Context Usage
//
// Long-running workflows block until their source fails or ctx is
// cancelled. Cancellation is a normal shutdown and returns nil.
package workflows
