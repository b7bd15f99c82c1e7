// Package audit records processed items in a JSON Lines file.
//
// Each relay command can be given --audit-log; every confirmed item then
// appends one line:
//
//	{"ts":"2026-01-02T15:04:05.000000Z","op":"encrypt","item":"report.txt","recipients":["alice","bob"],"bytes":11,"host":"relay-1"}
//
// # Failure Handling
//
// Audit logging is best-effort. If the file cannot be opened or written the
// entry is dropped and the operation carries on.
//
// # Reading Logs
//
// ReadEntries parses the file, skipping malformed lines left by partial
// writes.
package audit
