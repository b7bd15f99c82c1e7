package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp string `json:"ts"`   // RFC3339 with microseconds.
	Operation string `json:"op"`   // encrypt, decrypt or send.
	Item      string `json:"item"` // Item ID as seen by the source.

	// Optional fields depending on operation.
	Recipients []string `json:"recipients,omitempty"` // For encrypt and send.
	Bytes      int      `json:"bytes,omitempty"`      // Plaintext size.
	Sink       string   `json:"sink,omitempty"`       // For decrypt.
	Host       string   `json:"host,omitempty"`       // Relay host name.
}

// Logger appends entries to a JSON Lines file. A Logger with an empty Path
// discards everything.
type Logger struct {
	Path string
	Host string

	mu sync.Mutex
}

// Log appends an entry to the audit log.
// If logging fails the entry is dropped; an operation never fails because
// its audit entry could not be written.
func (l *Logger) Log(entry Entry) {
	if l == nil || l.Path == "" {
		return
	}

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}
	if entry.Host == "" {
		entry.Host = l.Host
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// #nosec G304 -- path comes from the operator's --audit-log flag.
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(data, '\n'))
}

// ReadEntries reads all entries from the audit log at path.
// Returns an empty slice if the log doesn't exist.
func ReadEntries(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into audit entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// Partial writes leave a truncated last line.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
