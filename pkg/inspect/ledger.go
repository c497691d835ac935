package inspect

import (
	"fmt"
	"sync"

	"github.com/andrej220/devcheck/pkg/executor"
	"github.com/andrej220/devcheck/pkg/persistence"
)

// Entry is one device that could not be inspected.
type Entry struct {
	Host    string
	Address string
	Kind    executor.Kind
	Reason  string
}

// Line is the failure log line for e.
func (e Entry) Line() string {
	return fmt.Sprintf("device %s %s", e.Host, e.Reason)
}

// FailureLedger collects the connection failures of one run. Appends are
// serialized; the lock is never held across notification.
type FailureLedger struct {
	mu      sync.Mutex
	entries []Entry
	path    string
	notify  func(Entry)
}

// NewFailureLedger returns an empty ledger that mirrors every entry to the
// file at path (when set) and hands it to notify once recorded.
func NewFailureLedger(path string, notify func(Entry)) *FailureLedger {
	return &FailureLedger{path: path, notify: notify}
}

// Append records e. The entry is kept in memory even when the file write
// fails, the error is returned for the caller to report.
func (l *FailureLedger) Append(e Entry) error {
	err := l.append(e)
	if l.notify != nil {
		l.notify(e)
	}
	return err
}

func (l *FailureLedger) append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if l.path == "" {
		return nil
	}
	if err := persistence.AppendLine(l.path, e.Line()); err != nil {
		return fmt.Errorf("write failure log: %w", err)
	}
	return nil
}

func (l *FailureLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the recorded entries in append order.
func (l *FailureLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Persisted counts the lines in the failure log file.
func (l *FailureLedger) Persisted() (int, error) {
	if l.path == "" {
		return l.Len(), nil
	}
	return persistence.CountLines(l.path)
}
