package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	RunDirLayout    = "2006.01.02"
	LedgerFileName  = "01log.log"
	SummaryFileName = "summary.json"
	delimiter       = "####################"
)

// PrepareRunDir creates root/YYYY.MM.DD for the run date and removes the
// failure log an earlier run on the same date left behind.
func PrepareRunDir(root string, now time.Time) (string, error) {
	dir := filepath.Join(root, now.Format(RunDirLayout))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create run directory %s: %w", dir, err)
	}
	if err := os.Remove(filepath.Join(dir, LedgerFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("clear previous failure log: %w", err)
	}
	return dir, nil
}

// TranscriptName is the per-device file name, {host}_{address}.log.
func TranscriptName(host, address string) string {
	return sanitize(host) + "_" + sanitize(address) + ".log"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
}

// Transcript is one device's command log. It is owned by a single task.
type Transcript struct {
	Path string
	f    *os.File
	w    *bufio.Writer
}

// CreateTranscript truncates or creates the transcript file in dir.
func CreateTranscript(dir, host, address string) (*Transcript, error) {
	path := filepath.Join(dir, TranscriptName(host, address))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	return &Transcript{Path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// WriteCommand writes the delimiter line that opens cmd's section.
func (t *Transcript) WriteCommand(cmd string) error {
	_, err := fmt.Fprintf(t.w, "%s %s %s\n\n", delimiter, cmd, delimiter)
	return err
}

func (t *Transcript) WriteOutput(output string) error {
	_, err := fmt.Fprintf(t.w, "%s\n\n", output)
	return err
}

func (t *Transcript) Close() error {
	ferr := t.w.Flush()
	if err := t.f.Close(); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}

// AppendLine appends one line to path, creating the file if needed.
func AppendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// CountLines counts the lines of path. A missing file has none.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
