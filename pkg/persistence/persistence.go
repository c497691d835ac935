// Package persistence provides functionality for persisting run output:
// the dated run directory, device transcripts, the failure log and the
// JSON run summary.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const summaryIndent = "    "

// Encoder renders a run summary into file content.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// Sink stores finished content at a path.
type Sink interface {
	Put(path string, data []byte) error
}

type JSONEncoder struct {
	Indent string
}

func (e JSONEncoder) Encode(v any) ([]byte, error) {
	if e.Indent == "" {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", e.Indent)
}

// AtomicFile replaces the file at path in one rename, so a reader never
// sees a half written summary.
type AtomicFile struct {
	Perm os.FileMode
}

func (f AtomicFile) Put(path string, data []byte) error {
	if path == "" {
		return os.ErrInvalid
	}
	perm := f.Perm
	if perm == 0 {
		perm = 0644
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type SummaryWriter struct {
	Encoder Encoder
	Sink    Sink
}

// Write stores v as the summary of the run in dir and returns its path.
func (w SummaryWriter) Write(dir string, v any) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("invalid run directory: %w", os.ErrInvalid)
	}
	data, err := w.Encoder.Encode(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(dir, SummaryFileName)
	if err := w.Sink.Put(path, data); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}

// WriteSummary stores v as indented JSON in dir.
func WriteSummary(dir string, v any) (string, error) {
	return SummaryWriter{Encoder: JSONEncoder{Indent: summaryIndent}, Sink: AtomicFile{}}.Write(dir, v)
}
