package persistence_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/devcheck/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = "{\n    \"key\": \"value\"\n}"

type mockEncoder struct {
	data []byte
	err  error
}

func (e mockEncoder) Encode(any) ([]byte, error) { return e.data, e.err }

type mockSink struct {
	puts map[string][]byte
	err  error
}

func (s *mockSink) Put(path string, data []byte) error {
	if s.puts == nil {
		s.puts = make(map[string][]byte)
	}
	s.puts[path] = data
	return s.err
}

func TestSummaryWriter(t *testing.T) {
	tests := []struct {
		name        string
		dir         string
		encoder     persistence.Encoder
		sink        *mockSink
		expectedErr bool
	}{
		{
			name:    "valid input",
			dir:     "/runs/2024.05.17",
			encoder: mockEncoder{data: []byte(sampleJSON)},
			sink:    &mockSink{},
		},
		{
			name:        "empty directory",
			encoder:     mockEncoder{data: []byte(sampleJSON)},
			sink:        &mockSink{},
			expectedErr: true,
		},
		{
			name:        "encoder error",
			dir:         "/runs/2024.05.17",
			encoder:     mockEncoder{err: fmt.Errorf("encoding failed")},
			sink:        &mockSink{},
			expectedErr: true,
		},
		{
			name:        "sink error",
			dir:         "/runs/2024.05.17",
			encoder:     mockEncoder{data: []byte(sampleJSON)},
			sink:        &mockSink{err: fmt.Errorf("disk full")},
			expectedErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := persistence.SummaryWriter{Encoder: tt.encoder, Sink: tt.sink}
			path, err := w.Write(tt.dir, map[string]string{"key": "value"})
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(tt.dir, persistence.SummaryFileName), path)
			assert.Equal(t, sampleJSON, string(tt.sink.puts[path]))
		})
	}
}

func TestWriteSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, persistence.SummaryFileName), []byte("stale"), 0644))

	path, err := persistence.WriteSummary(dir, map[string]string{"key": "value"})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleJSON, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestPrepareRunDir(t *testing.T) {
	root := t.TempDir()
	day := time.Date(2024, 3, 9, 8, 0, 0, 0, time.Local)

	dir, err := persistence.PrepareRunDir(root, day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "2024.03.09"), dir)

	// an earlier run's failure log is cleared, transcripts stay
	ledger := filepath.Join(dir, persistence.LedgerFileName)
	require.NoError(t, persistence.AppendLine(ledger, "device old failure"))
	other := filepath.Join(dir, "r1_10.0.0.1.log")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))

	_, err = persistence.PrepareRunDir(root, day)
	require.NoError(t, err)
	assert.NoFileExists(t, ledger)
	assert.FileExists(t, other)
}

func TestTranscript(t *testing.T) {
	dir := t.TempDir()
	tr, err := persistence.CreateTranscript(dir, "core-1", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, tr.WriteCommand("show version"))
	require.NoError(t, tr.WriteOutput("IOS 15.2"))
	require.NoError(t, tr.Close())

	assert.Equal(t, filepath.Join(dir, "core-1_10.0.0.1.log"), tr.Path)
	got, err := os.ReadFile(tr.Path)
	require.NoError(t, err)
	assert.Equal(t, "#################### show version ####################\n\nIOS 15.2\n\n", string(got))
}

func TestTranscriptName(t *testing.T) {
	assert.Equal(t, "core-1_10.0.0.1.log", persistence.TranscriptName("core-1", "10.0.0.1"))
	assert.Equal(t, "a-b_fe80--1.log", persistence.TranscriptName("a/b", "fe80::1"))
}

func TestCountLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), persistence.LedgerFileName)

	n, err := persistence.CountLines(path)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, persistence.AppendLine(path, fmt.Sprintf("device r%d failed", i)))
	}
	n, err = persistence.CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
