package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrej220/devcheck/pkg/config/filestore"
	"github.com/andrej220/devcheck/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRoster, cfg.Roster)
	assert.Equal(t, 100, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.CommandTimeout)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 5*time.Second, cfg.Grace)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roster: /srv/inventory/core.xlsx
concurrency: 20
commandTimeout: 45s
report:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: inspections
`), 0600))

	store, err := NewStore(FileStore, &FileConfig{Path: path})
	require.NoError(t, err)
	cfg, err := Load(store)
	require.NoError(t, err)

	assert.Equal(t, "/srv/inventory/core.xlsx", cfg.Roster)
	assert.Equal(t, 20, cfg.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.CommandTimeout)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, report.Config{Brokers: []string{"kafka-1:9092", "kafka-2:9092"}, Topic: "inspections"}, cfg.Report)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero concurrency", "concurrency: 0\n"},
		{"negative timeout", "commandTimeout: -1s\n"},
		{"empty roster", "roster: \"\"\n"},
		{"bad log format", "logFormat: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "devcheck.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0600))
			_, err := Load(filestore.New(path))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devcheck.yaml")
	store := filestore.New(path)

	want := Default()
	want.Concurrency = 7
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(store)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStoreErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, filestore.New(filepath.Join(dir, "missing.yaml")).Load(&RunConfig{}))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0600))
	assert.Error(t, filestore.New(empty).Load(&RunConfig{}))
	assert.Error(t, filestore.New(empty).Load(nil))
}

func TestNewStoreRejectsMismatchedConfig(t *testing.T) {
	_, err := NewStore(FileStore, &MongoConfig{})
	assert.Error(t, err)
	_, err = NewStore(MongoStore, &FileConfig{})
	assert.Error(t, err)
	_, err = NewStore(StoreType(9), nil)
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}

func TestFileStoreRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurency: 20\n"), 0600))
	_, err := Load(filestore.New(path))
	assert.ErrorContains(t, err, "concurency")
}
