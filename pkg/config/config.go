// Package config loads the settings of an inspection run from a file or
// a MongoDB document.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrej220/devcheck/pkg/config/configstore"
	"github.com/andrej220/devcheck/pkg/config/filestore"
	"github.com/andrej220/devcheck/pkg/config/mongostore"
	"github.com/andrej220/devcheck/pkg/report"
	"github.com/go-playground/validator/v10"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

var (
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

const (
	DefaultRoster         = "info.xlsx"
	DefaultConcurrency    = 100
	DefaultCommandTimeout = 30 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	DefaultGrace          = 5 * time.Second
)

type FileConfig struct {
	Path string `yaml:"path" json:"path"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	DBName   string `yaml:"dbName" json:"dbName"`
	CollName string `yaml:"collName" json:"collName"`
	ID       string `yaml:"id" json:"id"` // Document ID
}

// RunConfig holds everything one run needs besides the roster content.
type RunConfig struct {
	Roster         string        `yaml:"roster" json:"roster" bson:"roster" validate:"required"`
	OutputRoot     string        `yaml:"output" json:"output" bson:"output"`
	Concurrency    int           `yaml:"concurrency" json:"concurrency" bson:"concurrency" validate:"gte=1,lte=10000"`
	CommandTimeout time.Duration `yaml:"commandTimeout" json:"commandTimeout" bson:"commandTimeout" validate:"gt=0"`
	DialTimeout    time.Duration `yaml:"dialTimeout" json:"dialTimeout" bson:"dialTimeout" validate:"gt=0"`
	Grace          time.Duration `yaml:"grace" json:"grace" bson:"grace" validate:"gte=0"`
	Debug          bool          `yaml:"debug" json:"debug" bson:"debug"`
	LogFormat      string        `yaml:"logFormat" json:"logFormat" bson:"logFormat" validate:"omitempty,oneof=json console"`
	Report         report.Config `yaml:"report" json:"report" bson:"report"`
}

func Default() RunConfig {
	return RunConfig{
		Roster:         DefaultRoster,
		Concurrency:    DefaultConcurrency,
		CommandTimeout: DefaultCommandTimeout,
		DialTimeout:    DefaultDialTimeout,
		Grace:          DefaultGrace,
	}
}

var validate = validator.New()

func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func NewStore(storeType StoreType, cfg any) (configstore.ConfigStore, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file store, expected *FileConfig")
		}
		return filestore.New(fileCfg.Path), nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for mongo store, expected *MongoConfig")
		}
		return mongostore.New(mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
	default:
		return nil, ErrInvalidStoreType
	}
}

// Load overlays the stored settings on the defaults and validates the
// result. A nil store yields the defaults.
func Load(store configstore.ConfigStore) (RunConfig, error) {
	cfg := Default()
	if store != nil {
		if err := store.Load(&cfg); err != nil {
			return RunConfig{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
