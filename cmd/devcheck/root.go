package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/andrej220/devcheck/pkg/config"
	"github.com/spf13/cobra"
)

const serviceName = "devcheck"

type cliFlags struct {
	configFile  string
	configStore string
	mongo       config.MongoConfig

	roster      string
	output      string
	concurrency int
	timeout     time.Duration
	dialTimeout time.Duration
	grace       time.Duration
	debug       bool
	logFormat   string
	brokers     []string
	topic       string
}

var flags = cliFlags{
	mongo: config.MongoConfig{DBName: serviceName, CollName: "config", ID: serviceName},
}

var rootCmd = &cobra.Command{
	Use:   "devcheck",
	Short: "Inspect network devices listed in a roster workbook",
	Long: `devcheck logs into every device of a roster workbook over SSH or Telnet,
runs the inspection commands of its device type and saves one transcript
per device in a dated directory. Devices that cannot be reached are listed
in 01log.log next to the transcripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInspection,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "YAML config file")
	pf.StringVar(&flags.configStore, "config-store", "file", "config store: file, mongo")
	pf.StringVar(&flags.mongo.URI, "mongo-uri", "", "MongoDB URI for --config-store mongo")
	pf.StringVar(&flags.mongo.DBName, "mongo-db", flags.mongo.DBName, "MongoDB database holding the config document")
	pf.StringVar(&flags.mongo.CollName, "mongo-coll", flags.mongo.CollName, "MongoDB collection holding the config document")
	pf.StringVar(&flags.mongo.ID, "mongo-id", flags.mongo.ID, "config document ID")

	pf.StringVarP(&flags.roster, "roster", "r", config.DefaultRoster, "roster workbook")
	pf.StringVarP(&flags.output, "out", "o", "", "directory receiving the dated run directory (default: current directory)")
	pf.IntVarP(&flags.concurrency, "concurrency", "n", config.DefaultConcurrency, "maximum number of open device sessions")
	pf.DurationVar(&flags.timeout, "timeout", config.DefaultCommandTimeout, "per command timeout")
	pf.DurationVar(&flags.dialTimeout, "dial-timeout", config.DefaultDialTimeout, "connect and login timeout")
	pf.DurationVar(&flags.grace, "grace", config.DefaultGrace, "countdown before exiting after an aborted run")
	pf.BoolVar(&flags.debug, "debug", false, "debug logging")
	pf.StringVar(&flags.logFormat, "log-format", "", "log encoding: json, console")
	pf.StringSliceVar(&flags.brokers, "brokers", nil, "Kafka brokers receiving run events")
	pf.StringVar(&flags.topic, "topic", "", "Kafka topic for run events")

	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one inspection (default command)",
	Args:  cobra.NoArgs,
	RunE:  runInspection,
}

// loadConfig reads the configured store, if any, and lets explicitly set
// flags win over it.
func loadConfig(cmd *cobra.Command) (config.RunConfig, error) {
	var (
		cfg config.RunConfig
		err error
	)
	switch strings.ToLower(flags.configStore) {
	case "file", "":
		if flags.configFile == "" {
			cfg = config.Default()
			break
		}
		store, serr := config.NewStore(config.FileStore, &config.FileConfig{Path: flags.configFile})
		if serr != nil {
			return cfg, serr
		}
		cfg, err = config.Load(store)
	case "mongo":
		store, serr := config.NewStore(config.MongoStore, &flags.mongo)
		if serr != nil {
			return cfg, serr
		}
		if closer, ok := store.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		cfg, err = config.Load(store)
	default:
		return cfg, fmt.Errorf("%w: %q", config.ErrInvalidStoreType, flags.configStore)
	}
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("roster") {
		cfg.Roster = flags.roster
	}
	if changed("out") {
		cfg.OutputRoot = flags.output
	}
	if changed("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if changed("timeout") {
		cfg.CommandTimeout = flags.timeout
	}
	if changed("dial-timeout") {
		cfg.DialTimeout = flags.dialTimeout
	}
	if changed("grace") {
		cfg.Grace = flags.grace
	}
	if changed("debug") {
		cfg.Debug = flags.debug
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if changed("brokers") {
		cfg.Report.Brokers = flags.brokers
	}
	if changed("topic") {
		cfg.Report.Topic = flags.topic
	}
	return cfg, cfg.Validate()
}
