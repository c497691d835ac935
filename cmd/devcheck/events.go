package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrej220/devcheck/internal/lg"
	"github.com/andrej220/devcheck/internal/ui"
	"github.com/andrej220/devcheck/pkg/inspect"
	"github.com/andrej220/devcheck/pkg/report"
	"github.com/spf13/cobra"
)

var eventsGroup string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow the failure and summary events published by runs",
	Args:  cobra.NoArgs,
	RunE:  followEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGroup, "group", serviceName+"-events", "Kafka consumer group")
	rootCmd.AddCommand(eventsCmd)
}

func followEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Failed to load config", err.Error(), ""))
		return err
	}
	logger := lg.New(&lg.Config{ServiceName: serviceName, Debug: cfg.Debug, Format: cfg.LogFormat})
	defer logger.Sync()

	sub, err := report.NewSubscriber(report.SubscriberConfig{Config: cfg.Report, GroupID: eventsGroup}, logger)
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Cannot follow events", err.Error(), "pass --brokers or set report.brokers"))
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := ui.NewConsole(cmd.OutOrStdout())
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		switch {
		case ev.Failure != nil:
			console.Failure(inspect.Entry{Host: ev.Failure.Host, Address: ev.Failure.Address, Reason: ev.Failure.Reason})
		case ev.Summary != nil:
			console.Finished(inspect.Summary{
				RunID:     ev.Summary.RunID,
				Started:   ev.Summary.Started,
				OutputDir: ev.Summary.OutputDir,
				Devices:   ev.Summary.Devices,
				Connected: ev.Summary.Connected,
				Partial:   ev.Summary.Partial,
				Failures:  ev.Summary.Failures,
				Elapsed:   time.Duration(ev.Summary.ElapsedSeconds * float64(time.Second)),
			})
		}
	}
}
