package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrej220/devcheck/internal/lg"
	"github.com/andrej220/devcheck/internal/ui"
	"github.com/andrej220/devcheck/pkg/executor"
	"github.com/andrej220/devcheck/pkg/inspect"
	"github.com/andrej220/devcheck/pkg/report"
	"github.com/andrej220/devcheck/pkg/roster"
	"github.com/spf13/cobra"
)

func runInspection(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprint(os.Stderr, ui.FormatError("Failed to load config", err.Error(), "check --config and the flags given"))
		return err
	}

	logger := lg.New(&lg.Config{ServiceName: serviceName, Debug: cfg.Debug, Format: cfg.LogFormat})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = lg.Attach(ctx, logger)

	publisher := report.New(cfg.Report, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Report publisher close failed", lg.Err(err))
		}
	}()

	out := cmd.OutOrStdout()
	orch := inspect.New(inspect.Config{
		OutputRoot:  cfg.OutputRoot,
		Concurrency: cfg.Concurrency,
		ExecTimeout: cfg.CommandTimeout,
	},
		executor.NewCLIDialer(executor.Options{DialTimeout: cfg.DialTimeout}),
		inspect.WithConsole(ui.NewConsole(out)),
		inspect.WithPublisher(publisher),
	)

	if _, err := orch.Run(ctx, roster.XLSXFile(cfg.Roster)); err != nil {
		logger.Error("Inspection aborted", lg.String("roster", cfg.Roster), lg.Err(err))
		fmt.Fprint(os.Stderr, ui.FormatError("Inspection aborted", err.Error(), abortHint(err)))
		// leave the diagnostic on screen when started from a file manager
		ui.Countdown(ctx, out, cfg.Grace)
		return err
	}
	return nil
}

func abortHint(err error) string {
	switch {
	case errors.Is(err, roster.ErrRosterUnreadable):
		return "place info.xlsx next to the program or pass --roster"
	case errors.Is(err, roster.ErrMalformedCommandTable):
		return "the second sheet must hold one column of commands per device type"
	}
	return ""
}
