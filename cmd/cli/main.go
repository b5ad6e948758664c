package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/fraud-ledger/internal/app"
	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/logger"
)

type globalOptions struct {
	configFile string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "fraudledger",
		Short:         "Inspect and operate the fraud ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "D", false, "enable debug logging")

	root.AddCommand(
		readLedgerCmd(opts),
		companyCmd(opts),
		exportCmd(opts),
		submissionsCmd(opts),
		recordCmd(opts),
		showRecordCmd(opts),
		migrateLocalCmd(opts),
	)
	return root
}

// setup loads configuration and a logger that writes to the command's
// stderr, leaving stdout for command output.
func setup(cmd *cobra.Command, opts *globalOptions) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := zerolog.WarnLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr()).Level(level)
	return cfg, log, nil
}

// openApp builds the service components for a single command run.
func openApp(cmd *cobra.Command, opts *globalOptions) (context.Context, *app.App, error) {
	cfg, log, err := setup(cmd, opts)
	if err != nil {
		return nil, nil, err
	}
	ctx := logger.WithContext(cmd.Context(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return ctx, a, nil
}
