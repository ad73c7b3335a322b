package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kdgroup/jobledger/config"
	"github.com/kdgroup/jobledger/internal/logger"
)

var version = "0.1.0"

var (
	cfgPath   string
	cfg       config.Config
	log       zerolog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "jobledger",
	Short: "Renovation job pipeline, intercompany ledger and settlement",
	Long: `jobledger tracks renovation jobs from lead to paid in full, keeps the
invoice ledger of the related companies and settles lead fees and labor
when a job is paid.

Configuration is read from a YAML file (--config), then from the
environment. A .env file in the working directory is loaded first.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logCloser, err = logger.Setup(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		log = logger.WithComponent(cmd.Name())
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "jobledger.yaml", "path to the YAML config file")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
}
