// Command seatview scrapes seat-view photos for a venue and works with the
// resulting photo collections on disk.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avfms/seatview-scraper/internal/config"
	"github.com/avfms/seatview-scraper/internal/logging"
)

// commandContext carries config and logger to subcommands; both are built
// lazily so help/usage paths stay cheap.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *zap.Logger
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	if c.cfg != nil {
		return *c.cfg, nil
	}
	cfg, err := config.Load(*c.configFlag)
	if err != nil {
		return config.Config{}, err
	}
	c.cfg = &cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	development := true
	if c.cfg != nil {
		development = c.cfg.Logging.Development
	}
	logger, err := logging.New(development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "seatview",
		Short:         "Scrape and organize seat-view photos for a venue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "configuration file path")

	rootCmd.AddCommand(newScrapeCommand(ctx))
	rootCmd.AddCommand(newOrganizeCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newSectionsCommand(ctx))

	return rootCmd
}
