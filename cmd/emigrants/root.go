package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()
	f := &ctx.flags

	rootCmd := &cobra.Command{
		Use:           "emigrants",
		Short:         "Extract emigrant interview transcripts into a relational store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	ctx.root = rootCmd

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Configuration file path (default config.yaml)")
	pf.StringVar(&f.envFile, "env-file", "", "Dotenv file with database credentials (default .env)")
	pf.StringVar(&f.driver, "driver", "", "Database driver: sqlite or postgres")
	pf.StringVar(&f.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection URL")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: console or json")
	pf.StringVar(&f.vocabulary, "vocabulary", "", "Vocabulary YAML replacing the built-in one")
	pf.StringVar(&f.fields, "fields", "", "Comma-separated optional fields to enable (occupation, religion)")
	pf.StringVar(&f.salience, "salience", "", "Number of frequency-ranked keywords to add")
	pf.StringVar(&f.timeout, "timeout", "", "Per-document timeout, e.g. 30s")
	pf.BoolVar(&f.skipDuplicates, "skip-duplicates", false, "Skip documents whose path and content were already committed")

	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newExtractCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
