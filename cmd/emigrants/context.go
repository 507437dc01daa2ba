package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/joe-chic/house-of-emmigrants/internal/config"
	"github.com/joe-chic/house-of-emmigrants/internal/extract"
	"github.com/joe-chic/house-of-emmigrants/internal/ingest"
	"github.com/joe-chic/house-of-emmigrants/internal/logging"
	"github.com/joe-chic/house-of-emmigrants/internal/patterns"
	"github.com/joe-chic/house-of-emmigrants/internal/store"
)

// rootFlags holds the persistent flag values. Empty strings defer to the
// config file, .env and environment.
type rootFlags struct {
	configPath     string
	envFile        string
	driver         string
	dbPath         string
	dbURL          string
	logLevel       string
	logFormat      string
	vocabulary     string
	fields         string
	salience       string
	timeout        string
	skipDuplicates bool
}

type commandContext struct {
	flags rootFlags
	root  *cobra.Command

	configOnce sync.Once
	resolved   config.ResolvedConfig
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) resolveOptions() config.ResolveOptions {
	opts := config.ResolveOptions{
		ConfigPath:    c.flags.configPath,
		EnvFile:       c.flags.envFile,
		CLIDriver:     c.flags.driver,
		CLIDBPath:     c.flags.dbPath,
		CLIDBURL:      c.flags.dbURL,
		CLILogLevel:   c.flags.logLevel,
		CLILogFormat:  c.flags.logFormat,
		CLITimeout:    c.flags.timeout,
		CLIFields:     c.flags.fields,
		CLISalience:   c.flags.salience,
		CLIVocabulary: c.flags.vocabulary,
	}
	if c.root != nil && c.root.PersistentFlags().Changed("skip-duplicates") {
		opts.CLISkipDuplicates = strconv.FormatBool(c.flags.skipDuplicates)
	}
	return opts
}

// ensureConfig resolves configuration and builds the logger once per process.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		resolved, err := config.ResolveConfig(c.resolveOptions())
		if err != nil {
			c.configErr = err
			return
		}
		cfg, err := resolved.Config()
		if err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.configErr = fmt.Errorf("configuring logging: %w", err)
			return
		}
		c.resolved, c.config, c.logger = resolved, cfg, logger
	})
	return c.config, c.configErr
}

func (c *commandContext) library() (*patterns.Library, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lib, err := patterns.Load(cfg.VocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}
	return lib, nil
}

func (c *commandContext) engine(lib *patterns.Library) (*extract.Engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	fields := extract.DefaultFields()
	if len(cfg.Fields) > 0 {
		extra, err := extract.ParseFields(cfg.Fields)
		if err != nil {
			return nil, err
		}
		fields = fields.With(extra...)
	}
	return extract.NewEngine(lib, extract.Options{
		Fields:           fields,
		SalienceKeywords: cfg.SalienceKeywords,
		SummaryLength:    cfg.SummaryLength,
		Logger:           c.logger,
	}), nil
}

func (c *commandContext) openStore(ctx context.Context, lib *patterns.Library) (*store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if lib == nil {
		if lib, err = c.library(); err != nil {
			return nil, err
		}
	}
	s, err := store.New(ctx, store.Config{
		Driver: cfg.Driver,
		DBPath: cfg.DBPath,
		URL:    cfg.DBURL,
		Seeds:  lib.Vocabulary().Seeds(),
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

// withPipeline opens the store and wires the extraction engine, orchestrator
// and batch driver over it. The store is closed when fn returns.
func (c *commandContext) withPipeline(ctx context.Context, fn func(*ingest.Driver) error) error {
	lib, err := c.library()
	if err != nil {
		return err
	}
	engine, err := c.engine(lib)
	if err != nil {
		return err
	}
	s, err := c.openStore(ctx, lib)
	if err != nil {
		return err
	}
	defer s.Close()

	orch := ingest.NewOrchestrator(s, ingest.PersistOptions{
		SkipDuplicates: c.config.SkipDuplicates,
		Timeout:        c.config.DocumentTimeout,
		Logger:         c.logger,
	})
	return fn(ingest.NewDriver(engine, orch, c.logger).WithLockPath(c.lockPath()))
}

// lockPath keeps the run lock beside a SQLite database file. Other setups
// fall back to the driver's per-directory temp lock.
func (c *commandContext) lockPath() string {
	if c.config.Driver != store.SQLite.Name || c.config.DBPath == "" || c.config.DBPath == ":memory:" {
		return ""
	}
	return c.config.DBPath + ".lock"
}

func (c *commandContext) withStore(ctx context.Context, fn func(*store.Store) error) error {
	s, err := c.openStore(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
