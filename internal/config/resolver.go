// Package config resolves runtime settings from a YAML file, a .env file, the
// environment and command-line flags, in that order of increasing precedence.
// Every resolved value records where it came from.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceDotenv  ValueSource = "dotenv"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultConfigPath       = "config.yaml"
	DefaultEnvFile          = ".env"
	DefaultDriver           = "sqlite"
	DefaultDBPath           = "data/emigrants.db"
	DefaultTextDir          = "multimedia/text"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultDocumentTimeout  = 30 * time.Second
	DefaultSummaryLength    = 500
	DefaultSalienceKeywords = 0
)

type ResolvedValue struct {
	Value  string      `yaml:"value"`
	Source ValueSource `yaml:"source"`
	From   string      `yaml:"from,omitempty"`
}

// ResolveOptions carries the config file locations and any flag values. Empty
// flag values are ignored.
type ResolveOptions struct {
	ConfigPath string
	EnvFile    string

	CLIDriver         string
	CLIDBPath         string
	CLIDBURL          string
	CLITextDir        string
	CLILogLevel       string
	CLILogFormat      string
	CLITimeout        string
	CLIFields         string
	CLISalience       string
	CLISkipDuplicates string
	CLIVocabulary     string
}

type ResolvedConfig struct {
	ConfigPath string `yaml:"config_path"`
	EnvFile    string `yaml:"env_file"`

	Driver           ResolvedValue `yaml:"db_driver"`
	DBPath           ResolvedValue `yaml:"db_path"`
	DBURL            ResolvedValue `yaml:"db_url"`
	TextDir          ResolvedValue `yaml:"text_dir"`
	LogLevel         ResolvedValue `yaml:"log_level"`
	LogFormat        ResolvedValue `yaml:"log_format"`
	LogFile          ResolvedValue `yaml:"log_file"`
	DocumentTimeout  ResolvedValue `yaml:"document_timeout"`
	SummaryLength    ResolvedValue `yaml:"summary_length"`
	Fields           ResolvedValue `yaml:"fields"`
	SalienceKeywords ResolvedValue `yaml:"salience_keywords"`
	SkipDuplicates   ResolvedValue `yaml:"skip_duplicates"`
	Vocabulary       ResolvedValue `yaml:"vocabulary"`
}

type fileConfig struct {
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	TextDir string `yaml:"text_dir"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Extract struct {
		Fields           []string `yaml:"fields"`
		SummaryLength    int      `yaml:"summary_length"`
		SalienceKeywords int      `yaml:"salience_keywords"`
		Vocabulary       string   `yaml:"vocabulary"`
	} `yaml:"extract"`
	Ingest struct {
		DocumentTimeout string `yaml:"document_timeout"`
		SkipDuplicates  *bool  `yaml:"skip_duplicates"`
	} `yaml:"ingest"`
}

// ResolveConfig layers defaults, the config file, the .env file, the
// environment and flags. Missing config and .env files are not errors.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	envFile := strings.TrimSpace(opts.EnvFile)
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	out := ResolvedConfig{ConfigPath: path, EnvFile: envFile}

	def := func(dst *ResolvedValue, v string) {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
	def(&out.Driver, DefaultDriver)
	def(&out.DBPath, DefaultDBPath)
	def(&out.TextDir, DefaultTextDir)
	def(&out.LogLevel, DefaultLogLevel)
	def(&out.LogFormat, DefaultLogFormat)
	def(&out.DocumentTimeout, DefaultDocumentTimeout.String())
	def(&out.SummaryLength, strconv.Itoa(DefaultSummaryLength))
	def(&out.SalienceKeywords, strconv.Itoa(DefaultSalienceKeywords))
	def(&out.SkipDuplicates, "false")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.Driver, cfg.Database.Driver, SourceConfig, path)
		apply(&out.DBPath, cfg.Database.Path, SourceConfig, path)
		apply(&out.DBURL, cfg.Database.URL, SourceConfig, path)
		apply(&out.TextDir, cfg.TextDir, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		apply(&out.LogFile, cfg.Log.File, SourceConfig, path)
		apply(&out.Fields, strings.Join(cfg.Extract.Fields, ","), SourceConfig, path)
		apply(&out.Vocabulary, cfg.Extract.Vocabulary, SourceConfig, path)
		apply(&out.DocumentTimeout, cfg.Ingest.DocumentTimeout, SourceConfig, path)
		if cfg.Extract.SummaryLength > 0 {
			apply(&out.SummaryLength, strconv.Itoa(cfg.Extract.SummaryLength), SourceConfig, path)
		}
		if cfg.Extract.SalienceKeywords > 0 {
			apply(&out.SalienceKeywords, strconv.Itoa(cfg.Extract.SalienceKeywords), SourceConfig, path)
		}
		if cfg.Ingest.SkipDuplicates != nil {
			apply(&out.SkipDuplicates, strconv.FormatBool(*cfg.Ingest.SkipDuplicates), SourceConfig, path)
		}
	}

	dotenv, err := loadDotenv(envFile)
	if err != nil {
		return out, err
	}
	env := layeredEnv{file: envFile, dotenv: dotenv}

	if u, src, from := env.postgresURL(); u != "" {
		out.DBURL = ResolvedValue{Value: u, Source: src, From: from}
	}
	for _, binding := range []struct {
		dst *ResolvedValue
		key string
	}{
		{&out.Driver, "EMIGRANTS_DB_DRIVER"},
		{&out.DBPath, "EMIGRANTS_DB_PATH"},
		{&out.DBURL, "EMIGRANTS_DB_URL"},
		{&out.TextDir, "EMIGRANTS_TEXT_DIR"},
		{&out.LogLevel, "EMIGRANTS_LOG_LEVEL"},
		{&out.LogFormat, "EMIGRANTS_LOG_FORMAT"},
		{&out.LogFile, "EMIGRANTS_LOG_FILE"},
		{&out.DocumentTimeout, "EMIGRANTS_DOCUMENT_TIMEOUT"},
		{&out.SummaryLength, "EMIGRANTS_SUMMARY_LENGTH"},
		{&out.Fields, "EMIGRANTS_FIELDS"},
		{&out.SalienceKeywords, "EMIGRANTS_SALIENCE_KEYWORDS"},
		{&out.SkipDuplicates, "EMIGRANTS_SKIP_DUPLICATES"},
		{&out.Vocabulary, "EMIGRANTS_VOCABULARY"},
	} {
		env.apply(binding.dst, binding.key)
	}

	// A URL from any source without an explicit driver selects postgres.
	if out.DBURL.Value != "" && out.Driver.Source == SourceDefault {
		out.Driver = ResolvedValue{Value: "postgres", Source: out.DBURL.Source, From: out.DBURL.From}
	}

	apply(&out.Driver, opts.CLIDriver, SourceCLI, "--driver")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DBURL, opts.CLIDBURL, SourceCLI, "--db-url")
	apply(&out.TextDir, opts.CLITextDir, SourceCLI, "--dir")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.LogFormat, opts.CLILogFormat, SourceCLI, "--log-format")
	apply(&out.DocumentTimeout, opts.CLITimeout, SourceCLI, "--timeout")
	apply(&out.Fields, opts.CLIFields, SourceCLI, "--fields")
	apply(&out.SalienceKeywords, opts.CLISalience, SourceCLI, "--salience")
	apply(&out.SkipDuplicates, opts.CLISkipDuplicates, SourceCLI, "--skip-duplicates")
	apply(&out.Vocabulary, opts.CLIVocabulary, SourceCLI, "--vocabulary")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.Vocabulary.Value = expandUserPath(out.Vocabulary.Value)
	return out, nil
}

// Config is the typed view of a ResolvedConfig.
type Config struct {
	Driver           string
	DBPath           string
	DBURL            string
	TextDir          string
	LogLevel         string
	LogFormat        string
	LogFile          string
	DocumentTimeout  time.Duration
	SummaryLength    int
	Fields           []string
	SalienceKeywords int
	SkipDuplicates   bool
	VocabularyPath   string
}

// Config parses the resolved strings. Errors name the offending source.
func (r ResolvedConfig) Config() (*Config, error) {
	c := &Config{
		Driver:         strings.ToLower(r.Driver.Value),
		DBPath:         r.DBPath.Value,
		DBURL:          r.DBURL.Value,
		TextDir:        r.TextDir.Value,
		LogLevel:       r.LogLevel.Value,
		LogFormat:      r.LogFormat.Value,
		LogFile:        r.LogFile.Value,
		VocabularyPath: r.Vocabulary.Value,
	}
	var err error
	if c.DocumentTimeout, err = time.ParseDuration(r.DocumentTimeout.Value); err != nil || c.DocumentTimeout < 0 {
		return nil, invalid("document timeout", r.DocumentTimeout)
	}
	if c.SummaryLength, err = strconv.Atoi(r.SummaryLength.Value); err != nil || c.SummaryLength < 4 {
		return nil, invalid("summary length", r.SummaryLength)
	}
	if c.SalienceKeywords, err = strconv.Atoi(r.SalienceKeywords.Value); err != nil || c.SalienceKeywords < 0 {
		return nil, invalid("salience keywords", r.SalienceKeywords)
	}
	if c.SkipDuplicates, err = strconv.ParseBool(r.SkipDuplicates.Value); err != nil {
		return nil, invalid("skip duplicates", r.SkipDuplicates)
	}
	for _, f := range strings.Split(r.Fields.Value, ",") {
		if f = strings.TrimSpace(f); f != "" {
			c.Fields = append(c.Fields, f)
		}
	}
	return c, nil
}

func invalid(what string, v ResolvedValue) error {
	return fmt.Errorf("invalid %s %q (from %s %s)", what, v.Value, v.Source, v.From)
}

// layeredEnv reads a key from the process environment first and the .env
// file second.
type layeredEnv struct {
	file   string
	dotenv map[string]string
}

func (e layeredEnv) lookup(key string) (string, ValueSource, string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, SourceEnv, key
	}
	if v := strings.TrimSpace(e.dotenv[key]); v != "" {
		return v, SourceDotenv, e.file + ":" + key
	}
	return "", SourceUnknown, ""
}

func (e layeredEnv) apply(dst *ResolvedValue, key string) {
	if v, src, from := e.lookup(key); v != "" {
		*dst = ResolvedValue{Value: v, Source: src, From: from}
	}
}

// postgresURL assembles a connection URL from DB_HOST, DB_PORT, DB_USER,
// DB_PASSWORD, DB_NAME and DB_SSLMODE. DB_HOST is required.
func (e layeredEnv) postgresURL() (string, ValueSource, string) {
	host, src, _ := e.lookup("DB_HOST")
	if host == "" {
		return "", SourceUnknown, ""
	}
	get := func(key, fallback string) string {
		if v, _, _ := e.lookup(key); v != "" {
			return v
		}
		return fallback
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + get("DB_PORT", "5432"),
		Path:   "/" + get("DB_NAME", "emigrants"),
	}
	if user := get("DB_USER", ""); user != "" {
		if pw := get("DB_PASSWORD", ""); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	u.RawQuery = url.Values{"sslmode": {get("DB_SSLMODE", "disable")}}.Encode()
	return u.String(), src, "DB_HOST"
}

// Redacted returns the URL with any password masked.
func Redacted(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func loadDotenv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return values, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
