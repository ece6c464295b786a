// Package config loads the loader's settings from rawload.yaml, .env files
// and RAWLOAD_* environment variables.
//
// Precedence (highest first): environment, config file, defaults. The
// defaults load the nine Olist files from data_csv/ into a local Postgres
// database named olist_ecommerce.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/text/encoding/htmlindex"
	"gopkg.in/yaml.v3"

	"rawload/internal/dataset"
	"rawload/internal/parser/csv"
	"rawload/internal/storage"
)

// ErrInvalidConfig is wrapped by every error Load and Validate return.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultKind = "postgres"
	DefaultDSN  = "postgres://postgres@localhost:5432/olist_ecommerce"
	EnvPrefix   = "RAWLOAD"
)

type Config struct {
	Job         string          `mapstructure:"job" yaml:"job"`
	DataDir     string          `mapstructure:"data_dir" yaml:"data_dir"`
	TablePrefix string          `mapstructure:"table_prefix" yaml:"table_prefix"`
	Storage     Storage         `mapstructure:"storage" yaml:"storage"`
	Datasets    []dataset.Entry `mapstructure:"datasets" yaml:"datasets"`
	Only        []string        `mapstructure:"only" yaml:"only,omitempty"`
	Parser      Parser          `mapstructure:"parser" yaml:"parser"`
	Metrics     Metrics         `mapstructure:"metrics" yaml:"metrics"`
}

type Storage struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type Parser struct {
	// Delimiter is a single character; "tab" and "\t" mean a tab.
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	Encoding  string `mapstructure:"encoding" yaml:"encoding"`
}

type Metrics struct {
	// Backend is none, datadog or dd.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Tags is a comma-separated list such as "env:prod,team:data".
	Tags string `mapstructure:"tags" yaml:"tags,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job", "rawload")
	v.SetDefault("data_dir", dataset.DefaultDir)
	v.SetDefault("table_prefix", dataset.DefaultTablePrefix)
	v.SetDefault("storage.kind", DefaultKind)
	v.SetDefault("storage.dsn", DefaultDSN)
	v.SetDefault("only", []string{})
	v.SetDefault("parser.delimiter", ",")
	v.SetDefault("parser.encoding", "utf-8")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.tags", "")
}

// Load reads the configuration. An empty path searches ./rawload.{yaml,yml,json}
// and tolerates its absence; an explicit path must exist.
//
// .env and .env.local in the working directory are loaded first without
// overriding variables already set in the process environment.
//
// DATABASE_URL replaces the default DSN only; a DSN from the config file or
// RAWLOAD_STORAGE_DSN always wins over it.
func Load(path string) (Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, f, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("storage.dsn", EnvPrefix+"_STORAGE_DSN"); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rawload")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("%w: read config: %w", ErrInvalidConfig, err)
		}
	}

	// DATABASE_URL only stands in for a DSN nobody configured.
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" &&
		!v.InConfig("storage.dsn") && os.Getenv(EnvPrefix+"_STORAGE_DSN") == "" {
		v.SetDefault("storage.dsn", dbURL)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode config: %w", ErrInvalidConfig, err)
	}

	if len(cfg.Datasets) == 0 {
		cfg.Datasets = append([]dataset.Entry(nil), dataset.Catalog...)
	}
	cfg.Storage.Kind = strings.ToLower(strings.TrimSpace(cfg.Storage.Kind))
	cfg.Storage.DSN = os.ExpandEnv(strings.TrimSpace(cfg.Storage.DSN))
	cfg.Metrics.Backend = strings.ToLower(strings.TrimSpace(cfg.Metrics.Backend))
	return cfg, nil
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Storage.Kind == "":
		return invalid("storage.kind is empty")
	case !storage.Registered(c.Storage.Kind):
		return invalid("unsupported storage.kind=%s (supported: %s)", c.Storage.Kind, strings.Join(storage.Kinds(), ", "))
	case c.Storage.DSN == "":
		return invalid("storage.dsn is empty")
	}

	if _, err := c.ParserOptions(); err != nil {
		return err
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog", "dd":
	default:
		return invalid("unknown metrics.backend %q (none|datadog)", c.Metrics.Backend)
	}

	if _, err := c.Descriptors(); err != nil {
		return err
	}
	return nil
}

// Descriptors resolves the configured datasets against the data directory
// and table prefix, then applies the `only` selection.
func (c Config) Descriptors() ([]dataset.Descriptor, error) {
	ds := dataset.Resolve(c.Datasets, c.DataDir, c.TablePrefix)
	if err := dataset.Validate(ds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ds, err := dataset.Select(ds, c.Only)
	if err != nil {
		return nil, fmt.Errorf("%w: only: %w", ErrInvalidConfig, err)
	}
	return ds, nil
}

// ParserOptions converts the parser section to csv.Options.
func (c Config) ParserOptions() (csv.Options, error) {
	var opt csv.Options

	switch d := c.Parser.Delimiter; d {
	case "":
	case "tab", `\t`:
		opt.Delimiter = '\t'
	default:
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
			return opt, fmt.Errorf("%w: parser.delimiter %q must be a single character other than quote or newline", ErrInvalidConfig, d)
		}
		opt.Delimiter = r
	}

	if enc := strings.TrimSpace(c.Parser.Encoding); enc != "" {
		if _, err := htmlindex.Get(enc); err != nil {
			return opt, fmt.Errorf("%w: parser.encoding %q: %w", ErrInvalidConfig, enc, err)
		}
		opt.Encoding = enc
	}
	return opt, nil
}

// StorageConfig is the repository configuration.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{Kind: c.Storage.Kind, DSN: c.Storage.DSN}
}

// Render returns the configuration as YAML with the DSN password masked.
func Render(c Config) ([]byte, error) {
	c.Storage.DSN = MaskDSN(c.Storage.DSN)
	return yaml.Marshal(c)
}

var (
	kvPassword   = regexp.MustCompile(`(?i)\b(password|pwd)=([^\s;&]+)`)
	driverPasswd = regexp.MustCompile(`^([^:@/]+):([^@]*)@`)
)

// MaskDSN replaces the password in URL, key=value and MySQL driver style
// connection strings with "****".
func MaskDSN(dsn string) string {
	const mask, placeholder = "****", "REDACTED"

	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			// url escapes '*', so mask after formatting.
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), placeholder)
			}
			q := u.Query()
			if q.Has("password") {
				q.Set("password", placeholder)
				u.RawQuery = q.Encode()
			}
			return strings.ReplaceAll(u.String(), placeholder, mask)
		}
	}
	dsn = kvPassword.ReplaceAllString(dsn, "${1}=****")
	return driverPasswd.ReplaceAllString(dsn, "${1}:****@")
}
