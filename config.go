// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlmodel

import (
	"bytes"
	"log/slog"
	"os"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlmodel/ast"
	"github.com/canonical/sqlmodel/dialect"
)

// Config describes the database a Store is opened on.
type Config struct {
	// Driver is the database/sql driver name.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Dialect overrides the dialect registered for Driver.
	Dialect string `yaml:"dialect,omitempty"`
	// Unit is the schema tables are created in. It defaults to the
	// dialect's default schema.
	Unit       string `yaml:"unit,omitempty"`
	AccessMode string `yaml:"access-mode,omitempty"`
	LogLevel   string `yaml:"log-level,omitempty"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read config")
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML configuration. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Driver == "" {
		return errors.New("invalid config: driver not set")
	}
	if c.Dialect != "" {
		if _, ok := dialect.Lookup(c.Dialect); !ok {
			return errors.Errorf("invalid config: unknown dialect %q", c.Dialect)
		}
	}
	if c.Unit != "" {
		if _, err := ast.NewUnit(c.Unit); err != nil {
			return errors.Wrap(err, "invalid config")
		}
	}
	if _, err := ParseAccessMode(c.AccessMode); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Driver == "mysql" {
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return errors.Wrap(err, "invalid config: bad mysql dsn")
		}
	}
	return nil
}

// Mode returns the configured access mode.
func (c *Config) Mode() AccessMode {
	m, _ := ParseAccessMode(c.AccessMode)
	return m
}

// Level returns the configured log level, Info by default.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(err, "invalid config: log level %q", c.LogLevel)
	}
	return l, nil
}

// DataSource returns the DSN passed to the driver. MySQL reports matched
// rather than changed rows, so that updates leaving a row as it was still
// count as updating it.
func (c *Config) DataSource() (string, error) {
	if c.Driver != "mysql" {
		return c.DSN, nil
	}
	cfg, err := mysql.ParseDSN(c.DSN)
	if err != nil {
		return "", errors.Wrap(err, "bad mysql dsn")
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Options returns the Store options the configuration implies.
func (c *Config) Options(logger *slog.Logger) ([]Option, error) {
	var opts []Option
	d := dialect.For(c.Driver)
	if c.Dialect != "" {
		var ok bool
		if d, ok = dialect.Lookup(c.Dialect); !ok {
			return nil, errors.Errorf("unknown dialect %q", c.Dialect)
		}
	}
	opts = append(opts, WithDialect(d))
	if c.Unit != "" {
		u, err := ast.NewUnit(c.Unit)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithUnit(u))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return opts, nil
}

// Open opens a Store on the configured database.
func (c *Config) Open(logger *slog.Logger, opts ...Option) (*Store, error) {
	dsn, err := c.DataSource()
	if err != nil {
		return nil, err
	}
	base, err := c.Options(logger)
	if err != nil {
		return nil, err
	}
	return Open(c.Driver, dsn, append(base, opts...)...)
}
