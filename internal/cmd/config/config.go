// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the patcher configuration from an HCL file and
// PATCHER_ prefixed environment variables.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gridguyz/patcher/internal/db/common"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "patcher"

var (
	validLogLevels  = []string{"trace", "debug", "info", "notice", "warn", "warning", "err", "error"}
	validLogFormats = []string{"standard", "json"}
)

// Config is the configuration of a patch run.
type Config struct {
	Database *Database `hcl:"database"`

	Roots          []string    `hcl:"roots"`
	Schemas        []string    `hcl:"schemas"`
	ToVersion      string      `hcl:"to_version"`
	ExactTargetRaw interface{} `hcl:"exact_target"`
	ExactTarget    bool        `hcl:"-"`
	Lock           bool        `hcl:"lock"`

	LogLevel    string `hcl:"log_level"`
	LogFormat   string `hcl:"log_format"`
	LogFile     string `hcl:"log_file"`
	MetricsFile string `hcl:"metrics_file"`
}

// Database holds the connection settings.
type Database struct {
	// Url may be a literal connection string, or a file:// or env:// reference
	// to one.
	Url               string        `hcl:"url"`
	Schema            string        `hcl:"schema"`
	ConnectTimeoutRaw interface{}   `hcl:"connect_timeout"`
	ConnectTimeout    time.Duration `hcl:"-"`
}

// env mirrors the settings that can be overridden from the environment.
type env struct {
	DatabaseUrl    string   `split_words:"true"`
	DatabaseSchema string   `split_words:"true"`
	ConnectTimeout string   `split_words:"true"`
	Schemas        []string `split_words:"true"`
	ToVersion      string   `split_words:"true"`
	ExactTarget    *bool    `split_words:"true"`
	LogLevel       string   `split_words:"true"`
	LogFormat      string   `split_words:"true"`
	LogFile        string   `split_words:"true"`
	MetricsFile    string   `split_words:"true"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Database: &Database{
			ConnectTimeout: common.DefaultConnectTimeout,
		},
		ExactTarget: true,
	}
}

// LoadFile loads the configuration from the given file.
func LoadFile(path string) (*Config, error) {
	const op = "config.LoadFile"
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}
	c, err := Parse(string(d))
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithMsg(path))
	}
	return c, nil
}

// Parse decodes an HCL document on top of the defaults.
func Parse(d string) (*Config, error) {
	const op = "config.Parse"
	obj, err := hcl.Parse(d)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}
	result := New()
	if err := hcl.DecodeObject(result, obj); err != nil {
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}
	if result.Database == nil {
		result.Database = &Database{ConnectTimeout: common.DefaultConnectTimeout}
	}

	if result.ExactTargetRaw != nil {
		result.ExactTarget, err = parseutil.ParseBool(result.ExactTargetRaw)
		if err != nil {
			return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration), errors.WithMsg("exact_target"))
		}
	}
	if result.Database.ConnectTimeoutRaw != nil {
		result.Database.ConnectTimeout, err = parseutil.ParseDurationSecond(result.Database.ConnectTimeoutRaw)
		if err != nil {
			return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration), errors.WithMsg("database.connect_timeout"))
		}
	} else if result.Database.ConnectTimeout == 0 {
		result.Database.ConnectTimeout = common.DefaultConnectTimeout
	}
	return result, nil
}

// ApplyEnv overrides the configuration with PATCHER_ prefixed environment
// variables, such as PATCHER_DATABASE_URL or PATCHER_LOG_LEVEL. List values
// are comma separated.
func (c *Config) ApplyEnv() error {
	const op = "config.(Config).ApplyEnv"
	var e env
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}
	if c.Database == nil {
		c.Database = &Database{ConnectTimeout: common.DefaultConnectTimeout}
	}
	if e.DatabaseUrl != "" {
		c.Database.Url = e.DatabaseUrl
	}
	if e.DatabaseSchema != "" {
		c.Database.Schema = e.DatabaseSchema
	}
	if e.ConnectTimeout != "" {
		d, err := parseutil.ParseDurationSecond(e.ConnectTimeout)
		if err != nil {
			return errors.Wrap(err, op, errors.WithCode(errors.Configuration), errors.WithMsg("PATCHER_CONNECT_TIMEOUT"))
		}
		c.Database.ConnectTimeout = d
	}
	if len(e.Schemas) > 0 {
		c.Schemas = e.Schemas
	}
	if e.ToVersion != "" {
		c.ToVersion = e.ToVersion
	}
	if e.ExactTarget != nil {
		c.ExactTarget = *e.ExactTarget
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.LogFormat != "" {
		c.LogFormat = e.LogFormat
	}
	if e.LogFile != "" {
		c.LogFile = e.LogFile
	}
	if e.MetricsFile != "" {
		c.MetricsFile = e.MetricsFile
	}
	return nil
}

// DatabaseUrl resolves file:// and env:// references in the configured url.
func (c *Config) DatabaseUrl() (string, error) {
	const op = "config.(Config).DatabaseUrl"
	if c.Database == nil || strings.TrimSpace(c.Database.Url) == "" {
		return "", errors.New(errors.Configuration, op, "missing database url")
	}
	u, err := parseutil.ParsePath(c.Database.Url)
	switch {
	case err == nil:
	case stderrors.Is(err, parseutil.ErrNotAUrl):
		// a keyword/value connection string is used as is
		u = strings.TrimSpace(c.Database.Url)
	default:
		return "", errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}
	if u == "" {
		return "", errors.New(errors.Configuration, op, fmt.Sprintf("database url %q resolved to an empty value", c.Database.Url))
	}
	return u, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	const op = "config.(Config).Validate"
	var result *multierror.Error
	if _, err := c.DatabaseUrl(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Database != nil && c.Database.ConnectTimeout < 0 {
		result = multierror.Append(result, errors.New(errors.Configuration, op, "database.connect_timeout must not be negative"))
	}
	if c.LogLevel != "" && !oneOf(c.LogLevel, validLogLevels) {
		result = multierror.Append(result, errors.New(errors.Configuration, op, fmt.Sprintf("unknown log level %q", c.LogLevel)))
	}
	if c.LogFormat != "" && !oneOf(c.LogFormat, validLogFormats) {
		result = multierror.Append(result, errors.New(errors.Configuration, op, fmt.Sprintf("unknown log format %q", c.LogFormat)))
	}
	for _, s := range c.Schemas {
		if strings.TrimSpace(s) == "" {
			result = multierror.Append(result, errors.New(errors.Configuration, op, "empty entry in schemas"))
			break
		}
	}
	return result.ErrorOrNil()
}

// Sanitized returns the settings safe to print, with the password of the
// database url removed.
func (c *Config) Sanitized() map[string]interface{} {
	result := map[string]interface{}{
		"roots":        c.Roots,
		"schemas":      c.Schemas,
		"to_version":   c.ToVersion,
		"exact_target": c.ExactTarget,
		"lock":         c.Lock,
		"log_level":    c.LogLevel,
		"log_format":   c.LogFormat,
		"log_file":     c.LogFile,
		"metrics_file": c.MetricsFile,
	}
	if c.Database != nil {
		db := map[string]interface{}{
			"schema":          c.Database.Schema,
			"connect_timeout": c.Database.ConnectTimeout.String(),
		}
		if u, err := url.Parse(c.Database.Url); err == nil && u.Scheme != "" {
			db["url"] = u.Redacted()
		} else if c.Database.Url != "" {
			db["url"] = "redacted"
		}
		result["database"] = db
	}
	return result
}

func oneOf(s string, set []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
