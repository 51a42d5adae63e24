// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package patch holds the commands that migrate databases: patch applies
// migrations and plan shows what patch would do.
package patch

import (
	"context"
	"database/sql"
	"flag"
	"io"
	"time"

	"github.com/gridguyz/patcher/internal/cmd/base"
	"github.com/gridguyz/patcher/internal/cmd/config"
	"github.com/gridguyz/patcher/internal/db/common"
	"github.com/gridguyz/patcher/internal/db/schema"
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/gridguyz/patcher/internal/errors"
	metric "github.com/gridguyz/patcher/internal/observability/metric"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/posener/complete"
)

const (
	flagNameToVersion      = "to-version"
	flagNameSchema         = "schema"
	flagNameExactTarget    = "exact-target"
	flagNameLock           = "lock"
	flagNameSearchPath     = "search-path"
	flagNameConnectTimeout = "connect-timeout"
	flagNameMetricsFile    = "metrics-file"
)

// runFlags are the options shared by patch and plan.
type runFlags struct {
	flagToVersion      string
	flagSchemas        []string
	flagExactTarget    bool
	flagLock           bool
	flagSearchPath     string
	flagConnectTimeout time.Duration
	flagMetricsFile    string
}

func (r *runFlags) addFlags(f *base.FlagSet, withMetrics bool) {
	f.StringVar(&base.StringVar{
		Name:       flagNameToVersion,
		Target:     &r.flagToVersion,
		Completion: complete.PredictAnything,
		Usage:      `Version every section is moved to. "0" uninstalls. When omitted each section is upgraded as far as its files allow.`,
	})
	f.StringSliceVar(&base.StringSliceVar{
		Name:       flagNameSchema,
		Target:     &r.flagSchemas,
		Completion: complete.PredictAnything,
		Usage: "Restrict the run to this schema. May be given more than once. Entries containing * are " +
			"glob patterns, and current_schema() selects the default schema of a single site database.",
	})
	f.BoolVar(&base.BoolVar{
		Name:    flagNameExactTarget,
		Target:  &r.flagExactTarget,
		Default: true,
		Usage:   "Fail when a section cannot land exactly on -to-version. When false, such a section stops at the nearest version its files reach.",
	})
	f.BoolVar(&base.BoolVar{
		Name:   flagNameLock,
		Target: &r.flagLock,
		Usage:  "Take an exclusive advisory lock for the run and fail fast when another patcher holds it.",
	})
	f.StringVar(&base.StringVar{
		Name:       flagNameSearchPath,
		Target:     &r.flagSearchPath,
		Completion: complete.PredictAnything,
		Usage:      "Schema put in front of the session search path before the run. Overrides database.schema of the configuration file.",
	})
	f.DurationVar(&base.DurationVar{
		Name:       flagNameConnectTimeout,
		Target:     &r.flagConnectTimeout,
		Completion: complete.PredictAnything,
		Usage:      "How long to keep retrying the initial connection. Overrides database.connect_timeout of the configuration file.",
	})
	if withMetrics {
		f.StringVar(&base.StringVar{
			Name:       flagNameMetricsFile,
			Target:     &r.flagMetricsFile,
			Completion: complete.PredictFiles("*.prom"),
			Usage:      "Write run metrics to this file in the Prometheus text format, for the node exporter textfile collector.",
		})
	}
}

// loadConfig merges the configuration file, the environment and the flags,
// in increasing order of precedence.
func loadConfig(c *base.Command, set *base.FlagSets, r *runFlags) (*config.Config, error) {
	const op = "patch.loadConfig"
	cfg := config.New()
	if c.FlagConfig != "" {
		var err error
		if cfg, err = config.LoadFile(c.FlagConfig); err != nil {
			return nil, errors.Wrap(err, op)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	if c.FlagDatabaseUrl != "" {
		cfg.Database.Url = c.FlagDatabaseUrl
	}
	set.Visit(func(f *flag.Flag) {
		switch f.Name {
		case flagNameToVersion:
			cfg.ToVersion = r.flagToVersion
		case flagNameSchema:
			cfg.Schemas = r.flagSchemas
		case flagNameExactTarget:
			cfg.ExactTarget = r.flagExactTarget
		case flagNameLock:
			cfg.Lock = r.flagLock
		case flagNameSearchPath:
			cfg.Database.Schema = r.flagSearchPath
		case flagNameConnectTimeout:
			cfg.Database.ConnectTimeout = r.flagConnectTimeout
		case flagNameMetricsFile:
			cfg.MetricsFile = r.flagMetricsFile
		}
	})
	if args := set.Args(); len(args) > 0 {
		cfg.Roots = args
	}

	var result *multierror.Error
	if err := cfg.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if len(cfg.Roots) == 0 {
		result = multierror.Append(result, errors.New(errors.InvalidParameter, op, "at least one migration root is required"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// targetVersion parses the configured target. The empty string means the
// latest version.
func targetVersion(cfg *config.Config) (*migration.Version, error) {
	const op = "patch.targetVersion"
	if cfg.ToVersion == "" {
		return nil, nil
	}
	v, err := migration.ParseVersion(cfg.ToVersion)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	return &v, nil
}

// run is a ready to use patcher with everything it holds open.
type run struct {
	cfg     *config.Config
	to      *migration.Version
	logger  hclog.Logger
	db      *sql.DB
	patcher *schema.Patcher
	metrics *metric.Observer

	logCloser io.Closer
}

// setup parses args and connects. On failure it prints the error and returns
// the exit code.
func setup(ctx context.Context, c *base.Command, set *base.FlagSets, r *runFlags, args []string) (*run, int) {
	if err := set.Parse(args); err != nil {
		c.PrintCliError(err)
		return nil, base.CommandUserError
	}
	cfg, err := loadConfig(c, set, r)
	if err != nil {
		c.PrintCliError(err)
		return nil, base.CommandUserError
	}
	to, err := targetVersion(cfg)
	if err != nil {
		c.PrintCliError(err)
		return nil, base.CommandUserError
	}
	level, format, err := base.ProcessLogLevelAndFormat(c.FlagLogLevel, c.FlagLogFormat, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		c.PrintCliError(err)
		return nil, base.CommandUserError
	}
	logger, logCloser, err := base.NewLogger("patcher", level, format, cfg.LogFile)
	if err != nil {
		c.PrintCliError(err)
		return nil, base.CommandCliError
	}
	ret := &run{cfg: cfg, to: to, logger: logger, logCloser: logCloser}
	logger.Debug("configuration loaded", "config", cfg.Sanitized())

	url, err := cfg.DatabaseUrl()
	if err != nil {
		ret.close()
		c.PrintCliError(err)
		return nil, base.CommandUserError
	}
	ret.db, err = common.Open(ctx, url,
		common.WithConnectTimeout(cfg.Database.ConnectTimeout),
		common.WithLogger(logger.Named("db")))
	if err != nil {
		ret.close()
		c.PrintCliError(err)
		return nil, base.CommandMigrationError
	}

	opts := []schema.Option{
		schema.WithLogger(logger),
		schema.WithSearchPath(cfg.Database.Schema),
		schema.WithExactTarget(cfg.ExactTarget),
		schema.WithLock(cfg.Lock),
		schema.WithSchemas(cfg.Schemas...),
	}
	if cfg.MetricsFile != "" {
		ret.metrics = metric.New()
		opts = append(opts, schema.WithObserver(ret.metrics))
	}
	ret.patcher, err = schema.NewPatcher(ctx, ret.db, opts...)
	if err != nil {
		ret.close()
		c.PrintCliError(err)
		return nil, base.CommandMigrationError
	}
	return ret, base.CommandSuccess
}

// writeMetrics records the outcome of the run and writes the metrics file,
// when one is configured.
func (r *run) writeMetrics(start time.Time, runErr error) error {
	if r.metrics == nil {
		return nil
	}
	r.metrics.RecordRun(start, runErr)
	return r.metrics.WriteTextfile(r.cfg.MetricsFile)
}

func (r *run) close() {
	if r.patcher != nil {
		if err := r.patcher.Close(); err != nil {
			r.logger.Warn("error closing patcher connection", "error", err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("error closing database", "error", err)
		}
	}
	if r.logCloser != nil {
		_ = r.logCloser.Close()
	}
}
