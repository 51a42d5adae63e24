// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package common opens database handles for the patcher.
package common

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gridguyz/patcher/internal/errors"
	"github.com/hashicorp/go-hclog"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres is the dialect name accepted by SqlOpen.
const Postgres = "postgres"

// DefaultConnectTimeout bounds how long Open keeps retrying the first ping.
const DefaultConnectTimeout = 30 * time.Second

// SqlOpen opens a database handle for the named dialect. Both "postgres" and
// "pgx" select the pgx driver.
func SqlOpen(driverName, dataSourceName string) (*sql.DB, error) {
	switch driverName {
	case "postgres", "pgx":
		driverName = "pgx"
	}
	return sql.Open(driverName, dataSourceName)
}

type options struct {
	withConnectTimeout time.Duration
	withLogger         hclog.Logger
	withBackOff        backoff.BackOff
}

// Option configures Open.
type Option func(*options)

func getOpts(opt ...Option) options {
	opts := options{
		withConnectTimeout: DefaultConnectTimeout,
		withLogger:         hclog.NewNullLogger(),
	}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithConnectTimeout bounds the time spent waiting for the server. A zero
// or negative duration disables retrying.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.withConnectTimeout = d
	}
}

// WithLogger sets the logger used to report failed connection attempts.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithBackOff overrides the retry policy used while pinging the server.
func WithBackOff(b backoff.BackOff) Option {
	return func(o *options) {
		o.withBackOff = b
	}
}

// Open opens a postgres handle for url and pings it until it answers or the
// connect timeout elapses.
func Open(ctx context.Context, url string, opt ...Option) (*sql.DB, error) {
	const op = "common.Open"
	if url == "" {
		return nil, errors.New(errors.InvalidParameter, op, "missing database url")
	}
	opts := getOpts(opt...)

	db, err := SqlOpen(Postgres, url)
	if err != nil {
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration))
	}

	b := opts.withBackOff
	if b == nil {
		if opts.withConnectTimeout <= 0 {
			b = &backoff.StopBackOff{}
		} else {
			eb := backoff.NewExponentialBackOff()
			eb.MaxElapsedTime = opts.withConnectTimeout
			b = eb
		}
	}
	ping := func() error {
		return db.PingContext(ctx)
	}
	notify := func(err error, d time.Duration) {
		opts.withLogger.Warn("database not ready, retrying", "error", err, "backoff", d)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(b, ctx), notify); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, op, errors.WithCode(errors.Configuration), errors.WithMsg("unable to connect to database"))
	}
	return db, nil
}
