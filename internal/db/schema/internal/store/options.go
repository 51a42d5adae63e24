// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package store

import (
	"github.com/gridguyz/patcher/internal/db/schema/migration"
	"github.com/hashicorp/go-hclog"
)

type options struct {
	withLogger   hclog.Logger
	withObserver migration.Observer
}

// Option configures a Store.
type Option func(*options)

func getOpts(opt ...Option) options {
	opts := options{
		withLogger:   hclog.NewNullLogger(),
		withObserver: migration.NopObserver{},
	}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithLogger sets the logger that receives one line per bookkeeping write.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithObserver sets the observer notified of bookkeeping writes.
func WithObserver(ob migration.Observer) Option {
	return func(o *options) {
		if ob != nil {
			o.withObserver = ob
		}
	}
}
