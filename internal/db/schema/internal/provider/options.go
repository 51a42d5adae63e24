// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package provider

type options struct {
	withExactTarget bool
}

// Option configures New.
type Option func(*options)

func getOpts(opt ...Option) options {
	opts := options{
		withExactTarget: true,
	}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithExactTarget controls whether a walk that cannot land on its target is
// an error. It defaults to true.
func WithExactTarget(exact bool) Option {
	return func(o *options) {
		o.withExactTarget = exact
	}
}
