// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dbtest

// GetOpts - iterate the inbound Options and return a struct.
func GetOpts(opt ...Option) Options {
	opts := getDefaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// Option - how Options are passed as arguments.
type Option func(*Options)

// Options - how Options are represented.
type Options struct {
	withContainerImage string
	withDatabase       string
}

func getDefaultOptions() Options {
	return Options{
		withContainerImage: DefaultImage,
	}
}

// WithContainerImage sets the repo:tag of the postgres image to start.
func WithContainerImage(image string) Option {
	return func(o *Options) {
		o.withContainerImage = image
	}
}

// WithDatabase creates a fresh database with the given name on the server
// and returns its url instead of the server default.
func WithDatabase(name string) Option {
	return func(o *Options) {
		o.withDatabase = name
	}
}
