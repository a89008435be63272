package archivefs

import "github.com/mwantia/archivefs/log"

type Options struct {
	Logger *log.Logger
}

type Option func(*Options) error

func newDefaultOptions() *Options {
	return &Options{
		Logger: log.Noop(),
	}
}

// WithLogger routes accessor and backend logging to the given logger.
func WithLogger(logger *log.Logger) Option {
	return func(opts *Options) error {
		opts.Logger = logger
		return nil
	}
}
