package platform

import "log/slog"

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Logger receives access logs (optional, defaults to slog.Default()).
	Logger *slog.Logger

	// DRSScheme is the scheme used to reach DRS providers (optional,
	// defaults to https).
	DRSScheme string
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the access logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDRSScheme overrides the scheme used to reach DRS providers.
func WithDRSScheme(scheme string) Option {
	return func(o *Options) {
		o.DRSScheme = scheme
	}
}
