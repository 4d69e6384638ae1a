// Package server provides a factory for creating the resolver platform.
package server

import (
	"fmt"

	"github.com/txn2/drs-resolver/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// New creates a platform from cfg. An empty server version is replaced by
// the build version.
func New(cfg *platform.Config, opts ...platform.Option) (*platform.Platform, error) {
	if cfg.Server.Version == "" {
		cfg.Server.Version = Version
	}
	p, err := platform.New(append([]platform.Option{platform.WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}
