package platform

import (
	"crypto/tls"
	"fmt"

	"github.com/txn2/drs-resolver/pkg/locator"
	"github.com/txn2/drs-resolver/pkg/provider"
)

// BuildNormalizer creates the URI normalizer from the compact identifier
// and decommissioned host tables.
func (c *Config) BuildNormalizer() *locator.Normalizer {
	gone := make([]locator.Decommissioned, 0, len(c.GoneHosts))
	for _, g := range c.GoneHosts {
		gone = append(gone, locator.Decommissioned{HostSuffix: g.HostSuffix, Message: g.Message})
	}
	return locator.NewNormalizer(c.CompactIDHosts, gone)
}

// BuildRegistry compiles the provider table. Client certificates are read
// from disk here.
func (c *Config) BuildRegistry() (*provider.Registry, error) {
	defs := make([]*provider.Definition, 0, len(c.Providers))
	for _, pc := range c.Providers {
		def, err := pc.definition()
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		defs = append(defs, def)
	}
	reg, err := provider.NewRegistry(defs...)
	if err != nil {
		return nil, fmt.Errorf("building provider registry: %w", err)
	}
	return reg, nil
}

func (pc ProviderConfig) definition() (*provider.Definition, error) {
	pattern, err := provider.CompileHostPattern(pc.HostRegex)
	if err != nil {
		return nil, err
	}

	policies := make([]provider.AccessMethodPolicy, 0, len(pc.AccessMethods))
	for _, m := range pc.AccessMethods {
		p := provider.AccessMethodPolicy{
			Type:           provider.MethodType(m.Type),
			Auth:           provider.AuthMode(m.Auth),
			FetchAccessURL: m.FetchAccessURL,
		}
		if m.FallbackAuth != "" {
			p = p.WithFallback(provider.AuthMode(m.FallbackAuth))
		}
		policies = append(policies, p)
	}

	def := &provider.Definition{
		Name:                          pc.Name,
		HostPattern:                   pattern,
		MetadataAuth:                  pc.MetadataAuth,
		AccessMethods:                 policies,
		UseAliasesForLocalizationPath: pc.UseAliasesForLocalizationPath,
	}
	if pc.BondProvider != "" {
		def = def.WithBroker(provider.BondProvider(pc.BondProvider))
	}
	if pc.ClientCertFile != "" {
		cert, err := tls.LoadX509KeyPair(pc.ClientCertFile, pc.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		def = def.WithClientCertificate(cert)
	}
	return def, nil
}
