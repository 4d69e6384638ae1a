// Package platform loads configuration and wires the resolver's components.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/drs-resolver/pkg/provider"
)

// CurrentConfigVersion is the only config apiVersion understood.
const CurrentConfigVersion = "v1"

// Config holds the complete service configuration.
type Config struct {
	APIVersion     string            `yaml:"apiVersion"`
	Server         ServerConfig      `yaml:"server"`
	Logging        LoggingConfig     `yaml:"logging"`
	Upstream       UpstreamConfig    `yaml:"upstream"`
	CompactIDHosts map[string]string `yaml:"compact_id_hosts"`
	GoneHosts      []GoneHostConfig  `yaml:"gone_hosts"`
	Providers      []ProviderConfig  `yaml:"providers"`
	MCP            MCPConfig         `yaml:"mcp"`
	Metrics        MetricsConfig     `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // bounds a whole resolution
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowAnonymous  bool          `yaml:"allow_anonymous"` // skip the 401 gate; upstreams still see no token
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// UpstreamConfig locates the credential services.
type UpstreamConfig struct {
	BondURL          string        `yaml:"bond_url"`
	ExternalCredsURL string        `yaml:"externalcreds_url"`
	PassportIssuer   string        `yaml:"passport_issuer"`
	Timeout          time.Duration `yaml:"timeout"` // per downstream call
	UserAgent        string        `yaml:"user_agent"`
}

// GoneHostConfig names a decommissioned host family.
type GoneHostConfig struct {
	HostSuffix string `yaml:"host_suffix"`
	Message    string `yaml:"message"`
}

// ProviderConfig defines one DRS provider. Order in the file is match priority.
type ProviderConfig struct {
	Name                          string               `yaml:"name"`
	HostRegex                     string               `yaml:"host_regex"`
	MetadataAuth                  bool                 `yaml:"metadata_auth"`
	BondProvider                  string               `yaml:"bond_provider"`
	UseAliasesForLocalizationPath bool                 `yaml:"use_aliases_for_localization_path"`
	AccessMethods                 []AccessMethodConfig `yaml:"access_methods"`
	ClientCertFile                string               `yaml:"client_cert_file"`
	ClientKeyFile                 string               `yaml:"client_key_file"`
}

// AccessMethodConfig is one access method policy.
type AccessMethodConfig struct {
	Type           string `yaml:"type"`
	Auth           string `yaml:"auth"`
	FetchAccessURL bool   `yaml:"fetch_access_url"`
	FallbackAuth   string `yaml:"fallback_auth"`
}

// MCPConfig configures the MCP endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, expanding ${VAR} references first.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

var envVarRegexp = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarRegexp.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "drs-resolver"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 55 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = cfg.Server.RequestTimeout + 5*time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.PassportIssuer == "" {
		cfg.Upstream.PassportIssuer = "ras"
	}
	if cfg.CompactIDHosts == nil {
		cfg.CompactIDHosts = DefaultCompactIDHosts()
	}
	if cfg.GoneHosts == nil {
		cfg.GoneHosts = DefaultGoneHosts()
	}
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders()
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = "/mcp"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.APIVersion != CurrentConfigVersion {
		errs = append(errs, fmt.Sprintf("unsupported config apiVersion %q; supported versions: %s",
			c.APIVersion, CurrentConfigVersion))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of json, text", c.Logging.Format))
	}
	for ns, host := range c.CompactIDHosts {
		if strings.TrimSpace(host) == "" {
			errs = append(errs, fmt.Sprintf("compact_id_hosts.%s: host is required", ns))
		}
	}
	for i, g := range c.GoneHosts {
		if g.HostSuffix == "" {
			errs = append(errs, fmt.Sprintf("gone_hosts[%d].host_suffix is required", i))
		}
	}
	if len(c.Providers) == 0 {
		errs = append(errs, "at least one provider is required")
	}

	errs = append(errs, c.validateProviders()...)

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateProviders() []string {
	var errs []string
	names := make(map[string]bool, len(c.Providers))
	needsBond, needsPassports := false, false

	for i, p := range c.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, prefix+".name is required")
		} else if names[p.Name] {
			errs = append(errs, fmt.Sprintf("%s.name %q is duplicated", prefix, p.Name))
		}
		names[p.Name] = true

		if p.HostRegex == "" {
			errs = append(errs, prefix+".host_regex is required")
		} else if _, err := provider.CompileHostPattern(p.HostRegex); err != nil {
			errs = append(errs, fmt.Sprintf("%s.host_regex: %v", prefix, err))
		}

		if p.BondProvider != "" {
			needsBond = true
			if !provider.BondProvider(p.BondProvider).Valid() {
				errs = append(errs, fmt.Sprintf("%s.bond_provider %q is not one of dcf-fence, fence, anvil, kids-first", prefix, p.BondProvider))
			}
		}
		if (p.ClientCertFile == "") != (p.ClientKeyFile == "") {
			errs = append(errs, prefix+": client_cert_file and client_key_file must be set together")
		}

		if len(p.AccessMethods) == 0 {
			errs = append(errs, prefix+".access_methods must not be empty")
		}
		seen := make(map[string]bool, len(p.AccessMethods))
		for j, m := range p.AccessMethods {
			mprefix := fmt.Sprintf("%s.access_methods[%d]", prefix, j)
			errs = append(errs, validateAccessMethod(mprefix, m)...)
			if seen[m.Type] {
				errs = append(errs, fmt.Sprintf("%s.type %q is declared twice", mprefix, m.Type))
			}
			seen[m.Type] = true
			if provider.AuthMode(m.Auth) == provider.AuthPassport {
				needsPassports = true
			}
			if provider.AuthMode(m.FallbackAuth) == provider.AuthFenceToken && p.BondProvider == "" {
				errs = append(errs, mprefix+": fence_token fallback requires a bond_provider")
			}
			if provider.AuthMode(m.Auth) == provider.AuthFenceToken && p.BondProvider == "" {
				errs = append(errs, mprefix+": fence_token auth requires a bond_provider")
			}
		}
	}

	if needsBond && c.Upstream.BondURL == "" {
		errs = append(errs, "upstream.bond_url is required when a provider names a bond_provider")
	}
	if needsPassports && c.Upstream.ExternalCredsURL == "" {
		errs = append(errs, "upstream.externalcreds_url is required when a provider uses passport auth")
	}
	return errs
}

func validateAccessMethod(prefix string, m AccessMethodConfig) []string {
	var errs []string
	if !provider.MethodType(m.Type).Valid() {
		errs = append(errs, fmt.Sprintf("%s.type %q is not one of gs, s3, https", prefix, m.Type))
	}
	if !provider.AuthMode(m.Auth).Valid() {
		errs = append(errs, fmt.Sprintf("%s.auth %q is not one of passport, current_request, fence_token", prefix, m.Auth))
	}
	if m.FallbackAuth == "" {
		return errs
	}
	switch {
	case !provider.AuthMode(m.FallbackAuth).Valid():
		errs = append(errs, fmt.Sprintf("%s.fallback_auth %q is not one of current_request, fence_token", prefix, m.FallbackAuth))
	case m.FallbackAuth == m.Auth:
		errs = append(errs, prefix+".fallback_auth must differ from auth")
	case provider.AuthMode(m.FallbackAuth) == provider.AuthPassport:
		// passports are only fetched for the primary mode
		errs = append(errs, prefix+".fallback_auth may not be passport")
	}
	return errs
}
