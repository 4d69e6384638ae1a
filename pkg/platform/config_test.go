package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const cfgTestFilePerms = 0o600

// writeTestConfig writes a YAML config to a temp dir and returns the path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), cfgTestFilePerms); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

// loadTestConfig writes YAML and loads it, failing on error.
func loadTestConfig(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := LoadConfig(writeTestConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	return cfg
}

const minimalProviders = `
providers:
  - name: Terra Data Repo (TDR)
    host_regex: 'jade.*\.datarepo-.*\.broadinstitute\.org'
    metadata_auth: true
    use_aliases_for_localization_path: true
    access_methods:
      - type: gs
        auth: current_request
`

func TestLoadConfig_ValidFile(t *testing.T) {
	cfg := loadTestConfig(t, `
server:
  name: test-resolver
  address: ":9090"
  request_timeout: 20s
logging:
  level: debug
  format: text
upstream:
  bond_url: https://bond.example.org
  timeout: 5s
compact_id_hosts:
  dg.4503: gen3.example.org
mcp:
  enabled: true
metrics:
  enabled: true
  path: /prom
`+minimalProviders)

	if cfg.Server.Name != "test-resolver" {
		t.Errorf("Server.Name = %q", cfg.Server.Name)
	}
	if cfg.Server.Address != ":9090" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Server.RequestTimeout != 20*time.Second {
		t.Errorf("Server.RequestTimeout = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want request timeout + 5s", cfg.Server.WriteTimeout)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.CompactIDHosts["dg.4503"] != "gen3.example.org" || len(cfg.CompactIDHosts) != 1 {
		t.Errorf("CompactIDHosts = %v, want only the configured entry", cfg.CompactIDHosts)
	}
	if len(cfg.Providers) != 1 || !cfg.Providers[0].MetadataAuth || !cfg.Providers[0].UseAliasesForLocalizationPath {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.Metrics.Path != "/prom" || !cfg.Metrics.Enabled {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if cfg.MCP.Path != "/mcp" || !cfg.MCP.Enabled {
		t.Errorf("MCP = %+v", cfg.MCP)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadTestConfig(t, `
upstream:
  bond_url: https://bond.example.org
  externalcreds_url: https://ecm.example.org
`)

	if cfg.APIVersion != CurrentConfigVersion {
		t.Errorf("APIVersion = %q", cfg.APIVersion)
	}
	if cfg.Server.Name != "drs-resolver" {
		t.Errorf("Server.Name = %q", cfg.Server.Name)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q", cfg.Server.Address)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Upstream.PassportIssuer != "ras" {
		t.Errorf("PassportIssuer = %q", cfg.Upstream.PassportIssuer)
	}
	if len(cfg.CompactIDHosts) != len(DefaultCompactIDHosts()) {
		t.Errorf("CompactIDHosts = %v", cfg.CompactIDHosts)
	}
	if len(cfg.GoneHosts) != 1 || cfg.GoneHosts[0].HostSuffix != "dataguids.org" {
		t.Errorf("GoneHosts = %v", cfg.GoneHosts)
	}
	if len(cfg.Providers) != len(DefaultProviders()) {
		t.Errorf("Providers = %d, want defaults", len(cfg.Providers))
	}
	if cfg.MCP.Enabled || cfg.Metrics.Enabled {
		t.Error("MCP and metrics should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BOND_URL", "https://bond.internal")
	cfg := loadTestConfig(t, `
upstream:
  bond_url: ${TEST_BOND_URL}
  externalcreds_url: ${TEST_UNSET_VAR}
`)
	if cfg.Upstream.BondURL != "https://bond.internal" {
		t.Errorf("BondURL = %q", cfg.Upstream.BondURL)
	}
	if cfg.Upstream.ExternalCredsURL != "" {
		t.Errorf("ExternalCredsURL = %q, want empty for unset variable", cfg.Upstream.ExternalCredsURL)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadConfig(writeTestConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := ParseConfig([]byte(minimalProviders))
		if err != nil {
			t.Fatalf("ParseConfig() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"api version", func(c *Config) { c.APIVersion = "v9" }, `unsupported config apiVersion "v9"`},
		{"tls without files", func(c *Config) { c.Server.TLS.Enabled = true }, "server.tls.cert_file"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty compact host", func(c *Config) { c.CompactIDHosts = map[string]string{"dg.x": " "} }, "compact_id_hosts.dg.x"},
		{"gone host suffix", func(c *Config) { c.GoneHosts = []GoneHostConfig{{Message: "gone"}} }, "gone_hosts[0].host_suffix"},
		{"no providers", func(c *Config) { c.Providers = []ProviderConfig{} }, "at least one provider"},
		{"missing name", func(c *Config) { c.Providers[0].Name = "" }, "providers[0].name is required"},
		{"duplicate name", func(c *Config) { c.Providers = append(c.Providers, c.Providers[0]) }, "is duplicated"},
		{"bad regex", func(c *Config) { c.Providers[0].HostRegex = "(" }, "providers[0].host_regex"},
		{"missing regex", func(c *Config) { c.Providers[0].HostRegex = "" }, "host_regex is required"},
		{"bad broker", func(c *Config) {
			c.Providers[0].BondProvider = "acme"
			c.Upstream.BondURL = "https://bond"
		}, `bond_provider "acme"`},
		{"broker without url", func(c *Config) { c.Providers[0].BondProvider = "fence" }, "upstream.bond_url is required"},
		{"cert without key", func(c *Config) { c.Providers[0].ClientCertFile = "cert.pem" }, "must be set together"},
		{"no methods", func(c *Config) { c.Providers[0].AccessMethods = nil }, "access_methods must not be empty"},
		{"bad type", func(c *Config) { c.Providers[0].AccessMethods[0].Type = "ftp" }, `type "ftp"`},
		{"bad auth", func(c *Config) { c.Providers[0].AccessMethods[0].Auth = "magic" }, `auth "magic"`},
		{"duplicate type", func(c *Config) {
			c.Providers[0].AccessMethods = append(c.Providers[0].AccessMethods, c.Providers[0].AccessMethods[0])
		}, "declared twice"},
		{"fallback equals auth", func(c *Config) { c.Providers[0].AccessMethods[0].FallbackAuth = "current_request" }, "must differ"},
		{"passport fallback", func(c *Config) {
			c.Providers[0].AccessMethods[0].FallbackAuth = "passport"
		}, "may not be passport"},
		{"unknown fallback", func(c *Config) { c.Providers[0].AccessMethods[0].FallbackAuth = "nope" }, `fallback_auth "nope"`},
		{"fence without broker", func(c *Config) { c.Providers[0].AccessMethods[0].Auth = "fence_token" }, "fence_token auth requires a bond_provider"},
		{"fence fallback without broker", func(c *Config) {
			c.Providers[0].AccessMethods[0].FallbackAuth = "fence_token"
		}, "fence_token fallback requires a bond_provider"},
		{"passport without ecm", func(c *Config) { c.Providers[0].AccessMethods[0].Auth = "passport" }, "upstream.externalcreds_url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := &Config{Providers: DefaultProviders()}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}
	if len(reg.Names()) != len(DefaultProviders()) {
		t.Errorf("Names() = %v", reg.Names())
	}

	defs := reg.Definitions()
	passport := defs[len(defs)-1]
	if broker, ok := passport.Broker(); !ok || broker != "dcf-fence" {
		t.Errorf("Broker() = %q, %v", broker, ok)
	}
	policy, ok := passport.PolicyFor("gs")
	if !ok {
		t.Fatal("passport provider has no gs policy")
	}
	if fb, ok := policy.Fallback(); !ok || fb != "fence_token" {
		t.Errorf("Fallback() = %q, %v", fb, ok)
	}

	tdr := defs[2]
	if _, ok := tdr.Broker(); ok {
		t.Error("TDR should have no broker")
	}
	if !tdr.HostPattern.MatchString("jade.datarepo-dev.broadinstitute.org") {
		t.Error("TDR pattern should match a data repo host")
	}
	if tdr.HostPattern.MatchString("jade.datarepo-dev.broadinstitute.org.evil.com") {
		t.Error("host pattern must match the whole host")
	}
}

func TestBuildRegistry_MissingCertificate(t *testing.T) {
	cfg := &Config{Providers: []ProviderConfig{{
		Name:           "mtls",
		HostRegex:      "drs\\.example\\.org",
		AccessMethods:  []AccessMethodConfig{{Type: "gs", Auth: "passport"}},
		ClientCertFile: "/nonexistent/cert.pem",
		ClientKeyFile:  "/nonexistent/key.pem",
	}}}
	_, err := cfg.BuildRegistry()
	if err == nil || !strings.Contains(err.Error(), "loading client certificate") {
		t.Errorf("BuildRegistry() error = %v, want certificate load failure", err)
	}
}

func TestBuildNormalizer(t *testing.T) {
	cfg := &Config{CompactIDHosts: DefaultCompactIDHosts(), GoneHosts: DefaultGoneHosts()}
	n := cfg.BuildNormalizer()

	loc, err := n.Normalize("drs://dg.4503:abc-123")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if loc.Host != "gen3.biodatacatalyst.nhlbi.nih.gov" || loc.ObjectPath != "abc-123" {
		t.Errorf("Normalize() = %+v", loc)
	}

	if _, err := n.Normalize("drs://www.dataguids.org/abc"); err == nil || !strings.Contains(err.Error(), "dataguids.org data has moved") {
		t.Errorf("Normalize() error = %v, want decommissioned message", err)
	}
}

func TestDefaultCompactIDHosts_ProviderRouting(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	n := cfg.BuildNormalizer()
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	tests := []struct {
		uri      string
		host     string
		provider string
	}{
		{"drs://drs.anv0:v2_1b0f", TerraDataRepoHost, "Terra Data Repo (TDR)"},
		{"drs://dg.anv0:abc", "gen3.theanvil.io", "NHGRI Analysis Visualization and Informatics Lab-space (The AnVIL)"},
		{"drs://dg.4503:abc", "gen3.biodatacatalyst.nhlbi.nih.gov", "BioData Catalyst (BDC)"},
		{"drs://dg.4dfc:abc", "nci-crdc.datacommons.io", "NCI Cancer Research / Proteomics Data Commons (CRDC / PDC)"},
		{"drs://dg.f82a1a:abc", "data.kidsfirstdrc.org", "Gabriella Miller Kids First DRC"},
		{"drs://dg.test0:abc", "ctds-test-env.planx-pla.net", "Passport Test Provider"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			loc, err := n.Normalize(tt.uri)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if loc.Host != tt.host {
				t.Errorf("Host = %q, want %q", loc.Host, tt.host)
			}
			def, err := reg.Resolve(loc)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if def.Name != tt.provider {
				t.Errorf("provider = %q, want %q", def.Name, tt.provider)
			}
		})
	}
}

func TestLoadConfig_Example(t *testing.T) {
	t.Setenv("BOND_URL", "https://bond.example.org")
	t.Setenv("EXTERNALCREDS_URL", "https://externalcreds.example.org")

	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(cfg.Providers) != len(DefaultProviders()) {
		t.Errorf("len(Providers) = %d, want %d", len(cfg.Providers), len(DefaultProviders()))
	}
	if cfg.Upstream.BondURL != "https://bond.example.org" {
		t.Errorf("Upstream.BondURL = %q", cfg.Upstream.BondURL)
	}
	if len(cfg.CompactIDHosts) != len(DefaultCompactIDHosts()) {
		t.Errorf("len(CompactIDHosts) = %d, want %d", len(cfg.CompactIDHosts), len(DefaultCompactIDHosts()))
	}
}
