package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/drs-resolver/pkg/api"
	"github.com/txn2/drs-resolver/pkg/bond"
	"github.com/txn2/drs-resolver/pkg/drs"
	"github.com/txn2/drs-resolver/pkg/externalcreds"
	"github.com/txn2/drs-resolver/pkg/health"
	httpauth "github.com/txn2/drs-resolver/pkg/http"
	"github.com/txn2/drs-resolver/pkg/mcptool"
	"github.com/txn2/drs-resolver/pkg/metrics"
	"github.com/txn2/drs-resolver/pkg/resolver"
	"github.com/txn2/drs-resolver/pkg/upstream"
)

var (
	_ resolver.ObjectClient     = (*drs.Client)(nil)
	_ resolver.CredentialBroker = (*bond.Client)(nil)
	_ resolver.PassportSource   = (*externalcreds.Client)(nil)
	_ resolver.Recorder         = (*metrics.Metrics)(nil)
	_ api.Resolver              = (*resolver.Resolver)(nil)
	_ mcptool.Resolver          = (*deadlineResolver)(nil)
)

// Platform is the assembled service.
type Platform struct {
	config *Config
	logger *slog.Logger

	lifecycle *Lifecycle
	health    *health.Checker
	metrics   *metrics.Metrics

	broker    *bond.Client
	resolver  *resolver.Resolver
	mcpServer *mcp.Server
}

// New creates a new platform instance. The config is validated first.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		lifecycle: NewLifecycle(),
		health:    health.NewChecker(),
		metrics:   metrics.New(),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if err := p.initResolver(options); err != nil {
		return nil, fmt.Errorf("initializing resolver: %w", err)
	}
	p.initMCP()
	p.initLifecycle()

	return p, nil
}

func (p *Platform) initResolver(opts *Options) error {
	reg, err := p.config.BuildRegistry()
	if err != nil {
		return err
	}
	p.logger.Info("provider registry loaded", "providers", reg.Names())

	hc := &http.Client{Timeout: p.config.Upstream.Timeout}
	userAgent := p.config.Upstream.UserAgent
	if userAgent == "" {
		userAgent = p.config.Server.Name + "/" + p.config.Server.Version
	}
	client := upstream.NewClient(hc,
		upstream.WithUserAgent(userAgent),
		upstream.WithObserver(p.metrics.ObserveUpstream),
	)

	newObjects := func(c *upstream.Client) *drs.Client {
		objects := drs.NewClient(c)
		if opts.DRSScheme != "" {
			objects = objects.WithScheme(opts.DRSScheme)
		}
		return objects
	}

	resolverOpts := []resolver.Option{resolver.WithRecorder(p.metrics)}
	if p.config.Upstream.BondURL != "" {
		p.broker = bond.NewClient(client, p.config.Upstream.BondURL)
		resolverOpts = append(resolverOpts, resolver.WithBroker(p.broker))
	}
	if p.config.Upstream.ExternalCredsURL != "" {
		resolverOpts = append(resolverOpts, resolver.WithPassportSource(
			externalcreds.NewClient(client, p.config.Upstream.ExternalCredsURL, p.config.Upstream.PassportIssuer)))
	}
	for _, def := range reg.Definitions() {
		if cert, ok := def.ClientCertificate(); ok {
			resolverOpts = append(resolverOpts, resolver.WithProviderObjects(def.Name, newObjects(client.WithCertificate(cert))))
		}
	}

	p.resolver = resolver.New(p.config.BuildNormalizer(), reg, newObjects(client), resolverOpts...)
	return nil
}

func (p *Platform) initMCP() {
	if !p.config.MCP.Enabled {
		return
	}
	p.mcpServer = mcptool.NewServer(p.config.Server.Name, p.config.Server.Version,
		deadlineResolver{next: p.resolver, timeout: p.config.Server.RequestTimeout})
}

// deadlineResolver bounds each MCP resolution by the request timeout. The MCP
// route carries long-lived streams and is not wrapped by Timeout.
type deadlineResolver struct {
	next    *resolver.Resolver
	timeout time.Duration
}

func (d deadlineResolver) Resolve(ctx context.Context, req resolver.Request) (map[string]any, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.next.Resolve(ctx, req)
}

func (p *Platform) initLifecycle() {
	p.lifecycle.Append("health",
		func(context.Context) error {
			p.health.SetReady()
			return nil
		},
		func(context.Context) error {
			p.health.SetDraining()
			return nil
		},
	)
	if p.broker != nil {
		p.health.AddCheck("bond", p.broker.Status)
	}
}

// Handler returns the HTTP handler serving every enabled endpoint.
func (p *Platform) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", p.health.LivenessHandler())
	mux.HandleFunc("GET /readyz", p.health.ReadinessHandler())

	if p.config.Metrics.Enabled {
		mux.Handle("GET "+p.config.Metrics.Path, p.metrics.Handler())
	}

	authMiddle := httpauth.RequireAuth()
	if p.config.Server.AllowAnonymous {
		authMiddle = httpauth.OptionalAuth()
	}

	mux.Handle(api.ResolvePath, httpauth.Chain(
		api.NewHandler(p.resolver, authMiddle),
		httpauth.RequestContext("rest"),
		httpauth.AccessLog(p.logger),
		httpauth.Timeout(p.config.Server.RequestTimeout),
	))

	if p.mcpServer != nil {
		mux.Handle(p.config.MCP.Path, httpauth.Chain(
			mcptool.Handler(p.mcpServer),
			httpauth.RequestContext("mcp"),
			httpauth.AccessLog(p.logger),
			authMiddle,
		))
	}

	return mux
}

// Start marks the platform ready.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop marks the platform draining and releases components.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// Resolver returns the resolution orchestrator.
func (p *Platform) Resolver() *resolver.Resolver {
	return p.resolver
}

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// MCPServer returns the MCP server, or nil when MCP is disabled.
func (p *Platform) MCPServer() *mcp.Server {
	return p.mcpServer
}
