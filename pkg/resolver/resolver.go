// Package resolver turns a DRS or DOS URI into the flat set of access
// metadata a caller asked for.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/txn2/drs-resolver/pkg/drs"
	"github.com/txn2/drs-resolver/pkg/fields"
	"github.com/txn2/drs-resolver/pkg/locator"
	"github.com/txn2/drs-resolver/pkg/middleware"
	"github.com/txn2/drs-resolver/pkg/provider"
	"github.com/txn2/drs-resolver/pkg/upstream"
)

// ObjectClient reaches DRS servers.
type ObjectClient interface {
	GetObject(ctx context.Context, loc locator.Locator, authorization string) (*drs.Object, error)
	GetAccessURL(ctx context.Context, loc locator.Locator, accessID, authorization string) (*drs.AccessURL, error)
	PostAccessURL(ctx context.Context, loc locator.Locator, accessID string, passports []string) (*drs.AccessURL, error)
}

// CredentialBroker issues fence tokens and service-account keys.
type CredentialBroker interface {
	AccessToken(ctx context.Context, provider, bearer string) (string, error)
	ServiceAccountKey(ctx context.Context, provider, bearer string) (json.RawMessage, error)
}

// PassportSource issues GA4GH passports.
type PassportSource interface {
	Passport(ctx context.Context, bearer string) (string, error)
}

// Recorder observes resolutions.
type Recorder interface {
	ResolutionFinished(provider, outcome string, elapsed time.Duration)
	AccessURLFallback(provider string)
}

type noopRecorder struct{}

var _ Recorder = noopRecorder{}

func (noopRecorder) ResolutionFinished(string, string, time.Duration) {}
func (noopRecorder) AccessURLFallback(string)                         {}

// Failure descriptions prefixed to upstream messages.
const (
	descMetadata = "Received error while resolving DRS URL."
	descBond     = "Received error contacting Bond."
	descPassport = "Received error contacting the external credentials service."
	descProvider = "Received error contacting DRS provider."
)

// Request is one resolution.
type Request struct {
	// URI is the drs:// or dos:// identifier.
	URI string
	// Fields are the requested output fields. Empty means fields.Default.
	Fields fields.Set
	// Bearer is the caller's access token, without the "Bearer " prefix.
	Bearer string
	// ForceAccessURL requests a signed URL regardless of provider policy.
	ForceAccessURL bool
}

// Metadata accumulates everything fetched during one resolution. Nil
// fields were not fetched or not derivable.
type Metadata struct {
	Object            *drs.Object
	FileName          *string
	LocalizationPath  *string
	AccessURL         *drs.AccessURL
	ServiceAccountKey json.RawMessage
}

// Resolver orchestrates the downstream calls for a resolution. It holds no
// per-request state and is safe for concurrent use.
type Resolver struct {
	normalizer      *locator.Normalizer
	registry        *provider.Registry
	objects         ObjectClient
	providerObjects map[string]ObjectClient
	broker          CredentialBroker
	passports       PassportSource
	recorder        Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBroker sets the credential broker.
func WithBroker(b CredentialBroker) Option {
	return func(r *Resolver) {
		r.broker = b
	}
}

// WithPassportSource sets the passport service.
func WithPassportSource(p PassportSource) Option {
	return func(r *Resolver) {
		r.passports = p
	}
}

// WithProviderObjects overrides the object client for one provider, for
// example to present a client certificate.
func WithProviderObjects(providerName string, c ObjectClient) Option {
	return func(r *Resolver) {
		r.providerObjects[providerName] = c
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// New creates a Resolver.
func New(normalizer *locator.Normalizer, registry *provider.Registry, objects ObjectClient, opts ...Option) *Resolver {
	r := &Resolver{
		normalizer:      normalizer,
		registry:        registry,
		objects:         objects,
		providerObjects: make(map[string]ObjectClient),
		recorder:        noopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolution is the state of one in-flight request.
type resolution struct {
	req       Request
	requested fields.Set
	locator   locator.Locator
	provider  *provider.Definition
	selected  *drs.AccessMethod
	passports []string
	metadata  Metadata
	log       *slog.Logger
}

type stage struct {
	name string
	run  func(context.Context, *resolution) error
}

func (r *Resolver) stages() []stage {
	return []stage{
		{"normalize", r.normalize},
		{"provider", r.resolveProvider},
		{"metadata", r.fetchMetadata},
		{"select", r.selectAccessMethod},
		{"credentials", r.fetchCredentials},
		{"names", r.deriveNames},
		{"access_url", r.fetchAccessURL},
	}
}

// Resolve runs a resolution and returns the requested fields that could be
// produced. Fields that are absent are omitted.
func (r *Resolver) Resolve(ctx context.Context, req Request) (map[string]any, error) {
	start := time.Now()
	res := &resolution{
		req:       req,
		requested: req.Fields.OrDefault(),
		log:       middleware.Logger(ctx),
	}

	for _, st := range r.stages() {
		if err := st.run(ctx, res); err != nil {
			res.log.Error("resolution failed", "stage", st.name, "url", req.URI, "error", err)
			r.recorder.ResolutionFinished(res.providerName(), KindOf(err).String(), time.Since(start))
			return nil, err
		}
	}
	r.recorder.ResolutionFinished(res.providerName(), "success", time.Since(start))

	return Assemble(res.requested, &res.metadata, res.provider, res.log), nil
}

func (res *resolution) providerName() string {
	if res.provider == nil {
		return "unknown"
	}
	return res.provider.Name
}

func (res *resolution) broker() string {
	b, _ := res.provider.Broker()
	return string(b)
}

func (r *Resolver) normalize(_ context.Context, res *resolution) error {
	loc, err := r.normalizer.Normalize(res.req.URI)
	if err != nil {
		return clientError(err)
	}
	res.locator = loc
	return nil
}

func (r *Resolver) resolveProvider(ctx context.Context, res *resolution) error {
	def, err := r.registry.Resolve(res.locator)
	if err != nil {
		return clientError(err)
	}
	res.provider = def
	res.log = res.log.With("provider", def.Name)
	if rc := middleware.GetRequestContext(ctx); rc != nil {
		rc.Provider = def.Name
	}
	return nil
}

func (r *Resolver) objectsFor(def *provider.Definition) ObjectClient {
	if c, ok := r.providerObjects[def.Name]; ok {
		return c
	}
	return r.objects
}

func (r *Resolver) fetchMetadata(ctx context.Context, res *resolution) error {
	if !res.provider.ShouldRequestMetadata(res.requested) {
		return nil
	}
	var authorization string
	if res.provider.MetadataAuth {
		authorization = upstream.BearerAuthorization(res.req.Bearer)
	}
	res.log.Info("requesting DRS metadata", "url", res.req.URI, "locator", res.locator.String())

	obj, err := r.objects.GetObject(ctx, res.locator, authorization)
	if err != nil {
		return upstreamError(descMetadata, err)
	}
	res.metadata.Object = obj
	return nil
}

func (r *Resolver) selectAccessMethod(_ context.Context, res *resolution) error {
	if res.metadata.Object == nil {
		return nil
	}
	if m, ok := res.provider.SelectAccessMethod(res.metadata.Object.AccessMethods); ok {
		res.selected = m
	}
	return nil
}

// fetchCredentials fetches the service-account key and passports. The two
// calls are independent and run concurrently.
func (r *Resolver) fetchCredentials(ctx context.Context, res *resolution) error {
	wantKey := res.provider.ShouldFetchServiceAccount(res.selected, res.requested)
	wantPassports := res.provider.ShouldFetchPassports(res.selected, res.requested)
	if !wantKey && !wantPassports {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if wantKey {
		g.Go(func() error {
			if r.broker == nil {
				return upstreamError(descBond, errors.New("credential broker is not configured"))
			}
			res.log.Info("requesting service account key", "bond_provider", res.broker())
			key, err := r.broker.ServiceAccountKey(gctx, res.broker(), res.req.Bearer)
			if err != nil {
				return upstreamError(descBond, err)
			}
			res.metadata.ServiceAccountKey = key
			return nil
		})
	}
	if wantPassports {
		g.Go(func() error {
			if r.passports == nil {
				res.log.Warn("passport requested but no passport service is configured")
				return nil
			}
			passport, err := r.passports.Passport(gctx, res.req.Bearer)
			switch {
			case upstream.IsNotFound(err):
				res.log.Info("user has no linked passport")
				return nil
			case err != nil:
				return upstreamError(descPassport, err)
			}
			if passport != "" {
				res.passports = []string{passport}
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Resolver) deriveNames(_ context.Context, res *resolution) error {
	obj := res.metadata.Object
	if obj == nil {
		return nil
	}
	res.metadata.FileName = fileNameOf(obj)
	if res.provider.UseAliasesForLocalizationPath && len(obj.Aliases) > 0 && obj.Aliases[0] != "" {
		alias := obj.Aliases[0]
		res.metadata.LocalizationPath = &alias
	}
	return nil
}

// fileNameOf prefers the declared name, then the last element of the first
// access method URL's path.
func fileNameOf(obj *drs.Object) *string {
	if obj.Name != "" {
		name := obj.Name
		return &name
	}
	if len(obj.AccessMethods) == 0 {
		return nil
	}
	raw := obj.AccessMethods[0].URL()
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	name := u.Path[strings.LastIndexAny(u.Path, `/\`)+1:]
	if name == "" {
		return nil
	}
	return &name
}

func (r *Resolver) fetchAccessURL(ctx context.Context, res *resolution) error {
	def := res.provider
	if !def.ShouldFetchAccessURL(res.selected, res.requested, res.req.ForceAccessURL) {
		return nil
	}
	if res.selected == nil || res.selected.AccessID == "" {
		res.log.Warn("signed URL requested but no access method with an access id was selected", "url", res.req.URI)
		return nil
	}

	au, err := r.signedURL(ctx, res)
	if err != nil {
		if def.ShouldFailOnAccessURLFail(res.selected) {
			return &Error{Kind: KindPolicy, Err: err}
		}
		res.log.Warn("ignoring error from fetching signed URL", "url", res.req.URI, "error", err)
		return nil
	}
	res.metadata.AccessURL = au
	return nil
}

// signedURL tries the selected method's auth mode and, when that yields no
// URL, its fallback mode exactly once.
func (r *Resolver) signedURL(ctx context.Context, res *resolution) (*drs.AccessURL, error) {
	policy, ok := res.provider.PolicyFor(res.selected.Type)
	if !ok {
		res.log.Warn("no policy for selected access method", "type", res.selected.Type)
		return nil, nil
	}

	token, err := r.fenceToken(ctx, res, false)
	if err != nil {
		return nil, err
	}
	au, err := r.accessURLWithAuth(ctx, res, policy.Auth, token)
	if err != nil || au != nil {
		return au, err
	}

	fallback, ok := policy.Fallback()
	if !ok {
		return nil, nil
	}
	res.log.Info("requesting signed URL with fallback auth", "auth", string(fallback))
	r.recorder.AccessURLFallback(res.provider.Name)

	token, err = r.fenceToken(ctx, res, true)
	if err != nil {
		return nil, err
	}
	return r.accessURLWithAuth(ctx, res, fallback, token)
}

// fenceToken returns the broker's fence token, or nil when none is needed or
// the user has no linked account.
func (r *Resolver) fenceToken(ctx context.Context, res *resolution, useFallback bool) (*string, error) {
	if !res.provider.ShouldFetchFenceAccessToken(res.selected, res.requested, useFallback, res.req.ForceAccessURL) {
		return nil, nil
	}
	if r.broker == nil {
		return nil, upstreamError(descBond, errors.New("credential broker is not configured"))
	}
	token, err := r.broker.AccessToken(ctx, res.broker(), res.req.Bearer)
	switch {
	case upstream.IsNotFound(err):
		res.log.Info("user does not have a Bond account linked", "bond_provider", res.broker())
		return nil, nil
	case err != nil:
		return nil, upstreamError(descBond, err)
	}
	return &token, nil
}

func (r *Resolver) accessURLWithAuth(ctx context.Context, res *resolution, mode provider.AuthMode, token *string) (*drs.AccessURL, error) {
	objects := r.objectsFor(res.provider)
	accessID := res.selected.AccessID

	switch mode {
	case provider.AuthPassport:
		if len(res.passports) == 0 {
			res.log.Info("no passports available for signed URL")
			return nil, nil
		}
		au, err := objects.PostAccessURL(ctx, res.locator, accessID, res.passports)
		if err != nil {
			res.log.Warn("passport authorized signed URL request failed", "error", err)
			return nil, nil
		}
		return nonEmpty(au), nil

	case provider.AuthCurrentRequest:
		au, err := objects.GetAccessURL(ctx, res.locator, accessID, upstream.BearerAuthorization(res.req.Bearer))
		if err != nil {
			return nil, upstreamError(descProvider, err)
		}
		return nonEmpty(au), nil

	case provider.AuthFenceToken:
		if token == nil || *token == "" {
			return nil, &Error{
				Kind: KindMissingCredential,
				Err: fmt.Errorf("%w: fence access token required for '%s' but is missing. Does user have an account linked in Bond?",
					ErrMissingCredential, res.req.URI),
			}
		}
		au, err := objects.GetAccessURL(ctx, res.locator, accessID, upstream.BearerAuthorization(*token))
		if err != nil {
			return nil, upstreamError(descProvider, err)
		}
		return nonEmpty(au), nil
	}
	return nil, fmt.Errorf("unsupported auth mode %q", mode)
}

func nonEmpty(au *drs.AccessURL) *drs.AccessURL {
	if au == nil || au.URL == "" {
		return nil
	}
	return au
}
