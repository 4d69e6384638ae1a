// Package provider describes the data repositories the resolver knows about
// and the decisions that follow from each repository's access policies.
package provider

import (
	"crypto/tls"
	"fmt"
	"regexp"

	"github.com/txn2/drs-resolver/pkg/drs"
)

// MethodType is the storage class of an access method.
type MethodType string

const (
	// MethodGCS is a Google Cloud Storage object.
	MethodGCS MethodType = "gs"
	// MethodS3 is an S3-compatible object.
	MethodS3 MethodType = "s3"
	// MethodHTTPS is a plain HTTPS download.
	MethodHTTPS MethodType = "https"
)

// Valid reports whether t is a known method type.
func (t MethodType) Valid() bool {
	switch t {
	case MethodGCS, MethodS3, MethodHTTPS:
		return true
	}
	return false
}

// AuthMode is how a signed-URL request is authorized.
type AuthMode string

const (
	// AuthPassport posts the caller's GA4GH passports.
	AuthPassport AuthMode = "passport"
	// AuthCurrentRequest forwards the caller's own bearer token.
	AuthCurrentRequest AuthMode = "current_request"
	// AuthFenceToken sends a fence token obtained from the broker.
	AuthFenceToken AuthMode = "fence_token"
)

// Valid reports whether m is a known auth mode.
func (m AuthMode) Valid() bool {
	switch m {
	case AuthPassport, AuthCurrentRequest, AuthFenceToken:
		return true
	}
	return false
}

// BondProvider names a fence integration in the credential broker.
type BondProvider string

// Known broker identities.
const (
	BondDCFFence  BondProvider = "dcf-fence"
	BondFence     BondProvider = "fence"
	BondAnVIL     BondProvider = "anvil"
	BondKidsFirst BondProvider = "kids-first"
)

// Valid reports whether p is a known broker identity.
func (p BondProvider) Valid() bool {
	switch p {
	case BondDCFFence, BondFence, BondAnVIL, BondKidsFirst:
		return true
	}
	return false
}

// AccessMethodPolicy is how a provider's objects of one method type are reached.
type AccessMethodPolicy struct {
	Type           MethodType
	Auth           AuthMode
	FetchAccessURL bool

	fallback    AuthMode
	hasFallback bool
}

// WithFallback returns a copy of p that retries signed-URL retrieval with mode.
func (p AccessMethodPolicy) WithFallback(mode AuthMode) AccessMethodPolicy {
	p.fallback = mode
	p.hasFallback = true
	return p
}

// Fallback returns the fallback auth mode, if one is declared.
func (p AccessMethodPolicy) Fallback() (AuthMode, bool) {
	return p.fallback, p.hasFallback
}

// Definition is one data repository. Definitions are immutable once built.
type Definition struct {
	Name                          string
	HostPattern                   *regexp.Regexp
	MetadataAuth                  bool
	AccessMethods                 []AccessMethodPolicy
	UseAliasesForLocalizationPath bool

	broker     BondProvider
	clientCert *tls.Certificate
}

// WithBroker returns a copy of d linked to the broker provider p.
func (d *Definition) WithBroker(p BondProvider) *Definition {
	cp := *d
	cp.broker = p
	return &cp
}

// WithClientCertificate returns a copy of d that presents cert on
// passport-authorized signed-URL requests.
func (d *Definition) WithClientCertificate(cert tls.Certificate) *Definition {
	cp := *d
	cp.clientCert = &cert
	return &cp
}

// Broker returns the broker provider, if the repository has one.
func (d *Definition) Broker() (BondProvider, bool) {
	return d.broker, d.broker != ""
}

// ClientCertificate returns the mutual-TLS certificate, if configured.
func (d *Definition) ClientCertificate() (tls.Certificate, bool) {
	if d.clientCert == nil {
		return tls.Certificate{}, false
	}
	return *d.clientCert, true
}

// PolicyFor returns the first policy declared for method type t.
func (d *Definition) PolicyFor(t string) (AccessMethodPolicy, bool) {
	for _, p := range d.AccessMethods {
		if string(p.Type) == t {
			return p, true
		}
	}
	return AccessMethodPolicy{}, false
}

// declares reports whether any policy covers method type t.
func (d *Definition) declares(t MethodType) bool {
	_, ok := d.PolicyFor(string(t))
	return ok
}

// SelectAccessMethod picks the returned method to use for signed-URL
// retrieval. Policies are walked in declared order; the first returned
// method whose type matches the current policy wins.
func (d *Definition) SelectAccessMethod(returned []drs.AccessMethod) (*drs.AccessMethod, bool) {
	for _, p := range d.AccessMethods {
		for i := range returned {
			if returned[i].Type == string(p.Type) {
				m := returned[i]
				return &m, true
			}
		}
	}
	return nil, false
}

// CompileHostPattern compiles expr so that it must match an entire host.
func CompileHostPattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid host pattern %q: %w", expr, err)
	}
	return re, nil
}
