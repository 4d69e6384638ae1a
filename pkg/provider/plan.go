package provider

import (
	"github.com/txn2/drs-resolver/pkg/drs"
	"github.com/txn2/drs-resolver/pkg/fields"
)

// The decisions below are pure. selected is nil when no access method has
// been chosen, either because metadata was not fetched or because nothing
// the server returned matched a policy.

// ShouldRequestMetadata reports whether the object descriptor is needed.
func (d *Definition) ShouldRequestMetadata(requested fields.Set) bool {
	return requested.Overlaps(fields.Metadata)
}

// ShouldFetchAccessURL reports whether a signed URL should be requested.
func (d *Definition) ShouldFetchAccessURL(selected *drs.AccessMethod, requested fields.Set, force bool) bool {
	if !requested.Overlaps(fields.AccessID) {
		return false
	}
	if force {
		return true
	}
	if selected == nil {
		return false
	}
	p, ok := d.PolicyFor(selected.Type)
	return ok && p.FetchAccessURL
}

// ShouldFetchFenceAccessToken reports whether a fence token is needed for
// the primary or, when useFallback is set, the fallback signed-URL attempt.
func (d *Definition) ShouldFetchFenceAccessToken(selected *drs.AccessMethod, requested fields.Set, useFallback, force bool) bool {
	if _, ok := d.Broker(); !ok {
		return false
	}
	if !requested.Overlaps(fields.AccessID) {
		return false
	}
	if force {
		return true
	}
	if selected == nil {
		return false
	}
	for _, p := range d.AccessMethods {
		if string(p.Type) != selected.Type || !p.FetchAccessURL {
			continue
		}
		mode := p.Auth
		if useFallback {
			fb, ok := p.Fallback()
			if !ok {
				continue
			}
			mode = fb
		}
		if mode == AuthFenceToken {
			return true
		}
	}
	return false
}

// ShouldFetchServiceAccount reports whether the broker's service-account key
// is needed. An unselected method counts as possibly GCS.
func (d *Definition) ShouldFetchServiceAccount(selected *drs.AccessMethod, requested fields.Set) bool {
	if _, ok := d.Broker(); !ok {
		return false
	}
	if selected != nil && selected.Type != string(MethodGCS) {
		return false
	}
	return d.declares(MethodGCS) && requested.Overlaps(fields.ServiceAccount)
}

// ShouldFetchPassports reports whether the caller's passports are needed.
func (d *Definition) ShouldFetchPassports(selected *drs.AccessMethod, requested fields.Set) bool {
	if selected == nil || !requested.Overlaps(fields.AccessID) {
		return false
	}
	p, ok := d.PolicyFor(selected.Type)
	return ok && p.Auth == AuthPassport
}

// ShouldFailOnAccessURLFail reports whether a failed signed-URL fetch must
// fail the resolution. Only GCS objects remain usable without one.
func (d *Definition) ShouldFailOnAccessURLFail(selected *drs.AccessMethod) bool {
	return selected != nil && selected.Type != string(MethodGCS)
}
