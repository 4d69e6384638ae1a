// Package locator turns DOS/DRS URIs, including compact identifiers, into a
// canonical host + object path that every later step can address directly.
//
// Two dialects are accepted. W3C style absolute URIs
// (drs://host.example.org/object-id) are parsed with net/url. Compact
// identifiers (drs://dg.4503:object-id) carry a namespace instead of a host;
// the namespace is expanded through a configured lookup table.
package locator

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Sentinel errors. Both are client errors.
var (
	// ErrMalformed reports a URI that matches neither grammar, names an
	// unknown namespace, or lacks a host or path.
	ErrMalformed = errors.New("malformed locator")

	// ErrGone reports a URI addressing a decommissioned host.
	ErrGone = errors.New("locator host decommissioned")
)

// compactIDRegexp matches drs://<namespace><separator><suffix>[?query].
var compactIDRegexp = regexp.MustCompile(`^(?i)(?:dos|drs)://((?:dg|drs)\.[0-9a-z-]+)([:/])([^?]*)(?:\?(.*))?$`)

// Locator is the canonical form of a DRS URI.
type Locator struct {
	// Host is never empty for a Locator returned by Normalize.
	Host string
	// Port is empty unless the URI named one explicitly.
	Port string
	// ObjectPath is the escaped object id, without a leading slash.
	ObjectPath string
	// Query is the raw query string without '?', empty when absent.
	Query string
}

// Authority returns host[:port].
func (l Locator) Authority() string {
	if l.Port == "" {
		return l.Host
	}
	return net.JoinHostPort(l.Host, l.Port)
}

// ObjectID returns the object path followed by the query, if any.
func (l Locator) ObjectID() string {
	if l.Query == "" {
		return l.ObjectPath
	}
	return l.ObjectPath + "?" + l.Query
}

// String returns the locator as a drs:// URI.
func (l Locator) String() string {
	return "drs://" + l.Authority() + "/" + l.ObjectID()
}

// Decommissioned describes a host family that no longer serves data.
type Decommissioned struct {
	// HostSuffix matches any host ending with it.
	HostSuffix string
	// Message is returned verbatim to the caller.
	Message string
}

// Normalizer parses URIs. It is immutable and safe for concurrent use.
type Normalizer struct {
	hosts map[string]string
	gone  []Decommissioned
}

// NewNormalizer creates a Normalizer. hosts maps compact identifier
// namespaces (matched case-insensitively) to hosts.
func NewNormalizer(hosts map[string]string, gone []Decommissioned) *Normalizer {
	lower := make(map[string]string, len(hosts))
	for ns, host := range hosts {
		lower[strings.ToLower(ns)] = host
	}
	return &Normalizer{
		hosts: lower,
		gone:  append([]Decommissioned(nil), gone...),
	}
}

// Normalize parses uri into a Locator.
func (n *Normalizer) Normalize(uri string) (Locator, error) {
	if m := compactIDRegexp.FindStringSubmatch(uri); m != nil {
		return n.expandCompact(m[1], m[2], m[3], m[4])
	}
	return n.parseGeneric(uri)
}

func (n *Normalizer) expandCompact(namespace, separator, suffix, query string) (Locator, error) {
	ns := strings.ToLower(namespace)
	host, ok := n.hosts[ns]
	if !ok || host == "" {
		return Locator{}, fmt.Errorf("%w: unrecognized compact identifier namespace '%s'", ErrMalformed, namespace)
	}
	if err := n.checkGone(host); err != nil {
		return Locator{}, err
	}

	// Some providers repeat the namespace: drs://dg.abcd:dg.abcd/object-id.
	if separator == ":" && len(suffix) > len(ns) && strings.EqualFold(suffix[:len(ns)+1], ns+"/") {
		suffix = suffix[len(ns)+1:]
	}
	if suffix == "" {
		return Locator{}, fmt.Errorf("%w: compact identifier '%s' has no object id", ErrMalformed, namespace)
	}

	return Locator{
		Host:       host,
		ObjectPath: escapeSegments(suffix),
		Query:      query,
	}, nil
}

func (n *Normalizer) parseGeneric(uri string) (Locator, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	host := u.Hostname()
	if host == "" {
		return Locator{}, fmt.Errorf("%w: '%s' is missing a host and/or a path", ErrMalformed, uri)
	}
	if err := n.checkGone(host); err != nil {
		return Locator{}, err
	}
	path := strings.TrimPrefix(u.EscapedPath(), "/")
	if path == "" {
		return Locator{}, fmt.Errorf("%w: '%s' is missing a host and/or a path", ErrMalformed, uri)
	}
	return Locator{
		Host:       host,
		Port:       u.Port(),
		ObjectPath: path,
		Query:      u.RawQuery,
	}, nil
}

func (n *Normalizer) checkGone(host string) error {
	h := strings.ToLower(host)
	for _, d := range n.gone {
		if d.HostSuffix != "" && strings.HasSuffix(h, strings.ToLower(d.HostSuffix)) {
			return fmt.Errorf("%w: %s", ErrGone, d.Message)
		}
	}
	return nil
}

// escapeSegments percent-encodes each slash separated segment, keeping the
// slashes as path separators.
func escapeSegments(suffix string) string {
	parts := strings.Split(suffix, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
