// Package externalcreds is a client for the service that issues GA4GH
// passports for a user's linked identities.
package externalcreds

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/drs-resolver/pkg/upstream"
)

// OpPassport is the upstream operation name reported to upstream.Observer.
const OpPassport = "externalcreds_passport"

var passportTemplate = uritemplate.MustNew("{+base}/api/oidc/v1/{issuer}/passport")

// Client fetches passports for one issuer.
type Client struct {
	http    *upstream.Client
	baseURL string
	issuer  string
}

// NewClient creates a Client rooted at baseURL. An empty issuer defaults to "ras".
func NewClient(hc *upstream.Client, baseURL, issuer string) *Client {
	if issuer == "" {
		issuer = "ras"
	}
	return &Client{http: hc, baseURL: strings.TrimSuffix(baseURL, "/"), issuer: issuer}
}

// Passport returns the user's passport. A 404 means the user has none and is
// returned as an upstream.Error for which upstream.IsNotFound is true.
func (c *Client) Passport(ctx context.Context, bearer string) (string, error) {
	u, err := passportTemplate.Expand(uritemplate.Values{
		"base":   uritemplate.String(c.baseURL),
		"issuer": uritemplate.String(c.issuer),
	})
	if err != nil {
		return "", fmt.Errorf("expanding passport url: %w", err)
	}
	body, err := c.http.Get(ctx, OpPassport, u, upstream.BearerAuthorization(bearer))
	if err != nil {
		return "", err
	}

	// The service answers with a JSON string; tolerate a bare token too.
	var passport string
	if err := json.Unmarshal(body, &passport); err != nil {
		passport = strings.TrimSpace(string(body))
	}
	return passport, nil
}
