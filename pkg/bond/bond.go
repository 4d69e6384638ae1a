// Package bond is a client for the credential broker that holds each user's
// linked fence accounts.
package bond

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/drs-resolver/pkg/upstream"
)

// Upstream operation names reported to upstream.Observer.
const (
	OpAccessToken    = "bond_access_token"
	OpServiceAccount = "bond_service_account"
	OpStatus         = "bond_status"
)

var (
	accessTokenTemplate    = uritemplate.MustNew("{+base}/api/link/v1/{provider}/accesstoken")
	serviceAccountTemplate = uritemplate.MustNew("{+base}/api/link/v1/{provider}/serviceaccount/key")
	statusTemplate         = uritemplate.MustNew("{+base}/api/status/v1/")
)

// Client calls the broker on behalf of a user.
type Client struct {
	http    *upstream.Client
	baseURL string
}

// NewClient creates a Client rooted at baseURL.
func NewClient(hc *upstream.Client, baseURL string) *Client {
	return &Client{http: hc, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *Client) endpoint(tmpl *uritemplate.Template, provider string) (string, error) {
	u, err := tmpl.Expand(uritemplate.Values{
		"base":     uritemplate.String(c.baseURL),
		"provider": uritemplate.String(provider),
	})
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", tmpl.Raw(), err)
	}
	return u, nil
}

// AccessToken returns the user's fence access token for provider. A broker
// 404 means the user has no linked account and is returned as an
// upstream.Error for which upstream.IsNotFound is true.
func (c *Client) AccessToken(ctx context.Context, provider, bearer string) (string, error) {
	u, err := c.endpoint(accessTokenTemplate, provider)
	if err != nil {
		return "", err
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at,omitempty"`
	}
	if err := c.http.GetJSON(ctx, OpAccessToken, u, upstream.BearerAuthorization(bearer), &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// ServiceAccountKey returns the broker's service-account key document for
// provider exactly as the broker returned it.
func (c *Client) ServiceAccountKey(ctx context.Context, provider, bearer string) (json.RawMessage, error) {
	u, err := c.endpoint(serviceAccountTemplate, provider)
	if err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.http.GetJSON(ctx, OpServiceAccount, u, upstream.BearerAuthorization(bearer), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status checks that the broker is up.
func (c *Client) Status(ctx context.Context) error {
	u, err := c.endpoint(statusTemplate, "")
	if err != nil {
		return err
	}
	_, err = c.http.Get(ctx, OpStatus, u, "")
	return err
}
