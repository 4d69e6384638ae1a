package drs

import (
	"context"
	"net/url"

	"github.com/txn2/drs-resolver/pkg/locator"
	"github.com/txn2/drs-resolver/pkg/upstream"
)

// Upstream operation names reported to upstream.Observer.
const (
	OpObject    = "drs_object"
	OpAccessURL = "drs_access_url"
)

const objectsPath = "/ga4gh/drs/v1/objects/"

// Client talks to DRS servers. The server is taken from each locator.
type Client struct {
	http   *upstream.Client
	scheme string
}

// NewClient creates a Client that reaches servers over HTTPS.
func NewClient(hc *upstream.Client) *Client {
	return &Client{http: hc, scheme: "https"}
}

// WithScheme returns a copy of the client using scheme instead of https.
func (c *Client) WithScheme(scheme string) *Client {
	cc := *c
	cc.scheme = scheme
	return &cc
}

// ObjectURL returns the descriptor endpoint for loc. The object path is
// already escaped and is used as is.
func (c *Client) ObjectURL(loc locator.Locator) string {
	base := url.URL{Scheme: c.scheme, Host: loc.Authority()}
	u := base.String() + objectsPath + loc.ObjectPath
	if loc.Query != "" {
		u += "?" + loc.Query
	}
	return u
}

// AccessURLEndpoint returns the signed-URL endpoint for loc and accessID.
func (c *Client) AccessURLEndpoint(loc locator.Locator, accessID string) string {
	base := url.URL{Scheme: c.scheme, Host: loc.Authority()}
	u := base.String() + objectsPath + loc.ObjectPath + "/access/" + url.PathEscape(accessID)
	if loc.Query != "" {
		u += "?" + loc.Query
	}
	return u
}

// GetObject fetches the object descriptor. authorization is sent verbatim
// when non-empty.
func (c *Client) GetObject(ctx context.Context, loc locator.Locator, authorization string) (*Object, error) {
	u := c.ObjectURL(loc)
	body, err := c.http.Get(ctx, OpObject, u, authorization)
	if err != nil {
		return nil, err
	}
	obj, err := DecodeObject(body)
	if err != nil {
		return nil, &upstream.Error{Op: OpObject, URL: u, Err: err}
	}
	return obj, nil
}

// GetAccessURL fetches a signed URL with a GET, sending authorization verbatim.
func (c *Client) GetAccessURL(ctx context.Context, loc locator.Locator, accessID, authorization string) (*AccessURL, error) {
	u := c.AccessURLEndpoint(loc, accessID)
	var out AccessURL
	if err := c.http.GetJSON(ctx, OpAccessURL, u, authorization, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostAccessURL fetches a signed URL by POSTing the caller's passports.
func (c *Client) PostAccessURL(ctx context.Context, loc locator.Locator, accessID string, passports []string) (*AccessURL, error) {
	u := c.AccessURLEndpoint(loc, accessID)
	in := struct {
		Passports []string `json:"passports"`
	}{Passports: passports}
	var out AccessURL
	if err := c.http.PostJSON(ctx, OpAccessURL, u, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
