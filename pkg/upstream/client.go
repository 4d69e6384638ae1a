// Package upstream provides the JSON-over-HTTPS client shared by the DRS,
// credential broker and passport service integrations.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/txn2/drs-resolver/pkg/middleware"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 10 << 20

// Observer is notified after every upstream call completes.
type Observer func(op string, err error)

// Client issues JSON requests to upstream services.
type Client struct {
	hc        *http.Client
	userAgent string
	observer  Observer
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithObserver registers a callback invoked after every call.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a Client. A nil http.Client gets a default with a 60s timeout.
func NewClient(hc *http.Client, opts ...Option) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{hc: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithCertificate returns a copy of the client that presents cert during the
// TLS handshake. The copy owns a separate transport.
func (c *Client) WithCertificate(cert tls.Certificate) *Client {
	var base *http.Transport
	if t, ok := c.hc.Transport.(*http.Transport); ok {
		base = t.Clone()
	} else {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if base.TLSClientConfig != nil {
		tlsCfg = base.TLSClientConfig.Clone()
	}
	tlsCfg.Certificates = []tls.Certificate{cert}
	base.TLSClientConfig = tlsCfg

	hc := *c.hc
	hc.Transport = base
	return &Client{hc: &hc, userAgent: c.userAgent, observer: c.observer}
}

// BearerAuthorization returns the Authorization header value for token, or ""
// when there is no token.
func BearerAuthorization(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// Get issues a GET and returns the raw response body.
func (c *Client) Get(ctx context.Context, op, url, authorization string) ([]byte, error) {
	return c.do(ctx, op, http.MethodGet, url, authorization, nil)
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, op, url, authorization string, out any) error {
	body, err := c.do(ctx, op, http.MethodGet, url, authorization, nil)
	if err != nil {
		return err
	}
	return decode(op, url, body, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, op, url, authorization string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{Op: op, URL: url, Err: fmt.Errorf("encoding request: %w", err)}
	}
	body, err := c.do(ctx, op, http.MethodPost, url, authorization, payload)
	if err != nil {
		return err
	}
	return decode(op, url, body, out)
}

func (c *Client) do(ctx context.Context, op, method, url, authorization string, payload []byte) (body []byte, err error) {
	logger := middleware.Logger(ctx).With("call", op, "method", method, "url", loggableURL(url))
	logger.Debug("calling upstream")
	start := time.Now()
	defer func() {
		attrs := []any{"duration_ms", time.Since(start).Milliseconds()}
		if err != nil {
			attrs = append(attrs, "status", StatusCode(err), "error", err)
		}
		logger.Debug("upstream call finished", attrs...)
		if c.observer != nil {
			c.observer(op, err)
		}
	}()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &Error{Op: op, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Op: op, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Op: op, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Op:         op,
			URL:        url,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(body, resp.Status),
		}
	}
	return body, nil
}

// loggableURL drops any userinfo from raw.
func loggableURL(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return u.String()
}

func decode(op, url string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, URL: url, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// extractMessage pulls a human-readable message out of an error body. It
// understands {"error":{"message":...}}, {"msg":...} and {"message":...},
// and falls back to the raw text.
func extractMessage(body []byte, status string) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if len(envelope.Error) > 0 && json.Unmarshal(envelope.Error, &flat) == nil && flat != "" {
			return flat
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Msg != "" {
			return envelope.Msg
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}

// Error is a failed upstream call.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("%s: %s returned status %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.URL, e.Message)
	}
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the message a caller should surface: the upstream's own
// message when one was returned, else the transport error.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.StatusCode)
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
