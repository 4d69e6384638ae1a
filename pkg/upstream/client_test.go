package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "drs-resolver/test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"token":"t1"}`))
	}))
	defer srv.Close()

	var observed []string
	c := NewClient(srv.Client(), WithUserAgent("drs-resolver/test"), WithObserver(func(op string, err error) {
		observed = append(observed, op)
		assert.NoError(t, err)
	}))

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "bond_token", srv.URL, "Bearer abc", &out))
	assert.Equal(t, "t1", out.Token)
	assert.Equal(t, []string{"bond_token"}, observed)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var in map[string][]string
		assert.NoError(t, json.Unmarshal(body, &in))
		assert.Equal(t, []string{"p1"}, in["passports"])
		_, _ = w.Write([]byte(`{"url":"https://signed"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	var out struct {
		URL string `json:"url"`
	}
	err := c.PostJSON(context.Background(), "drs_access", srv.URL, "", map[string][]string{"passports": {"p1"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "https://signed", out.URL)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"nested error message", http.StatusBadGateway, `{"error":{"message":"bond is down"}}`, "bond is down"},
		{"flat error string", http.StatusForbidden, `{"error":"nope"}`, "nope"},
		{"message field", http.StatusNotFound, `{"msg":"no such object","status_code":404}`, "no such object"},
		{"plain text", http.StatusInternalServerError, "boom", "boom"},
		{"empty body", http.StatusServiceUnavailable, "", "503 Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewClient(srv.Client()).GetJSON(context.Background(), "op", srv.URL, "", &struct{}{})
			require.Error(t, err)

			var ue *Error
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.status, ue.StatusCode)
			assert.Equal(t, tt.wantMessage, ue.Detail())
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(nil).GetJSON(context.Background(), "op", url, "", nil)
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
	assert.False(t, IsNotFound(err))
}

func TestDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := NewClient(srv.Client()).GetJSON(context.Background(), "op", srv.URL, "", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestWithCertificateKeepsSettings(t *testing.T) {
	c := NewClient(nil, WithUserAgent("ua"))
	cc := c.WithCertificate(tls.Certificate{Certificate: [][]byte{{0x01}}})
	assert.Equal(t, "ua", cc.userAgent)
	tr, ok := cc.hc.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.Len(t, tr.TLSClientConfig.Certificates, 1)
	assert.Nil(t, c.hc.Transport)
}

func TestCallsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	target := srv.URL + "/api/link/v1/fence/accesstoken"
	err := NewClient(srv.Client()).GetJSON(context.Background(), "bond_token", target, "Bearer abc", nil)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="calling upstream"`)
	assert.Contains(t, out, `msg="upstream call finished"`)
	assert.Contains(t, out, "call=bond_token")
	assert.Contains(t, out, "url="+target)
	assert.Contains(t, out, "status=403")
	assert.NotContains(t, out, "Bearer abc")
}

func TestLoggableURL(t *testing.T) {
	assert.Equal(t, "https://host.example.org/a?b=c", loggableURL("https://user:pw@host.example.org/a?b=c"))
	assert.Equal(t, "::bad", loggableURL("::bad"))
}
