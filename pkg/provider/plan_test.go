package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/txn2/drs-resolver/pkg/drs"
	"github.com/txn2/drs-resolver/pkg/fields"
)

var (
	gsMethod    = &drs.AccessMethod{Type: "gs"}
	s3Method    = &drs.AccessMethod{Type: "s3"}
	httpsMethod = &drs.AccessMethod{Type: "https"}
)

func TestShouldRequestMetadata(t *testing.T) {
	d := kidsFirst(t)
	assert.True(t, d.ShouldRequestMetadata(fields.Default))
	assert.True(t, d.ShouldRequestMetadata(fields.Set{fields.Size}))
	assert.True(t, d.ShouldRequestMetadata(fields.Set{fields.AccessURL}))
	assert.False(t, d.ShouldRequestMetadata(fields.Set{fields.GoogleServiceAccount}))
	assert.False(t, d.ShouldRequestMetadata(fields.Set{fields.BondProvider}))
}

func TestShouldFetchAccessURL(t *testing.T) {
	tests := []struct {
		name      string
		def       *Definition
		selected  *drs.AccessMethod
		requested fields.Set
		force     bool
		want      bool
	}{
		{"enabled policy", kidsFirst(t), s3Method, fields.AccessID, false, true},
		{"disabled policy", crdc(t), gsMethod, fields.AccessID, false, false},
		{"disabled policy forced", crdc(t), gsMethod, fields.AccessID, true, true},
		{"no selection", kidsFirst(t), nil, fields.AccessID, false, false},
		{"no selection forced", kidsFirst(t), nil, fields.AccessID, true, true},
		{"no policy for type", kidsFirst(t), httpsMethod, fields.AccessID, false, false},
		{"field gated", kidsFirst(t), s3Method, fields.Default, false, false},
		{"field gated even when forced", kidsFirst(t), s3Method, fields.Core, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.def.ShouldFetchAccessURL(tt.selected, tt.requested, tt.force))
		})
	}
}

func TestShouldFetchFenceAccessToken(t *testing.T) {
	tests := []struct {
		name        string
		def         *Definition
		selected    *drs.AccessMethod
		requested   fields.Set
		useFallback bool
		force       bool
		want        bool
	}{
		{"fence token primary", kidsFirst(t), s3Method, fields.All, false, false, true},
		{"no fallback declared", kidsFirst(t), s3Method, fields.All, true, false, false},
		{"passport primary", passportProvider(t), gsMethod, fields.All, false, false, false},
		{"fence token fallback", passportProvider(t), gsMethod, fields.All, true, false, true},
		{"signed urls disabled", crdc(t), gsMethod, fields.All, false, false, false},
		{"signed urls disabled forced", crdc(t), gsMethod, fields.All, false, true, true},
		{"no broker", tdr(t), gsMethod, fields.All, false, true, false},
		{"no selection", kidsFirst(t), nil, fields.All, false, false, false},
		{"field gated", kidsFirst(t), s3Method, fields.Default, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.def.ShouldFetchFenceAccessToken(tt.selected, tt.requested, tt.useFallback, tt.force)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldFetchServiceAccount(t *testing.T) {
	tests := []struct {
		name      string
		def       *Definition
		selected  *drs.AccessMethod
		requested fields.Set
		want      bool
	}{
		{"gcs selected", crdc(t), gsMethod, fields.Default, true},
		{"no selection yet", crdc(t), nil, fields.ServiceAccount, true},
		{"s3 selected", crdc(t), s3Method, fields.Default, false},
		{"provider without gcs", kidsFirst(t), nil, fields.Default, false},
		{"no broker", tdr(t), gsMethod, fields.Default, false},
		{"field gated", crdc(t), gsMethod, fields.Metadata, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.def.ShouldFetchServiceAccount(tt.selected, tt.requested))
		})
	}
}

func TestShouldFetchPassports(t *testing.T) {
	p := passportProvider(t)
	assert.True(t, p.ShouldFetchPassports(gsMethod, fields.AccessID))
	assert.False(t, p.ShouldFetchPassports(nil, fields.AccessID))
	assert.False(t, p.ShouldFetchPassports(gsMethod, fields.Default))
	assert.False(t, p.ShouldFetchPassports(s3Method, fields.AccessID))
	assert.False(t, kidsFirst(t).ShouldFetchPassports(s3Method, fields.AccessID))
}

func TestShouldFailOnAccessURLFail(t *testing.T) {
	d := crdc(t)
	assert.False(t, d.ShouldFailOnAccessURLFail(gsMethod))
	assert.True(t, d.ShouldFailOnAccessURLFail(s3Method))
	assert.True(t, d.ShouldFailOnAccessURLFail(httpsMethod))
	assert.False(t, d.ShouldFailOnAccessURLFail(nil))
}
