// Package drs provides a client for GA4GH Data Repository Service servers,
// including the legacy DOS response shape.
package drs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Object is the subset of a DRS object descriptor the resolver consumes.
type Object struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Size          *Int64         `json:"size,omitempty"`
	MimeType      string         `json:"mime_type,omitempty"`
	CreatedTime   string         `json:"created_time,omitempty"`
	UpdatedTime   string         `json:"updated_time,omitempty"`
	Checksums     []Checksum     `json:"checksums,omitempty"`
	Aliases       []string       `json:"aliases,omitempty"`
	AccessMethods []AccessMethod `json:"access_methods,omitempty"`
}

// Checksum is a single digest of the object's bytes.
type Checksum struct {
	Checksum string `json:"checksum"`
	Type     string `json:"type"`
}

// AccessMethod is one way of retrieving the object's bytes.
type AccessMethod struct {
	Type      string     `json:"type"`
	AccessURL *AccessURL `json:"access_url,omitempty"`
	AccessID  string     `json:"access_id,omitempty"`
	Region    string     `json:"region,omitempty"`
}

// URL returns the embedded access URL, or an empty string.
func (m AccessMethod) URL() string {
	if m.AccessURL == nil {
		return ""
	}
	return m.AccessURL.URL
}

// AccessURL is a (possibly signed) URL plus any headers required to use it.
type AccessURL struct {
	URL     string   `json:"url"`
	Headers []string `json:"headers,omitempty"`
}

// Int64 decodes a JSON number or a numeric string.
type Int64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid size %q: %w", s, err)
		}
		n = int64(f)
	}
	*i = Int64(n)
	return nil
}

// dosObject is the legacy DOS data_object shape.
type dosObject struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Size      *Int64     `json:"size"`
	MimeType  string     `json:"mimeType"`
	Created   string     `json:"created"`
	Updated   string     `json:"updated"`
	Checksums []Checksum `json:"checksums"`
	Aliases   []string   `json:"aliases"`
	URLs      []struct {
		URL string `json:"url"`
	} `json:"urls"`
}

// toObject converts a DOS data_object into a DRS descriptor. Only gs:// URLs
// become access methods.
func (d *dosObject) toObject() *Object {
	obj := &Object{
		ID:          d.ID,
		Name:        d.Name,
		Size:        d.Size,
		MimeType:    d.MimeType,
		CreatedTime: d.Created,
		UpdatedTime: d.Updated,
		Checksums:   d.Checksums,
		Aliases:     d.Aliases,
	}
	for _, u := range d.URLs {
		if strings.HasPrefix(u.URL, "gs://") {
			obj.AccessMethods = append(obj.AccessMethods, AccessMethod{
				Type:      "gs",
				AccessURL: &AccessURL{URL: u.URL},
			})
		}
	}
	return obj
}

// DecodeObject parses a descriptor body in either DRS or DOS form.
func DecodeObject(body []byte) (*Object, error) {
	var probe struct {
		DataObject *dosObject `json:"data_object"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	if probe.DataObject != nil {
		return probe.DataObject.toObject(), nil
	}
	var obj Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decoding object: %w", err)
	}
	return &obj, nil
}
