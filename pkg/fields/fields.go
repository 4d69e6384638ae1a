// Package fields defines the vocabulary of fields a resolution can return and
// the named subsets the fetch planner uses to decide which downstream calls a
// request needs.
package fields

import (
	"fmt"
	"slices"
	"strings"
)

// Response field names.
const (
	GSURI                = "gsUri"
	Bucket               = "bucket"
	Name                 = "name"
	FileName             = "fileName"
	LocalizationPath     = "localizationPath"
	ContentType          = "contentType"
	Size                 = "size"
	Hashes               = "hashes"
	TimeCreated          = "timeCreated"
	TimeUpdated          = "timeUpdated"
	GoogleServiceAccount = "googleServiceAccount"
	BondProvider         = "bondProvider"
	AccessURL            = "accessUrl"
)

// Set is an ordered list of field names.
type Set []string

var (
	// Core holds the fields that come straight from the object descriptor.
	Core = Set{GSURI, Bucket, Name, FileName, LocalizationPath, ContentType, Size, Hashes, TimeCreated, TimeUpdated}

	// All holds every field a caller may request.
	All = concat(Core, Set{GoogleServiceAccount, BondProvider, AccessURL})

	// Default is used when a caller does not name any fields.
	Default = concat(Core, Set{GoogleServiceAccount})

	// Metadata fields require the provider's metadata endpoint.
	Metadata = concat(Core, Set{AccessURL})

	// ServiceAccount fields require the credential broker's service-account key.
	ServiceAccount = Set{GoogleServiceAccount}

	// AccessID fields require an access id and a signed-URL call.
	AccessID = Set{AccessURL}
)

func concat(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool {
	return slices.Contains(s, name)
}

// Overlaps reports whether any field of s is also in other.
func (s Set) Overlaps(other Set) bool {
	for _, f := range s {
		if other.Contains(f) {
			return true
		}
	}
	return false
}

// OrDefault returns s, or Default when s is empty.
func (s Set) OrDefault() Set {
	if len(s) == 0 {
		return slices.Clone(Default)
	}
	return s
}

// Invalid returns the fields of s that are not in All, preserving order.
func (s Set) Invalid() []string {
	var invalid []string
	for _, f := range s {
		if !All.Contains(f) {
			invalid = append(invalid, f)
		}
	}
	return invalid
}

// Validate returns an error naming every unsupported field.
func (s Set) Validate() error {
	invalid := s.Invalid()
	if len(invalid) == 0 {
		return nil
	}
	return fmt.Errorf("fields '%s' are not supported. Supported fields are '%s'",
		strings.Join(invalid, "', '"), strings.Join(All, "', '"))
}
