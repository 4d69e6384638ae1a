package resolver

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/txn2/drs-resolver/pkg/drs"
	"github.com/txn2/drs-resolver/pkg/fields"
	"github.com/txn2/drs-resolver/pkg/provider"
)

// DefaultContentType is reported when a descriptor carries no MIME type.
const DefaultContentType = "application/octet-stream"

// timeFormat is ISO-8601 in UTC with millisecond precision.
const timeFormat = "2006-01-02T15:04:05.000Z"

var gsURIRegexp = regexp.MustCompile(`^gs://([^/]+)/(.+)$`)

// Layouts accepted for descriptor timestamps. Zone-less layouts are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Assemble projects md onto the requested fields. Fields whose value is
// absent are left out of the result.
func Assemble(requested fields.Set, md *Metadata, def *provider.Definition, log *slog.Logger) map[string]any {
	if log == nil {
		log = slog.Default()
	}
	obj := md.Object
	gsURI := gsURIOf(obj)
	bucket, name := splitGSURI(gsURI)

	out := make(map[string]any, len(requested))
	for _, f := range requested {
		switch f {
		case fields.GSURI:
			setString(out, f, gsURI)
		case fields.Bucket:
			setString(out, f, bucket)
		case fields.Name:
			setString(out, f, name)
		case fields.FileName:
			if md.FileName != nil {
				out[f] = *md.FileName
			} else if name != "" {
				out[f] = name[strings.LastIndex(name, "/")+1:]
			}
		case fields.LocalizationPath:
			if md.LocalizationPath != nil {
				out[f] = *md.LocalizationPath
			}
		case fields.ContentType:
			if obj != nil {
				if obj.MimeType != "" {
					out[f] = obj.MimeType
				} else {
					out[f] = DefaultContentType
				}
			}
		case fields.Size:
			if obj != nil && obj.Size != nil {
				out[f] = int64(*obj.Size)
			}
		case fields.Hashes:
			if obj != nil {
				if h := hashesOf(obj.Checksums, log); len(h) > 0 {
					out[f] = h
				}
			}
		case fields.TimeCreated:
			if obj != nil {
				setString(out, f, formatTime(obj.CreatedTime, log))
			}
		case fields.TimeUpdated:
			if obj != nil {
				setString(out, f, formatTime(obj.UpdatedTime, log))
			}
		case fields.GoogleServiceAccount:
			if hasDocument(md.ServiceAccountKey) {
				out[f] = md.ServiceAccountKey
			}
		case fields.BondProvider:
			if b, ok := def.Broker(); ok {
				out[f] = string(b)
			}
		case fields.AccessURL:
			if md.AccessURL != nil {
				out[f] = md.AccessURL
			}
		}
	}
	return out
}

func setString(out map[string]any, key, value string) {
	if value != "" {
		out[key] = value
	}
}

// gsURIOf returns the URL of the first gs access method.
func gsURIOf(obj *drs.Object) string {
	if obj == nil {
		return ""
	}
	for _, m := range obj.AccessMethods {
		if m.Type == string(provider.MethodGCS) && m.URL() != "" {
			return m.URL()
		}
	}
	return ""
}

func splitGSURI(uri string) (bucket, name string) {
	m := gsURIRegexp.FindStringSubmatch(uri)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// hashesOf flattens checksums into type to value. A repeated type keeps the
// last value.
func hashesOf(checksums []drs.Checksum, log *slog.Logger) map[string]string {
	if len(checksums) == 0 {
		return nil
	}
	out := make(map[string]string, len(checksums))
	for _, c := range checksums {
		if prev, dup := out[c.Type]; dup && prev != c.Checksum {
			log.Warn("duplicate checksum type in descriptor, keeping the last value", "type", c.Type)
		}
		out[c.Type] = c.Checksum
	}
	return out
}

// formatTime re-emits a descriptor timestamp in UTC. Unparseable values are
// passed through unchanged.
func formatTime(raw string, log *slog.Logger) string {
	if raw == "" {
		return ""
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC().Format(timeFormat)
		}
	}
	log.Warn("unrecognized timestamp in descriptor", "value", raw)
	return raw
}

func hasDocument(raw []byte) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != "{}"
}
