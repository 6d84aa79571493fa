package fetcher

import (
	"mime"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/goferpkg/gofer/internal/utils"
)

// BasenameFromDisposition extracts the artifact filename announced by a
// Content-Disposition header, or "" when the header names nothing usable.
//
// mime.ParseMediaType understands the RFC 5987 filename* parameter for
// UTF-8 and US-ASCII; other charsets (legacy mirrors still emit
// ISO-8859-1) are decoded here by hand. The result is reduced to a bare
// path component so a hostile header cannot escape the cache directory.
func BasenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := utils.SanitizeBasename(params["filename"]); name != "" {
			return name
		}
	}

	// Headers that defeat ParseMediaType (duplicate parameters, an
	// unsupported charset) still often carry a recoverable name.
	if raw := parameterValue(header, "filename*"); raw != "" {
		if decoded := decodeExtValue(raw); decoded != "" {
			if name := utils.SanitizeBasename(decoded); name != "" {
				return name
			}
		}
	}
	if raw := parameterValue(header, "filename"); raw != "" {
		if name := utils.SanitizeBasename(raw); name != "" {
			return name
		}
	}

	return ""
}

// parameterValue pulls one parameter out of a raw header value without
// validating the rest of it.
func parameterValue(header, key string) string {
	// ToLower may change byte offsets for non-ASCII input, so bound the
	// index before slicing the original header.
	idx := strings.Index(strings.ToLower(header), key+"=")
	if idx < 0 || idx+len(key)+1 >= len(header) {
		return ""
	}
	value := header[idx+len(key)+1:]
	if semi := strings.IndexByte(value, ';'); semi >= 0 {
		value = value[:semi]
	}
	return strings.Trim(strings.TrimSpace(value), `"`)
}

// decodeExtValue decodes an RFC 5987 ext-value of the form
// charset'language'percent-encoded-bytes.
func decodeExtValue(v string) string {
	parts := strings.SplitN(v, "'", 3)
	if len(parts) != 3 {
		return ""
	}
	charset := strings.ToLower(strings.TrimSpace(parts[0]))
	decoded, err := url.PathUnescape(parts[2])
	if err != nil {
		return ""
	}

	switch charset {
	case "", "utf-8", "us-ascii":
		return decoded
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return ""
	}
	out, _, err := transform.String(enc.NewDecoder(), decoded)
	if err != nil {
		return ""
	}
	return out
}
