package utils

import (
	"net/url"
	"path"
	"strings"
)

// IsHTTPURL checks if a URL uses HTTP or HTTPS scheme
func IsHTTPURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// BasenameFromURL derives a filename from a URL. The last path segment wins;
// when the path carries no usable name (trailing slash, bare host) the last
// query value that looks file-shaped is used instead, matching servers that
// ship tarballs as ?file=pkg-1.0.tar.gz.
func BasenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return SanitizeBasename(path.Base(rawURL))
	}

	base := path.Base(u.Path)
	if base != "" && base != "." && base != "/" {
		return SanitizeBasename(base)
	}

	if u.RawQuery != "" {
		var candidate string
		for _, pair := range strings.Split(u.RawQuery, "&") {
			_, value, _ := strings.Cut(pair, "=")
			if decoded, err := url.QueryUnescape(value); err == nil {
				value = decoded
			}
			if strings.Contains(value, ".") && !strings.ContainsAny(value, `/\`) {
				candidate = value
			}
		}
		if candidate != "" {
			return SanitizeBasename(candidate)
		}
	}

	return SanitizeBasename(u.Hostname())
}

// RewriteScheme swaps a pseudo-scheme prefix for the transport the underlying
// tool expects (svn+http:// → http://), or strips a pure marker prefix when
// to is empty (hg://https://host → https://host).
func RewriteScheme(rawURL, from, to string) string {
	if strings.HasPrefix(rawURL, from) {
		return to + strings.TrimPrefix(rawURL, from)
	}
	return rawURL
}

// RedactURL strips userinfo from a URL for log output.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	clone := *u
	clone.User = nil
	return clone.String()
}
