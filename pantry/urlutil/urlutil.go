// pantry/urlutil/urlutil.go
package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// SafeRedirect returns target cleaned if it is a same-origin absolute path,
// otherwise fallback. Scheme-relative paths ("//host"), backslashes and
// CR/LF are rejected so a configured or requested redirect can neither leave
// the site nor split the Location header.
func SafeRedirect(target, fallback string) string {
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, "\r\n\\") {
		return fallback
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return fallback
	}
	clean := path.Clean(target)
	if u, err := url.Parse(clean); err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return clean
}

// IsValidAbsHTTPURL reports whether s is an absolute http(s) URL with a host
// and no user info.
func IsValidAbsHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || u.User != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
