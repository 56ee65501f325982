package exchange

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves ref against base. Absolute references are returned
// unchanged; scheme-relative references take the scheme of base;
// root-relative references replace the path of base; other relative
// references are appended to base treated as a directory.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrValidation)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: reference %q: %v", ErrValidation, ref, err)
	}
	if r.IsAbs() {
		return ref, nil
	}

	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !b.IsAbs() {
		return "", fmt.Errorf("%w: cannot resolve %q against base %q", ErrValidation, ref, base)
	}
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
		if b.RawPath != "" {
			b.RawPath += "/"
		}
	}
	return b.ResolveReference(r).String(), nil
}

// JoinURL joins base and path with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// sameOrigin reports whether a and b share scheme, host and port.
func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// baseFromFullURL derives the server base of an entry from its absolute
// fullUrl by dropping the trailing "{ResourceType}/{id}".
func baseFromFullURL(fullURL string) (string, bool) {
	u, err := url.Parse(fullURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 {
		return "", false
	}
	u.Path = "/" + strings.Join(segs[:len(segs)-2], "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), true
}
