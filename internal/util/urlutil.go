package util

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrEmptyInput is returned for an empty URL field. It is never sent to the server.
	ErrEmptyInput = errors.New("URL cannot be empty")
	// ErrInvalidFormat is returned when the input does not parse as an absolute URL.
	ErrInvalidFormat = errors.New("invalid URL format")
)

// IsValidURL reports whether raw parses as a well-formed absolute URL:
// a scheme followed by an authority, a path, or an opaque part.
// It never touches the network and never panics.
func IsValidURL(raw string) bool {
	if raw == "" || strings.TrimSpace(raw) != raw {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	// "host:8080" parses with Scheme "host"; require the scheme to be followed
	// by something a browser would accept as the rest of a URL.
	switch {
	case u.Host != "":
		return validHost(u.Host)
	case u.Opaque != "":
		return true
	case strings.HasPrefix(raw[len(u.Scheme)+1:], "//"):
		// "https://" or "http:///path" with an empty authority
		return u.Scheme == "file"
	default:
		return u.Path != ""
	}
}

// ValidateInput applies the submit-time checks in order: empty, then format.
func ValidateInput(raw string) error {
	if raw == "" {
		return ErrEmptyInput
	}
	if !IsValidURL(raw) {
		return ErrInvalidFormat
	}
	return nil
}

// HostLabel returns a short lower-cased host for display, or raw when it is not a URL.
func HostLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func validHost(host string) bool {
	h := host
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	if strings.HasPrefix(h, "[") {
		return strings.Contains(h, "]")
	}
	if i := strings.LastIndex(h, ":"); i >= 0 {
		port := h[i+1:]
		for _, r := range port {
			if r < '0' || r > '9' {
				return false
			}
		}
		h = h[:i]
	}
	return h != "" && !strings.ContainsAny(h, " \t<>\"{}|\\^`")
}
