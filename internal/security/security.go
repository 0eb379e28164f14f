// Package security provides the pre-checks the diagnostic engine trusts:
// SSRF-safe URL validation for caller-supplied probe targets and an
// allow-list for log search directories.
package security

import (
	"errors"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyURL       = errors.New("url is empty")
	ErrBadScheme      = errors.New("only http and https URLs are allowed")
	ErrNoHostname     = errors.New("url has no hostname")
	ErrPrivateAddress = errors.New("url resolves to a private or internal address")
	ErrUnresolvable   = errors.New("hostname could not be resolved")
)

// IsPrivateIP reports whether an address is private, loopback,
// link-local, or otherwise internal.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// ValidateURL rejects probe targets that could be used for SSRF: only
// http/https schemes, a hostname is required, and neither the literal
// nor any resolved address may be private/internal.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyURL
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrBadScheme
	}
	host := parsed.Hostname()
	if host == "" {
		return ErrNoHostname
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return ErrUnresolvable
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// ValidateLogDirs filters caller-supplied directories against the
// allow-list, preventing path traversal outside the configured log
// locations. Wildcard allow-list entries match on their static prefix.
// Returns nil when nothing survives.
func ValidateLogDirs(dirs, allowed []string) []string {
	var allowedAbs []string
	for _, a := range allowed {
		// Cut wildcard segments; prefix matching covers the expansion.
		if i := strings.Index(a, "*"); i >= 0 {
			a = a[:i]
		}
		abs, err := filepath.Abs(a)
		if err != nil {
			continue
		}
		allowedAbs = append(allowedAbs, abs)
	}

	var validated []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		normalized, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		for _, a := range allowedAbs {
			if normalized == a || strings.HasPrefix(normalized, a+string(os.PathSeparator)) {
				validated = append(validated, dir)
				break
			}
		}
	}
	if len(validated) == 0 {
		return nil
	}
	return validated
}
