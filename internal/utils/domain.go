package utils

import (
	"regexp"
	"strings"
)

var domainLabelRegex = regexp.MustCompile(`^[a-zA-Z0-9_]([a-zA-Z0-9-_]{0,61}[a-zA-Z0-9_])?$`)

// IsValidHostname reports whether the given name is a plausible DNS hostname.
// Underscores are allowed because email authentication records live under
// labels like _dmarc and _domainkey.
func IsValidHostname(name string) bool {
	name = strings.TrimSuffix(name, ".")
	if name == "" || len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !domainLabelRegex.MatchString(label) {
			return false
		}
	}
	return true
}

// NormalizeDomainName lowercases a domain and strips the trailing dot.
func NormalizeDomainName(domain string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
}
