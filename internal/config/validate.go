package config

import (
	"net"
	"regexp"
	"strings"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidHostIdentifier reports whether s is a well-formed IPv4 address
// or DNS hostname.
func ValidHostIdentifier(s string) bool {
	if s == "" {
		return false
	}
	if validIPv4(s) {
		return true
	}
	// A name made only of digits and dots is an IPv4 literal; if it did
	// not parse as one above, it is not a hostname either.
	if strings.Trim(s, "0123456789.") == "" {
		return false
	}
	return hostnamePattern.MatchString(s)
}

func validIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	if ip.To4() == nil {
		return false
	}
	return !strings.Contains(s, ":")
}
