package tenancy

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var schemaPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,62}$`)

// NormalizeHost lower-cases a Host header value, strips the port and a trailing dot,
// and checks the result is an RFC 1123 host name.
func NormalizeHost(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	if hp, _, err := net.SplitHostPort(h); err == nil {
		h = hp
	}
	h = strings.TrimSuffix(h, ".")
	if !validHostname(h) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return h, nil
}

func validHostname(h string) bool {
	if h == "" || len(h) > 253 {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return false
			}
		}
	}
	return true
}

// ValidateSchema checks a tenant schema name. Reserved schemas are never valid tenant schemas.
func ValidateSchema(schema string) error {
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidSchema, schema, schemaPattern.String())
	}
	if schema == "public" || schema == "information_schema" || strings.HasPrefix(schema, "pg_") {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSchema, schema)
	}
	return nil
}
