package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Store holds uploaded documents. Keys are slash-separated and always start with the tenant prefix.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// DocumentKey returns the object key for a tenant document: tenants/{schema}/documents/{id}/{filename}.
// Objects of different tenants never share a prefix.
func DocumentKey(schema, documentID, filename string) string {
	return path.Join("tenants", schema, "documents", documentID, SafeFilename(filename))
}

// TenantPrefix returns the key prefix owned by a tenant.
func TenantPrefix(schema string) string {
	return path.Join("tenants", schema) + "/"
}

// SafeFilename strips directories and characters that do not belong in an object key.
func SafeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
