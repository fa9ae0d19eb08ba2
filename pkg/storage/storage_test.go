package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "logbook.pdf", "tenants/acme/documents/d1/logbook.pdf"},
		{"spaces", "sale agreement.pdf", "tenants/acme/documents/d1/sale_agreement.pdf"},
		{"traversal", "../../beta/secret.pdf", "tenants/acme/documents/d1/secret.pdf"},
		{"windows path", `C:\Users\x\id.png`, "tenants/acme/documents/d1/id.png"},
		{"hidden", "..", "tenants/acme/documents/d1/file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentKey("acme", "d1", tt.filename))
		})
	}
	assert.True(t, strings.HasPrefix(DocumentKey("acme", "d1", "x"), TenantPrefix("acme")))
	assert.False(t, strings.HasPrefix(DocumentKey("acme2", "d1", "x"), TenantPrefix("acme")))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key := DocumentKey("acme", "d1", "notes.txt")
	require.NoError(t, store.Put(ctx, key, "text/plain", strings.NewReader("hello"), 5))

	body, ct, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "hello", string(data))
	assert.Contains(t, ct, "text/plain")

	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Open(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, store.Delete(ctx, key))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	err = store.Put(context.Background(), "../outside.txt", "text/plain", strings.NewReader("x"), 1)
	assert.Error(t, err)
}
