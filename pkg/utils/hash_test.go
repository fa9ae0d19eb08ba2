package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, p.Check("s3cret-pass", hash))
	assert.False(t, p.Check("wrong", hash))
	assert.False(t, p.Check("s3cret-pass", "not-a-hash"))
	p.CheckMissing("anything")
}

func TestPasswordCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswords(0).Cost())
	assert.Equal(t, bcrypt.DefaultCost, NewPasswords(99).Cost())

	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.False(t, p.NeedsRehash(hash))
	assert.True(t, NewPasswords(bcrypt.MinCost+1).NeedsRehash(hash))
	assert.True(t, p.NeedsRehash("garbage"))
}

func TestOverlongPasswordRejected(t *testing.T) {
	_, err := NewPasswords(bcrypt.MinCost).Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
