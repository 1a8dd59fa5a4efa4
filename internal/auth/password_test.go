package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(4)

	hash, err := hasher.Hash("operator")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "operator", hash)

	assert.NoError(t, hasher.Compare(hash, "operator"))
	assert.Error(t, hasher.Compare(hash, "wrong"))
}

func TestBcryptHasherRejectsEmptyPassword(t *testing.T) {
	hasher := NewBcryptHasher(4)

	_, err := hasher.Hash("")
	assert.Error(t, err)
}
