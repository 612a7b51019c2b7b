package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	k1, err := GenerateAPIKey()
	require.NoError(t, err)
	k2, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, k1, tokenLen*2)
	assert.NotEqual(t, k1, k2)
}

func TestHashAndVerify(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)

	stored, err := Hash(key)
	require.NoError(t, err)

	// salt:hash, both hex, never the key itself
	parts := strings.Split(stored, ":")
	require.Len(t, parts, 2)
	assert.NotContains(t, stored, key)

	ok, err := Verify(key, stored)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("wrong-key", stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	h1, err := Hash("same-key")
	require.NoError(t, err)
	h2, err := Hash("same-key")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestVerifyMalformedStoredForm(t *testing.T) {
	for _, stored := range []string{"", "no-separator", "zz:zz", "abcd:not-hex"} {
		_, err := Verify("key", stored)
		assert.ErrorIs(t, err, ErrMalformedHash, "stored=%q", stored)
	}
}

func TestVerifyInstallSecret(t *testing.T) {
	assert.True(t, VerifyInstallSecret("s3cret", "s3cret"))
	assert.False(t, VerifyInstallSecret("wrong", "s3cret"))
	assert.False(t, VerifyInstallSecret("", "s3cret"))
	// an unset deployment secret must never authorize anything
	assert.False(t, VerifyInstallSecret("", ""))
}
