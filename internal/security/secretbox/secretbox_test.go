package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestRoundTrip(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	sealed, err := box.Encrypt("refresh-token-value")
	require.NoError(t, err)
	assert.NotEqual(t, "refresh-token-value", sealed)

	opened, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", opened)
}

func TestNonceUniqueness(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	a, err := box.Encrypt("same-plaintext")
	require.NoError(t, err)
	b, err := box.Encrypt("same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("")
	assert.ErrorContains(t, err, "TOKEN_ENCRYPTION_KEY")

	_, err = New("not-base64!!")
	assert.ErrorContains(t, err, "decode")

	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	_, err = New(short)
	assert.ErrorContains(t, err, "32 bytes")
}

func TestDecryptRejectsTampering(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	sealed, err := box.Encrypt("payload")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = box.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString(raw[:4]))
	assert.ErrorContains(t, err, "invalid ciphertext")

	_, err = box.Decrypt("%%%")
	assert.Error(t, err)
}
