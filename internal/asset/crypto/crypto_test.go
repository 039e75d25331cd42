package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("correct horse battery staple")
	aad := []byte("owner=com.example.app;accessibility=0")

	blob, err := Seal(key, plaintext, aad)
	require.NoError(t, err)

	out, err := Open(key, blob, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestSealProducesDistinctNoncesPerCall(t *testing.T) {
	key := randomKey(t)
	a, err := Seal(key, []byte("secret"), nil)
	require.NoError(t, err)
	b, err := Seal(key, []byte("secret"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two seals of the same plaintext must not produce identical ciphertext blobs")
}

func TestOpenRejectsTamperedAAD(t *testing.T) {
	key := randomKey(t)
	blob, err := Seal(key, []byte("secret"), []byte("aad-v1"))
	require.NoError(t, err)

	_, err = Open(key, blob, []byte("aad-v2"))
	assert.Error(t, err)
}

func TestOpenRejectsShortBlob(t *testing.T) {
	key := randomKey(t)
	_, err := Open(key, []byte("short"), nil)
	assert.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := randomKey(t)
	blob, err := Seal(key, []byte("secret"), nil)
	require.NoError(t, err)

	_, err = Open(randomKey(t), blob, nil)
	assert.Error(t, err)
}
