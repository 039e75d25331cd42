package keymgr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIsDeterministicPerAlias(t *testing.T) {
	secret, err := RandomMasterSecret()
	require.NoError(t, err)
	m := NewManager(secret)

	alias := Alias{UserID: 100, Owner: "com.example.app", AuthType: 0, Accessibility: 0}

	k1, err := m.GetOrCreate(alias)
	require.NoError(t, err)
	k2, err := m.GetOrCreate(alias)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, KeySize)
}

func TestGetOrCreateDiffersAcrossAliases(t *testing.T) {
	secret, err := RandomMasterSecret()
	require.NoError(t, err)
	m := NewManager(secret)

	a, err := m.GetOrCreate(Alias{UserID: 100, Owner: "com.example.app", Accessibility: 0})
	require.NoError(t, err)
	b, err := m.GetOrCreate(Alias{UserID: 100, Owner: "com.example.app", Accessibility: 2})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDeleteByOwnerEvictsOnlyMatchingAliases(t *testing.T) {
	secret, err := RandomMasterSecret()
	require.NoError(t, err)
	m := NewManager(secret)

	kept := Alias{UserID: 100, Owner: "com.other.app"}
	removed := Alias{UserID: 100, Owner: "com.example.app"}
	_, err = m.GetOrCreate(kept)
	require.NoError(t, err)
	_, err = m.GetOrCreate(removed)
	require.NoError(t, err)

	m.DeleteByOwner(100, "com.example.app")

	assert.Contains(t, m.cache, kept.String())
	assert.NotContains(t, m.cache, removed.String())
}

func TestHashAndCompareRoundTrip(t *testing.T) {
	hash, err := HashPassword([]byte("s3cret!"))
	require.NoError(t, err)

	assert.NoError(t, CompareHashAndPassword(hash, []byte("s3cret!")))
	assert.Error(t, CompareHashAndPassword(hash, []byte("wrong")))
}

func TestLoadOrCreateMasterSecretPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")

	first, err := LoadOrCreateMasterSecret(path)
	require.NoError(t, err)
	second, err := LoadOrCreateMasterSecret(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, KeySize)
}
