package upgrade

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetsvc/assetsvc/internal/asset/store"
)

func seedLegacyStore(t *testing.T, path string, bucket []byte, rows map[string]legacyRow) {
	t.Helper()
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		for key, row := range rows {
			v, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), v); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSplitMigratesRowsIntoDestinationStoreAndRemovesLegacyFile(t *testing.T) {
	dataDir := t.TempDir()
	legacyPath := filepath.Join(dataDir, "100", "asset.db")

	seedLegacyStore(t, legacyPath, bucketKey(2, "some_daemon"), map[string]legacyRow{
		"alias-1": {Alias: "alias-1", Owner: "some_daemon", OwnerType: 2, Secret: []byte("ct"), CreateTime: "1", UpdateTime: "1", Version: 1},
		"alias-2": {Alias: "alias-2", Owner: "some_daemon", OwnerType: 2, Secret: []byte("ct2"), CreateTime: "1", UpdateTime: "1", Version: 1},
	})

	registry, err := store.NewRegistry(dataDir)
	require.NoError(t, err)
	mgr := NewManager(registry)

	require.NoError(t, mgr.Split(context.Background(), 100, legacyPath))

	assert.NoFileExists(t, legacyPath)

	dest, err := registry.Get(destinationPath(dataDir, 100, 2, "some_daemon"))
	require.NoError(t, err)
	rows, err := dest.Query(context.Background(), nil, store.NewCondition(), store.QueryOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSplitIsNoopWhenLegacyFileIsAbsent(t *testing.T) {
	dataDir := t.TempDir()
	registry, err := store.NewRegistry(dataDir)
	require.NoError(t, err)
	mgr := NewManager(registry)

	err = mgr.Split(context.Background(), 100, filepath.Join(dataDir, "100", "asset.db"))
	assert.NoError(t, err)
}

func TestSplitIsIdempotentOnSecondCall(t *testing.T) {
	dataDir := t.TempDir()
	legacyPath := filepath.Join(dataDir, "100", "asset.db")

	seedLegacyStore(t, legacyPath, bucketKey(2, "some_daemon"), map[string]legacyRow{
		"alias-1": {Alias: "alias-1", Owner: "some_daemon", OwnerType: 2, Secret: []byte("ct"), CreateTime: "1", UpdateTime: "1", Version: 1},
	})

	registry, err := store.NewRegistry(dataDir)
	require.NoError(t, err)
	mgr := NewManager(registry)

	require.NoError(t, mgr.Split(context.Background(), 100, legacyPath))
	assert.NoError(t, mgr.Split(context.Background(), 100, legacyPath))
}

func TestParseBucketKeyRoundTrip(t *testing.T) {
	ownerType, owner, err := parseBucketKey(bucketKey(1, "com.example.app"))
	require.NoError(t, err)
	assert.Equal(t, 1, ownerType)
	assert.Equal(t, "com.example.app", owner)
}

func TestParseBucketKeyRejectsMalformedInput(t *testing.T) {
	_, _, err := parseBucketKey([]byte("no-colon-here"))
	assert.Error(t, err)
}
