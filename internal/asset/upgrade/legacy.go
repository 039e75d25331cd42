// Package upgrade implements the one-shot migration of a legacy
// single-file store into per-owner sqlite stores (§4.8, C8). The legacy
// file is modeled as a bbolt database — a second, independent embedded
// engine distinct from the sqlite destination stores — one bucket per
// distinct (OwnerType, Owner) tuple, keyed by alias, JSON-encoded rows,
// grounded on the teacher pack's bbolt usage in
// cuemby-warren/pkg/storage/boltdb.go.
package upgrade

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/store"
)

// legacyRow is the JSON encoding of one row inside the legacy store,
// carrying the same fields as store.Row (minus the autoincrement id,
// which is reassigned by the destination store on insert).
type legacyRow struct {
	Secret             []byte
	Alias              string
	Owner              string
	OwnerType          int
	GroupID            []byte
	SyncType           uint32
	Accessibility      uint32
	AuthType           uint32
	RequirePasswordSet bool
	IsPersistent       bool
	CreateTime         string
	UpdateTime         string
	Version            int
	LocalStatus        int
	SyncStatus         int
	WrapType           uint32
	Critical           [4][]byte
	Normal             [4][]byte
	NormalLocal        [4][]byte
	DeleteType         int
}

func (r legacyRow) toStoreRow() store.Row {
	return store.Row{
		Secret: r.Secret, Alias: r.Alias, Owner: r.Owner, OwnerType: r.OwnerType,
		GroupID: r.GroupID, SyncType: r.SyncType, Accessibility: r.Accessibility,
		AuthType: r.AuthType, RequirePasswordSet: r.RequirePasswordSet, IsPersistent: r.IsPersistent,
		CreateTime: r.CreateTime, UpdateTime: r.UpdateTime, Version: r.Version,
		LocalStatus: store.LocalStatus(r.LocalStatus), SyncStatus: store.SyncStatus(r.SyncStatus),
		WrapType: r.WrapType, Critical: r.Critical, Normal: r.Normal, NormalLocal: r.NormalLocal,
		DeleteType: r.DeleteType,
	}
}

// bucketKey names the bbolt bucket for one (ownerType, owner) tuple.
func bucketKey(ownerType int, owner string) []byte {
	return []byte(fmt.Sprintf("%d:%s", ownerType, owner))
}

// LegacyStore wraps the one legacy asset.db file for a user.
type LegacyStore struct {
	db   *bolt.DB
	path string
}

// OpenLegacy opens the legacy bbolt file at path, read-write.
func OpenLegacy(path string) (*LegacyStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, asseterr.Wrap(asseterr.FileOperationError, err, "opening legacy store %s", path)
	}
	return &LegacyStore{db: db, path: path}, nil
}

// Close releases the underlying file handle.
func (l *LegacyStore) Close() error { return l.db.Close() }

// Buckets enumerates every (ownerType, owner) bucket present in the
// legacy file, per §4.8 step (b).
func (l *LegacyStore) Buckets() ([][]byte, error) {
	var names [][]byte
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			cp := make([]byte, len(name))
			copy(cp, name)
			names = append(names, cp)
			return nil
		})
	})
	if err != nil {
		return nil, asseterr.Wrap(asseterr.DatabaseError, err, "enumerating legacy buckets")
	}
	return names, nil
}

// PageRows returns up to pageSize rows from bucket, starting after
// afterKey (nil for the first page), and the keys of those rows (both
// empty once the bucket is empty), per §4.8's "pages of 100" requirement.
func (l *LegacyStore) PageRows(bucket []byte, afterKey []byte, pageSize int) ([]store.Row, [][]byte, error) {
	var rows []store.Row
	var keys [][]byte
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if afterKey == nil {
			k, v = c.First()
		} else {
			c.Seek(afterKey)
			k, v = c.Next()
		}
		for ; k != nil && len(rows) < pageSize; k, v = c.Next() {
			var lr legacyRow
			if err := json.Unmarshal(v, &lr); err != nil {
				return err
			}
			rows = append(rows, lr.toStoreRow())
			kc := make([]byte, len(k))
			copy(kc, k)
			keys = append(keys, kc)
		}
		return nil
	})
	if err != nil {
		return nil, nil, asseterr.Wrap(asseterr.DatabaseError, err, "paging legacy bucket %s", bucket)
	}
	return rows, keys, nil
}

// DeleteKeys removes keys from bucket in one bbolt transaction, called
// after a page's rows have been committed to their destination store.
func (l *LegacyStore) DeleteKeys(bucket []byte, keys [][]byte) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// BucketEmpty reports whether bucket has no remaining keys.
func (l *LegacyStore) BucketEmpty(bucket []byte) (bool, error) {
	empty := true
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().First()
		empty = k == nil
		return nil
	})
	return empty, err
}
