package upgrade

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
	"github.com/assetsvc/assetsvc/internal/asset/store"
)

// PageSize is the per-transaction row-copy batch size, per §4.8.
const PageSize = 100

// pendingFileName is the plain-text file tracking owners still awaiting
// split, per §6.3.
const pendingFileName = "upgrade_pending.txt"

// Manager drives the legacy-to-sharded-store split for one user at a time.
type Manager struct {
	registry *store.Registry
}

// NewManager constructs a Manager over registry.
func NewManager(registry *store.Registry) *Manager {
	return &Manager{registry: registry}
}

// Split migrates userID's legacy asset.db into per-owner sqlite stores,
// per §4.8. It is safe to call repeatedly: each page's legacy keys are
// deleted once the page is committed, so a later call copies only the rows
// still left in the legacy file, and an emptied bucket yields no rows.
func (m *Manager) Split(ctx context.Context, userID int32, legacyPath string) error {
	lock := m.registry.UserLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(legacyPath); err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to split
		}
		return asseterr.Wrap(asseterr.FileOperationError, err, "statting legacy store %s", legacyPath)
	}

	legacy, err := OpenLegacy(legacyPath)
	if err != nil {
		return err
	}
	defer legacy.Close()

	buckets, err := legacy.Buckets()
	if err != nil {
		return err
	}

	userDir := filepath.Dir(legacyPath)
	if err := writePending(userDir, buckets); err != nil {
		return err
	}

	remaining := buckets
	for _, bucket := range buckets {
		if err := m.splitBucket(ctx, legacy, userID, bucket); err != nil {
			return asseterr.Wrap(asseterr.DatabaseError, err, "splitting bucket %s", bucket)
		}
		remaining = removeBucket(remaining, bucket)
		if err := writePending(userDir, remaining); err != nil {
			return err
		}
	}

	legacy.Close()
	if err := os.Remove(legacyPath); err != nil && !os.IsNotExist(err) {
		return asseterr.Wrap(asseterr.FileOperationError, err, "removing legacy store %s", legacyPath)
	}
	_ = os.Remove(legacyPath + ".backup")
	return os.Remove(filepath.Join(userDir, pendingFileName))
}

func (m *Manager) splitBucket(ctx context.Context, legacy *LegacyStore, userID int32, bucket []byte) error {
	ownerType, owner, err := parseBucketKey(bucket)
	if err != nil {
		return err
	}

	destPath := destinationPath(m.registry.DataDir(), userID, ownerType, owner)
	dest, err := m.registry.Get(destPath)
	if err != nil {
		return err
	}

	var afterKey []byte
	for {
		rows, keys, err := legacy.PageRows(bucket, afterKey, PageSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		txn, err := dest.BeginTxn(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := dest.Insert(ctx, txn, row); err != nil {
				_ = txn.Rollback()
				return err
			}
		}
		if err := txn.Commit(); err != nil {
			return err
		}

		if err := legacy.DeleteKeys(bucket, keys); err != nil {
			return err
		}
		afterKey = nil // bucket shrank; always restart from the new first key
	}
	return nil
}

// destinationPath mirrors pipeline.ownerScope's naming rule (§3.3) without
// importing the pipeline package, since upgrade has no CallingInfo to
// resolve from — it only has the legacy bucket's raw owner string.
func destinationPath(dataDir string, userID int32, ownerType int, owner string) string {
	var name string
	switch ownerType {
	case 0: // Hap
		name = fmt.Sprintf("Hap_%s.db", owner)
	case 1: // HapGroup
		name = fmt.Sprintf("Group_%s.db", owner)
	default: // Native
		name = fmt.Sprintf("Native_%s.db", owner)
	}
	return filepath.Join(dataDir, strconv.Itoa(int(userID)), name)
}

func parseBucketKey(bucket []byte) (ownerType int, owner string, err error) {
	s := string(bucket)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return 0, "", asseterr.New(asseterr.DataCorrupted, "malformed legacy bucket key "+s)
	}
	n, parseErr := strconv.Atoi(s[:i])
	if parseErr != nil {
		return 0, "", asseterr.Wrap(asseterr.DataCorrupted, parseErr, "malformed legacy bucket key %s", s)
	}
	return n, s[i+1:], nil
}

func removeBucket(buckets [][]byte, target []byte) [][]byte {
	out := make([][]byte, 0, len(buckets))
	for _, b := range buckets {
		if string(b) != string(target) {
			out = append(out, b)
		}
	}
	return out
}

// writePending rewrites the plain-text "owners still awaiting split" file,
// per §6.3. Split writes it before and after each bucket and removes it on
// success; Split never reads it back.
func writePending(userDir string, buckets [][]byte) error {
	if err := os.MkdirAll(userDir, 0700); err != nil {
		return asseterr.Wrap(asseterr.FileOperationError, err, "creating user directory %s", userDir)
	}
	f, err := os.Create(filepath.Join(userDir, pendingFileName))
	if err != nil {
		return asseterr.Wrap(asseterr.FileOperationError, err, "writing pending-split file")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, b := range buckets {
		if _, err := w.WriteString(string(b) + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}
