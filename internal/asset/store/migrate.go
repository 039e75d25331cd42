package store

import (
	"database/sql"
	"strconv"

	"github.com/assetsvc/assetsvc/internal/asset/asseterr"
)

// migration is one idempotent forward step keyed to PRAGMA user_version,
// per §4.2's schema-evolution model: rows at an older version are upgraded
// in place when a secret-returning Query reads them (see the pipeline
// package's upgradeRow), while the physical table shape is advanced here
// at open time.
type migration struct {
	version int
	apply   func(*sql.DB) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(db *sql.DB) error {
			// Schema version 1 is the baseline shape created by
			// ensureSchema's CREATE TABLE IF NOT EXISTS; nothing further
			// to do, this step only claims the version number.
			return nil
		},
	},
}

// runMigrations advances db from its current PRAGMA user_version up to
// CurrentSchemaVersion, applying each intermediate step in order.
func runMigrations(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return asseterr.Wrap(asseterr.DatabaseError, err, "reading schema version")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := m.apply(db); err != nil {
			return asseterr.Wrap(asseterr.DatabaseError, err, "applying schema migration %d", m.version)
		}
		if _, err := db.Exec("PRAGMA user_version = " + strconv.Itoa(m.version)); err != nil {
			return asseterr.Wrap(asseterr.DatabaseError, err, "recording schema version %d", m.version)
		}
		current = m.version
	}
	return nil
}
