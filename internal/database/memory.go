package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// metaSnapshotPrefix and taskSnapshotPrefix name the two snapshot kinds the
// metadata store produces, matching the on-disk layout the embedded-database
// mode used before this rewrite moved the metadata/task tables onto a
// relational engine: "{meta|tasks}.YYYY-MM-DD-HH-MM.snapshot".
const (
	metaSnapshotPrefix = "meta"
	taskSnapshotPrefix = "tasks"
	maxSnapshots       = 10
)

// metaTables and taskTables partition the metadata-store schema into the two
// snapshot kinds. The envelope store (folders, envelopes, threads, address
// rows) never runs in memory-only mode and has no snapshot file — mirroring
// it would duplicate every synced mailbox's body cache on every snapshot
// interval for no resiliency benefit, since the envelope store is always
// rebuildable by re-running the sync reconcilers against the mail server.
var (
	metaTables = []string{"sync_accounts", "sync_gmail_checkpoints", "sync_outlook_delta_links", "sync_account_running_states"}
	taskTables = []string{"sync_outgoing_tasks"}
)

// OpenMemoryStore opens the in-RAM metadata+task database used when
// DatabaseConfig.MemoryOnly is set. SQLite's shared-cache in-memory mode
// keeps one logical database alive across connections in the pool; without
// cache=shared each pooled connection would see its own empty database.
func OpenMemoryStore() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open in-memory metadata store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// A second connection to file::memory: without cache=shared would open a
	// distinct empty database; capping the pool at one keeps every caller on
	// the same shared-cache instance without relying on driver-level locking
	// to serialize access to it.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// LoadLatestSnapshot locates the newest meta and tasks snapshot files under
// dir and copies their rows into db via SQLite's ATTACH, so a process
// restart in memory-only mode resumes from the last periodic snapshot
// instead of an empty store. A missing snapshot of either kind is not an
// error: that store starts empty, matching a brand-new deployment.
func LoadLatestSnapshot(db *gorm.DB, dir string) error {
	if err := loadSnapshotKind(db, dir, metaSnapshotPrefix, metaTables); err != nil {
		return err
	}
	return loadSnapshotKind(db, dir, taskSnapshotPrefix, taskTables)
}

func loadSnapshotKind(db *gorm.DB, dir, prefix string, tables []string) error {
	path, err := latestSnapshot(dir, prefix)
	if err != nil || path == "" {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("ATTACH DATABASE ? AS snap", path).Error; err != nil {
			return fmt.Errorf("attach snapshot %s: %w", path, err)
		}
		defer tx.Exec("DETACH DATABASE snap")

		for _, table := range tables {
			stmt := fmt.Sprintf("INSERT INTO main.%s SELECT * FROM snap.%s", table, table)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("load snapshot table %s from %s: %w", table, path, err)
			}
		}
		return nil
	})
}

// Snapshot writes the current metadata and task tables out to two new
// timestamped files under dir and prunes each kind down to the newest
// maxSnapshots. VACUUM INTO always produces a self-contained, consistent
// file even while other connections are reading the live database.
func Snapshot(db *gorm.DB, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory %s: %w", dir, err)
	}

	now := time.Now()
	if err := snapshotKind(db, dir, metaSnapshotPrefix, now); err != nil {
		return err
	}
	if err := snapshotKind(db, dir, taskSnapshotPrefix, now); err != nil {
		return err
	}
	if err := pruneSnapshots(dir, metaSnapshotPrefix); err != nil {
		return err
	}
	return pruneSnapshots(dir, taskSnapshotPrefix)
}

func snapshotKind(db *gorm.DB, dir, prefix string, at time.Time) error {
	path := filepath.Join(dir, snapshotFileName(prefix, at))
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("snapshot %s: %w", prefix, err)
	}
	return nil
}

func snapshotFileName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s.%s.snapshot", prefix, at.Format("2006-01-02-15-04"))
}

func latestSnapshot(dir, prefix string) (string, error) {
	matches, err := listSnapshots(dir, prefix)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	return matches[len(matches)-1], nil
}

// listSnapshots returns prefix's snapshot files sorted oldest-first — the
// timestamp format sorts lexically, so string order is chronological order.
func listSnapshots(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+".*.snapshot"))
	if err != nil {
		return nil, fmt.Errorf("list %s snapshots: %w", prefix, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func pruneSnapshots(dir, prefix string) error {
	matches, err := listSnapshots(dir, prefix)
	if err != nil {
		return err
	}
	if len(matches) <= maxSnapshots {
		return nil
	}
	for _, stale := range matches[:len(matches)-maxSnapshots] {
		if err := os.Remove(stale); err != nil && !strings.Contains(err.Error(), "no such file") {
			return fmt.Errorf("prune snapshot %s: %w", stale, err)
		}
	}
	return nil
}
