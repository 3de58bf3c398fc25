package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchantrell/unitybundle/internal/bundle"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS bundles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    signature TEXT NOT NULL,
    version INTEGER NOT NULL,
    unity_version TEXT NOT NULL,
    unity_revision TEXT NOT NULL,
    size INTEGER NOT NULL,
    flags INTEGER NOT NULL,
    block_compression TEXT NOT NULL,
    payload_size INTEGER NOT NULL,
    indexed_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS entries (
    bundle_id INTEGER NOT NULL REFERENCES bundles(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    "offset" INTEGER NOT NULL,
    size INTEGER NOT NULL,
    flags INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_bundle ON entries(bundle_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path)`,
}

// migrate creates the catalog tables
func (d *Database) migrate(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := d.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating catalog schema: %w", err)
		}
	}
	return nil
}

// BundleRecord is one indexed bundle file
type BundleRecord struct {
	ID               int64
	Path             string
	Signature        string
	Version          uint32
	UnityVersion     string
	UnityRevision    string
	Size             uint64
	Flags            uint32
	BlockCompression string
	PayloadSize      uint64
	Entries          int
	IndexedAt        time.Time
}

// EntryLocation places a virtual file inside an indexed bundle
type EntryLocation struct {
	BundlePath string
	Path       string
	Offset     uint64
	Size       uint64
	Flags      uint32
}

// IndexBundle records b as the contents of path, replacing any previous rows for that path
func (d *Database) IndexBundle(ctx context.Context, path string, b *bundle.Bundle) (int64, error) {
	compression, err := b.BlockCompression()
	if err != nil {
		return 0, err
	}

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE bundle_id IN (SELECT id FROM bundles WHERE path = ?)`, path); err != nil {
		return 0, fmt.Errorf("removing previous entries of %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE path = ?`, path); err != nil {
		return 0, fmt.Errorf("removing previous record of %s: %w", path, err)
	}

	result, err := tx.ExecContext(ctx, `INSERT INTO bundles
    (path, signature, version, unity_version, unity_revision, size, flags, block_compression, payload_size, indexed_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path, b.Signature, b.Version, b.UnityVersion, b.UnityRevision,
		int64(b.Size), uint32(b.Flags), compression.String(), int64(len(b.Payload)),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("inserting bundle %s: %w", path, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading bundle id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries (bundle_id, path, "offset", size, flags) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range b.Directory {
		if _, err := stmt.ExecContext(ctx, id, entry.Path, int64(entry.Offset), int64(entry.Size), entry.Flags); err != nil {
			return 0, fmt.Errorf("inserting entry %s: %w", entry.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("Bundle indexed", "path", path, "id", id, "entries", len(b.Directory))

	return id, nil
}

// Bundles returns every indexed bundle ordered by path
func (d *Database) Bundles(ctx context.Context) ([]BundleRecord, error) {
	rows, err := d.Query(ctx, `SELECT b.id, b.path, b.signature, b.version, b.unity_version, b.unity_revision,
    b.size, b.flags, b.block_compression, b.payload_size, b.indexed_at, COUNT(e.bundle_id)
    FROM bundles b LEFT JOIN entries e ON e.bundle_id = b.id
    GROUP BY b.id ORDER BY b.path`)
	if err != nil {
		return nil, fmt.Errorf("listing bundles: %w", err)
	}
	defer rows.Close()

	var records []BundleRecord
	for rows.Next() {
		var (
			r           BundleRecord
			size        int64
			payloadSize int64
			indexedAt   string
		)
		if err := rows.Scan(&r.ID, &r.Path, &r.Signature, &r.Version, &r.UnityVersion, &r.UnityRevision,
			&size, &r.Flags, &r.BlockCompression, &payloadSize, &indexedAt, &r.Entries); err != nil {
			return nil, fmt.Errorf("scanning bundle row: %w", err)
		}
		r.Size = uint64(size)
		r.PayloadSize = uint64(payloadSize)
		if r.IndexedAt, err = time.Parse(time.RFC3339Nano, indexedAt); err != nil {
			return nil, fmt.Errorf("parsing index time of %s: %w", r.Path, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bundles: %w", err)
	}

	return records, nil
}

// FindEntries returns every indexed bundle entry with the given virtual path
func (d *Database) FindEntries(ctx context.Context, entryPath string) ([]EntryLocation, error) {
	rows, err := d.Query(ctx, `SELECT b.path, e.path, e."offset", e.size, e.flags
    FROM entries e JOIN bundles b ON b.id = e.bundle_id
    WHERE e.path = ? ORDER BY b.path`, entryPath)
	if err != nil {
		return nil, fmt.Errorf("finding entry %s: %w", entryPath, err)
	}
	defer rows.Close()

	var locations []EntryLocation
	for rows.Next() {
		var (
			l      EntryLocation
			offset int64
			size   int64
		)
		if err := rows.Scan(&l.BundlePath, &l.Path, &offset, &size, &l.Flags); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		l.Offset = uint64(offset)
		l.Size = uint64(size)
		locations = append(locations, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return locations, nil
}
