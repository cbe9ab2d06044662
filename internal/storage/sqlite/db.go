// Package sqlite persists the load order tree and the imported mod
// description catalog.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"losort/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS load_order (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		parent_id   TEXT DEFAULT '',
		idx         INTEGER NOT NULL,
		description TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_load_order_parent ON load_order(parent_id, idx);

	CREATE TABLE IF NOT EXISTS mod_info (
		name        TEXT PRIMARY KEY,
		description TEXT DEFAULT '',
		author      TEXT DEFAULT '',
		version     TEXT DEFAULT '',
		uuid        TEXT DEFAULT '',
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// SaveRecords replaces the stored load order with the given snapshot in one
// transaction, so a failed save never leaves a half-written tree behind.
func SaveRecords(db *sql.DB, records []domain.Record) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM load_order`); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO load_order (id, name, kind, parent_id, idx, description)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.Exec(rec.ID, rec.Name, string(rec.Kind), rec.ParentID, rec.Index, rec.Description)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func LoadRecords(db *sql.DB) ([]domain.Record, error) {
	rows, err := db.Query(
		`SELECT id, name, kind, parent_id, idx, description
		 FROM load_order ORDER BY parent_id, idx`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		var kind string
		if err := rows.Scan(&rec.ID, &rec.Name, &kind, &rec.ParentID, &rec.Index, &rec.Description); err != nil {
			return nil, err
		}
		rec.Kind = domain.NodeKind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func UpsertModInfo(db *sql.DB, info domain.ModInfo) error {
	_, err := db.Exec(
		`INSERT INTO mod_info (name, description, author, version, uuid, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			author = excluded.author,
			version = excluded.version,
			uuid = excluded.uuid,
			updated_at = excluded.updated_at`,
		info.Name, info.Description, info.Author, info.Version, info.UUID, time.Now().UTC(),
	)
	return err
}

// LookupDescription returns the stored description for a mod name. The bool
// reports whether the mod is known at all; a known mod can still carry an
// empty description.
func LookupDescription(db *sql.DB, name string) (string, bool, error) {
	var description string
	err := db.QueryRow(`SELECT description FROM mod_info WHERE name = ?`, name).Scan(&description)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return description, true, nil
}

func CountModInfo(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM mod_info`).Scan(&count)
	return count, err
}

// DescriptionStore adapts the mod_info table to the extract.Source interface.
type DescriptionStore struct {
	DB *sql.DB
}

func (s *DescriptionStore) Description(name string) (string, bool, error) {
	return LookupDescription(s.DB, name)
}
