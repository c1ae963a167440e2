package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/reposync/internal/installed"
)

const upsertInstalled = `
	INSERT OR REPLACE INTO installed
	(package_name, version, version_code, signature, updated_at)
	VALUES (?, ?, ?, ?, ?)
`

// PutInstalled inserts or replaces one installed item.
func (s *Store) PutInstalled(item installed.Item) error {
	_, err := s.db.Exec(upsertInstalled,
		item.PackageName,
		item.Version,
		item.VersionCode,
		item.Signature,
		formatTime(time.Now()),
	)
	return wrapErr(err, "failed to put installed item %s", item.PackageName)
}

// PutAllInstalled upserts items in a single transaction.
func (s *Store) PutAllInstalled(items []installed.Item) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(upsertInstalled)
	if err != nil {
		return wrapErr(err, "failed to prepare installed upsert")
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, item := range items {
		if _, err := stmt.Exec(item.PackageName, item.Version, item.VersionCode, item.Signature, now); err != nil {
			return wrapErr(err, "failed to put installed item %s", item.PackageName)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installed items: %w", err)
	}
	return nil
}

// DeleteInstalled removes an installed item. Deleting an absent item is not an error.
func (s *Store) DeleteInstalled(packageName string) error {
	_, err := s.db.Exec(`DELETE FROM installed WHERE package_name = ?`, packageName)
	return wrapErr(err, "failed to delete installed item %s", packageName)
}

// GetInstalled returns the installed item for packageName.
func (s *Store) GetInstalled(packageName string) (installed.Item, error) {
	var item installed.Item
	err := s.db.QueryRow(`
		SELECT package_name, version, version_code, signature
		FROM installed
		WHERE package_name = ?
	`, packageName).Scan(&item.PackageName, &item.Version, &item.VersionCode, &item.Signature)

	if errors.Is(err, sql.ErrNoRows) {
		return installed.Item{}, fmt.Errorf("installed item %s: %w", packageName, ErrNotFound)
	}
	if err != nil {
		return installed.Item{}, wrapErr(err, "failed to get installed item %s", packageName)
	}
	return item, nil
}

// ListInstalled returns all installed items ordered by package name.
func (s *Store) ListInstalled() ([]installed.Item, error) {
	rows, err := s.db.Query(`
		SELECT package_name, version, version_code, signature
		FROM installed
		ORDER BY package_name
	`)
	if err != nil {
		return nil, wrapErr(err, "failed to list installed items")
	}
	defer rows.Close()

	var items []installed.Item
	for rows.Next() {
		var item installed.Item
		if err := rows.Scan(&item.PackageName, &item.Version, &item.VersionCode, &item.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan installed row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating installed items: %w", err)
	}
	return items, nil
}

// CountInstalled returns the number of installed items.
func (s *Store) CountInstalled() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM installed`).Scan(&n); err != nil {
		return 0, wrapErr(err, "failed to count installed items")
	}
	return n, nil
}
