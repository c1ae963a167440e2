package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const repositoryColumns = `id, name, address, enabled, last_modified, entity_tag, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepository(row rowScanner) (*Repository, error) {
	var repo Repository
	var updatedAt string
	if err := row.Scan(
		&repo.ID,
		&repo.Name,
		&repo.Address,
		&repo.Enabled,
		&repo.LastModified,
		&repo.EntityTag,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for repository %s: %w", repo.Name, err)
	}
	repo.UpdatedAt = t
	return &repo, nil
}

// AddRepository inserts a new enabled repository with an empty freshness marker.
func (s *Store) AddRepository(name, address string) (*Repository, error) {
	result, err := s.db.Exec(`
		INSERT INTO repositories (name, address, enabled)
		VALUES (?, ?, 1)
	`, name, address)
	if err != nil {
		return nil, wrapErr(err, "failed to add repository %s", name)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository id: %w", err)
	}
	return s.GetRepository(id)
}

// GetRepository returns the repository with the given id.
func (s *Store) GetRepository(id int64) (*Repository, error) {
	row := s.db.QueryRow(`SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get repository %d", id)
	}
	return repo, nil
}

// ListRepositories returns all repositories ordered by id.
func (s *Store) ListRepositories() ([]*Repository, error) {
	rows, err := s.db.Query(`SELECT ` + repositoryColumns + ` FROM repositories ORDER BY id`)
	if err != nil {
		return nil, wrapErr(err, "failed to list repositories")
	}
	defer rows.Close()

	var repos []*Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan repository row: %w", err)
		}
		repos = append(repos, repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating repositories: %w", err)
	}
	return repos, nil
}

// PutRepository rewrites an existing repository record.
func (s *Store) PutRepository(repo *Repository) error {
	result, err := s.db.Exec(`
		UPDATE repositories
		SET name = ?, address = ?, enabled = ?, last_modified = ?, entity_tag = ?, updated_at = ?
		WHERE id = ?
	`,
		repo.Name,
		repo.Address,
		repo.Enabled,
		repo.LastModified,
		repo.EntityTag,
		formatTime(repo.UpdatedAt),
		repo.ID,
	)
	if err != nil {
		return wrapErr(err, "failed to put repository %s", repo.Name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("repository %d: %w", repo.ID, ErrNotFound)
	}
	return nil
}

// RemoveRepository deletes the repository with the given name.
func (s *Store) RemoveRepository(name string) error {
	result, err := s.db.Exec(`DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return wrapErr(err, "failed to remove repository %s", name)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("repository %s: %w", name, ErrNotFound)
	}
	return nil
}
