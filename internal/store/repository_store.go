package store

import (
	"github.com/samber/oops"

	"github.com/vrsandeep/mango-runner/internal/models"
)

// ListRepositories returns all runner repositories in insertion order.
func (s *Store) ListRepositories() ([]*models.Repository, error) {
	rows, err := s.db.Query(`
		SELECT id, url, name, description, created_at
		FROM runner_repositories
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, wrap("STORE_REPOSITORY_LIST", err)
	}
	defer rows.Close()

	var repositories []*models.Repository
	for rows.Next() {
		var repo models.Repository
		if err := rows.Scan(&repo.ID, &repo.URL, &repo.Name, &repo.Description, &repo.CreatedAt); err != nil {
			return nil, wrap("STORE_REPOSITORY_LIST", err)
		}
		repositories = append(repositories, &repo)
	}
	return repositories, wrap("STORE_REPOSITORY_LIST", rows.Err())
}

// GetRepository returns a repository by id.
func (s *Store) GetRepository(id int64) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.QueryRow(`
		SELECT id, url, name, description, created_at
		FROM runner_repositories
		WHERE id = ?
	`, id).Scan(&repo.ID, &repo.URL, &repo.Name, &repo.Description, &repo.CreatedAt)
	if err != nil {
		return nil, wrap("STORE_REPOSITORY_GET", err)
	}
	return &repo, nil
}

// CreateRepository adds a repository.
func (s *Store) CreateRepository(url, name, description string) (*models.Repository, error) {
	result, err := s.db.Exec(`
		INSERT INTO runner_repositories (url, name, description, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, url, name, description)
	if err != nil {
		return nil, oops.Code("STORE_REPOSITORY_CREATE").With("url", url).Wrap(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, oops.Code("STORE_REPOSITORY_CREATE").Wrap(err)
	}
	return s.GetRepository(id)
}

// DeleteRepository removes a repository.
func (s *Store) DeleteRepository(id int64) error {
	_, err := s.db.Exec(`DELETE FROM runner_repositories WHERE id = ?`, id)
	return wrap("STORE_REPOSITORY_DELETE", err)
}
