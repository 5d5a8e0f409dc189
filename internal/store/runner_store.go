package store

import (
	"github.com/samber/oops"

	"github.com/vrsandeep/mango-runner/internal/models"
)

const runnerColumns = `id, name, version, environment, enabled, install_source, disable_update_checks, installed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunner(row rowScanner) (*models.InstalledRunner, error) {
	var r models.InstalledRunner
	var enabled, disableChecks int
	err := row.Scan(&r.ID, &r.Name, &r.Version, &r.Environment, &enabled, &r.InstallSource, &disableChecks, &r.InstalledAt)
	if err != nil {
		return nil, err
	}
	r.Enabled = enabled == 1
	r.DisableUpdateChecks = disableChecks == 1
	return &r, nil
}

// RegisterRunner records a runner the first time it is loaded. Later loads
// only refresh name, version and environment; user choices such as the
// enabled flag are kept.
func (s *Store) RegisterRunner(r models.InstalledRunner) error {
	_, err := s.db.Exec(`
		INSERT INTO runners (id, name, version, environment, enabled, install_source, disable_update_checks, installed_at)
		VALUES (?, ?, ?, ?, 1, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			environment = excluded.environment,
			install_source = CASE WHEN excluded.install_source = '' THEN runners.install_source ELSE excluded.install_source END
	`, r.ID, r.Name, r.Version, r.Environment, r.InstallSource)
	if err != nil {
		return oops.Code("STORE_RUNNER_REGISTER").With("runner", r.ID).Wrap(err)
	}
	return nil
}

// GetRunner returns the stored record for a runner.
func (s *Store) GetRunner(id string) (*models.InstalledRunner, error) {
	r, err := scanRunner(s.db.QueryRow(`SELECT `+runnerColumns+` FROM runners WHERE id = ?`, id))
	if err != nil {
		return nil, wrap("STORE_RUNNER_GET", err)
	}
	return r, nil
}

// ListRunners returns every stored runner ordered by id.
func (s *Store) ListRunners() ([]*models.InstalledRunner, error) {
	rows, err := s.db.Query(`SELECT ` + runnerColumns + ` FROM runners ORDER BY id ASC`)
	if err != nil {
		return nil, wrap("STORE_RUNNER_LIST", err)
	}
	defer rows.Close()

	var runners []*models.InstalledRunner
	for rows.Next() {
		r, err := scanRunner(rows)
		if err != nil {
			return nil, wrap("STORE_RUNNER_LIST", err)
		}
		runners = append(runners, r)
	}
	return runners, wrap("STORE_RUNNER_LIST", rows.Err())
}

// SetRunnerEnabled toggles whether a runner takes part in routing and scans.
func (s *Store) SetRunnerEnabled(id string, enabled bool) error {
	return s.updateRunnerFlag(id, "enabled", enabled)
}

// SetDisableUpdateChecks toggles repository update checks for a runner.
func (s *Store) SetDisableUpdateChecks(id string, disabled bool) error {
	return s.updateRunnerFlag(id, "disable_update_checks", disabled)
}

func (s *Store) updateRunnerFlag(id, column string, value bool) error {
	res, err := s.db.Exec(`UPDATE runners SET `+column+` = ? WHERE id = ?`, boolToInt(value), id)
	if err != nil {
		return oops.Code("STORE_RUNNER_UPDATE").With("runner", id).Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oops.Code("STORE_RUNNER_UPDATE").With("runner", id).Wrap(ErrNotFound)
	}
	return nil
}

// DeleteRunner removes a runner record along with its key/value data.
func (s *Store) DeleteRunner(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return oops.Code("STORE_RUNNER_DELETE").Wrap(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM runner_kv WHERE runner_id = ?`, id); err != nil {
		return oops.Code("STORE_RUNNER_DELETE").With("runner", id).Wrap(err)
	}
	if _, err := tx.Exec(`DELETE FROM runners WHERE id = ?`, id); err != nil {
		return oops.Code("STORE_RUNNER_DELETE").With("runner", id).Wrap(err)
	}
	return tx.Commit()
}
