package store

import (
	"database/sql"
	"time"

	"github.com/samber/oops"

	"github.com/vrsandeep/mango-runner/internal/models"
)

const libraryColumns = `id, runner_id, content_id, title, reading_flag, unread_count, has_marker,
	last_checked, last_updated, last_fetched_number, last_fetched_chapter_id, update_count`

func scanLibraryEntry(row rowScanner) (*models.LibraryEntry, error) {
	var e models.LibraryEntry
	var hasMarker int
	var lastChecked, lastUpdated sql.NullTime
	err := row.Scan(&e.ID, &e.RunnerID, &e.ContentID, &e.Title, &e.ReadingFlag, &e.UnreadCount, &hasMarker,
		&lastChecked, &lastUpdated, &e.LastFetchedNumber, &e.LastFetchedChapterID, &e.UpdateCount)
	if err != nil {
		return nil, err
	}
	e.HasMarker = hasMarker == 1
	if lastChecked.Valid {
		t := lastChecked.Time
		e.LastChecked = &t
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time
		e.LastUpdated = &t
	}
	return &e, nil
}

// AddLibraryEntry inserts a tracked content item and returns it with its id.
func (s *Store) AddLibraryEntry(e models.LibraryEntry) (*models.LibraryEntry, error) {
	if e.ReadingFlag == "" {
		e.ReadingFlag = "reading"
	}
	res, err := s.db.Exec(`
		INSERT INTO library_entries (runner_id, content_id, title, reading_flag, unread_count, has_marker,
			last_checked, last_updated, last_fetched_number, last_fetched_chapter_id, update_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunnerID, e.ContentID, e.Title, e.ReadingFlag, e.UnreadCount, boolToInt(e.HasMarker),
		nullTime(e.LastChecked), nullTime(e.LastUpdated), e.LastFetchedNumber, e.LastFetchedChapterID, e.UpdateCount)
	if err != nil {
		return nil, oops.Code("STORE_LIBRARY_ADD").With("runner", e.RunnerID).With("content", e.ContentID).Wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, oops.Code("STORE_LIBRARY_ADD").Wrap(err)
	}
	return s.GetLibraryEntry(id)
}

// GetLibraryEntry returns one library entry by id.
func (s *Store) GetLibraryEntry(id int64) (*models.LibraryEntry, error) {
	e, err := scanLibraryEntry(s.db.QueryRow(`SELECT `+libraryColumns+` FROM library_entries WHERE id = ?`, id))
	if err != nil {
		return nil, wrap("STORE_LIBRARY_GET", err)
	}
	return e, nil
}

// ListLibraryEntries returns the entries tracked through a runner.
// An empty runnerID lists every entry.
func (s *Store) ListLibraryEntries(runnerID string) ([]*models.LibraryEntry, error) {
	query := `SELECT ` + libraryColumns + ` FROM library_entries`
	var args []any
	if runnerID != "" {
		query += ` WHERE runner_id = ?`
		args = append(args, runnerID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrap("STORE_LIBRARY_LIST", err)
	}
	defer rows.Close()

	var entries []*models.LibraryEntry
	for rows.Next() {
		e, err := scanLibraryEntry(rows)
		if err != nil {
			return nil, wrap("STORE_LIBRARY_LIST", err)
		}
		entries = append(entries, e)
	}
	return entries, wrap("STORE_LIBRARY_LIST", rows.Err())
}

// SetReadingFlag changes the reading flag of an entry.
func (s *Store) SetReadingFlag(id int64, flag string) error {
	_, err := s.db.Exec(`UPDATE library_entries SET reading_flag = ? WHERE id = ?`, flag, id)
	return wrap("STORE_LIBRARY_FLAG", err)
}

// RemoveLibraryEntry deletes an entry.
func (s *Store) RemoveLibraryEntry(id int64) error {
	_, err := s.db.Exec(`DELETE FROM library_entries WHERE id = ?`, id)
	return wrap("STORE_LIBRARY_REMOVE", err)
}

// ApplyEntryUpdates persists the outcome of one runner's scan in a single
// transaction. Entries without new chapters only get their check time bumped.
func (s *Store) ApplyEntryUpdates(updates []models.EntryUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return oops.Code("STORE_LIBRARY_UPDATE").Wrap(err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if u.NewChapters == 0 {
			_, err = tx.Exec(`UPDATE library_entries SET last_checked = ? WHERE id = ?`, u.CheckedAt, u.EntryID)
		} else {
			_, err = tx.Exec(`
				UPDATE library_entries SET
					last_checked = ?,
					last_updated = COALESCE(?, last_updated),
					unread_count = unread_count + ?,
					update_count = update_count + ?,
					last_fetched_number = MAX(last_fetched_number, ?),
					last_fetched_chapter_id = ?
				WHERE id = ?
			`, u.CheckedAt, nullTime(u.LastUpdated), u.NewChapters, u.NewChapters,
				u.NewestNumber, u.NewestChapter, u.EntryID)
		}
		if err != nil {
			return oops.Code("STORE_LIBRARY_UPDATE").With("entry", u.EntryID).Wrap(err)
		}
	}
	return tx.Commit()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
