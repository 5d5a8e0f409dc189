package models

import "time"

// LibraryEntry is a content item the user tracks, as seen by the update scan.
type LibraryEntry struct {
	ID                   int64      `json:"id"`
	RunnerID             string     `json:"runner_id"`
	ContentID            string     `json:"content_id"`
	Title                string     `json:"title"`
	ReadingFlag          string     `json:"reading_flag"`
	UnreadCount          int        `json:"unread_count"`
	HasMarker            bool       `json:"has_marker"`
	LastChecked          *time.Time `json:"last_checked,omitempty"`
	LastUpdated          *time.Time `json:"last_updated,omitempty"`
	LastFetchedNumber    float64    `json:"last_fetched_number"`
	LastFetchedChapterID string     `json:"last_fetched_chapter_id,omitempty"`
	UpdateCount          int        `json:"update_count"`
}

// EntryUpdate is the outcome of checking one library entry.
type EntryUpdate struct {
	EntryID       int64
	NewChapters   int
	CheckedAt     time.Time
	LastUpdated   *time.Time
	NewestNumber  float64
	NewestChapter string
}
