package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/peter115342/bazos-alert-bot/internal/scraper"
	"github.com/peter115342/bazos-alert-bot/logger"
	apperr "github.com/peter115342/bazos-alert-bot/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT,
	url TEXT,
	price TEXT,
	image_url TEXT,
	description TEXT,
	location TEXT,
	category TEXT,
	date_posted TEXT,
	view_count INTEGER,
	first_seen TIMESTAMP NOT NULL,
	last_checked TIMESTAMP NOT NULL,
	notified INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, source)
);

CREATE INDEX IF NOT EXISTS idx_source ON listings(source);
`

// SQLiteStore implements Store on a local sqlite file via sqlx.
// Every call is a single autocommitted statement, so a crash between the
// Add of a record and its MarkNotified leaves only an unnotified record,
// which the next cycle resolves.
type SQLiteStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewSQLiteStore opens (creating if needed) the listing database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, apperr.NewStorage("", "creating database directory", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperr.NewStorage("", "opening database", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.NewStorage("", "initializing schema", err)
	}

	log := logger.ForStore()
	log.Info().Str("path", path).Msg("Database initialized")

	return &SQLiteStore{db: db, log: log}, nil
}

// IsSeen reports whether a listing already has a record
func (s *SQLiteStore) IsSeen(id, source string) (bool, error) {
	var one int
	err := s.db.Get(&one, "SELECT 1 FROM listings WHERE id = ? AND source = ?", id, source)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.NewStorage(source, "checking listing "+id, err)
	}
	return true, nil
}

// Add creates a record for a first-encountered listing
func (s *SQLiteStore) Add(listing scraper.Listing) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`
		INSERT INTO listings
		(id, source, title, url, price, image_url, description, location,
		 category, date_posted, view_count, first_seen, last_checked, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id, source) DO NOTHING`,
		listing.ID,
		listing.Source,
		listing.Title,
		listing.URL,
		listing.Price,
		listing.ImageURL,
		listing.Description,
		listing.Location,
		listing.Category,
		listing.DatePosted,
		listing.ViewCount,
		now,
		now,
	)
	if err != nil {
		return apperr.NewStorage(listing.Source, "adding listing "+listing.ID, err)
	}

	s.log.Debug().Str("id", listing.ID).Str("source", listing.Source).Msg("Added new listing")
	return nil
}

// UpdateLastChecked bumps last_checked for an existing record
func (s *SQLiteStore) UpdateLastChecked(id, source string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(
		"UPDATE listings SET last_checked = ? WHERE id = ? AND source = ?",
		now, id, source,
	)
	if err != nil {
		return apperr.NewStorage(source, "updating last_checked for "+id, err)
	}
	return nil
}

// IsNotified reports whether a listing has been successfully notified
func (s *SQLiteStore) IsNotified(id, source string) (bool, error) {
	var notified bool
	err := s.db.Get(&notified, "SELECT notified FROM listings WHERE id = ? AND source = ?", id, source)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.NewStorage(source, "checking notified flag for "+id, err)
	}
	return notified, nil
}

// MarkNotified records a successful notification delivery
func (s *SQLiteStore) MarkNotified(id, source string) error {
	_, err := s.db.Exec(
		"UPDATE listings SET notified = 1 WHERE id = ? AND source = ?",
		id, source,
	)
	if err != nil {
		return apperr.NewStorage(source, "marking notified for "+id, err)
	}
	return nil
}

// Get returns the record for a listing, or nil when absent
func (s *SQLiteStore) Get(id, source string) (*Record, error) {
	var rec Record
	err := s.db.Get(&rec, "SELECT * FROM listings WHERE id = ? AND source = ?", id, source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewStorage(source, "loading listing "+id, err)
	}
	return &rec, nil
}

// Count returns the number of records, optionally scoped to a source
func (s *SQLiteStore) Count(source string) (int, error) {
	var count int
	var err error
	if source != "" {
		err = s.db.Get(&count, "SELECT COUNT(*) FROM listings WHERE source = ?", source)
	} else {
		err = s.db.Get(&count, "SELECT COUNT(*) FROM listings")
	}
	if err != nil {
		return 0, apperr.NewStorage(source, "counting listings", err)
	}
	return count, nil
}

// CleanupOldListings deletes records first seen before the day threshold
func (s *SQLiteStore) CleanupOldListings(days int, source string) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	var res sql.Result
	var err error
	if source != "" {
		res, err = s.db.Exec(
			"DELETE FROM listings WHERE first_seen < ? AND source = ?",
			cutoff, source,
		)
	} else {
		res, err = s.db.Exec("DELETE FROM listings WHERE first_seen < ?", cutoff)
	}
	if err != nil {
		return 0, apperr.NewStorage(source, "cleaning up old listings", err)
	}

	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("Cleaned up old listings")
	}
	return deleted, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
