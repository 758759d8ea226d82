package store

import (
	"github.com/peter115342/bazos-alert-bot/internal/scraper"
)

// Record is one persisted listing row, keyed by (id, source)
type Record struct {
	ID          string `db:"id"`
	Source      string `db:"source"`
	Title       string `db:"title"`
	URL         string `db:"url"`
	Price       string `db:"price"`
	ImageURL    string `db:"image_url"`
	Description string `db:"description"`
	Location    string `db:"location"`
	Category    string `db:"category"`
	DatePosted  string `db:"date_posted"`
	ViewCount   *int   `db:"view_count"`
	FirstSeen   string `db:"first_seen"`
	LastChecked string `db:"last_checked"`
	Notified    bool   `db:"notified"`
}

// Store owns all cross-cycle listing state. Each operation is individually
// durable; the decision engine never batches mutations.
type Store interface {
	// IsSeen reports whether a listing already has a record
	IsSeen(id, source string) (bool, error)

	// Add creates a record for a first-encountered listing with
	// first_seen = last_checked = now. Content fields are never updated
	// after creation.
	Add(listing scraper.Listing) error

	// UpdateLastChecked bumps last_checked for an existing record
	UpdateLastChecked(id, source string) error

	// IsNotified reports whether a listing has been successfully notified
	IsNotified(id, source string) (bool, error)

	// MarkNotified records a successful notification delivery. Once set the
	// flag is never cleared.
	MarkNotified(id, source string) error

	// Get returns the record for a listing, or nil when absent
	Get(id, source string) (*Record, error)

	// Count returns the number of records, optionally scoped to a source
	// (empty source counts all)
	Count(source string) (int, error)

	// CleanupOldListings deletes records whose first_seen is older than the
	// given number of days, optionally scoped to a source. Returns the
	// number of deleted rows.
	CleanupOldListings(days int, source string) (int64, error)

	// Close releases the underlying storage engine
	Close() error
}
