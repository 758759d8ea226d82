package scraper

import "github.com/peter115342/bazos-alert-bot/config"

// Listing represents one vehicle listing candidate extracted from a results page.
// Identity is (Source, ID); candidates are rebuilt on every scrape and never
// persisted as-is.
type Listing struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Price       string `json:"price"`
	Year        string `json:"year,omitempty"`
	Mileage     string `json:"mileage,omitempty"`
	Location    string `json:"location,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	DatePosted  string `json:"date_posted,omitempty"`
	ViewCount   *int   `json:"view_count,omitempty"`
}

// Scraper is the contract for all listing source implementations
type Scraper interface {
	// Scrape retrieves candidate listings for one saved search. Collected
	// candidates are returned even when a later page fails to fetch; the
	// error reports the failure for the caller to surface.
	Scrape(search config.SearchConfig) ([]Listing, error)

	// Source returns the source identifier for logging and dedup scoping
	Source() string
}
