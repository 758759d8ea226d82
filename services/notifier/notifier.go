package notifier

import (
	"github.com/peter115342/bazos-alert-bot/internal/scraper"
)

// Notifier delivers outbound notifications. Delivery failure is reported
// through the error return and is never fatal; the decision engine retries
// listings on a later cycle by leaving them unnotified.
type Notifier interface {
	// NotifyListing delivers a new-listing alert
	NotifyListing(listing scraper.Listing) error

	// NotifyText delivers a plain operator message
	NotifyText(title, message string) error
}
