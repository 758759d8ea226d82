package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/peter115342/bazos-alert-bot/config"
	"github.com/peter115342/bazos-alert-bot/internal/scraper"
	"github.com/peter115342/bazos-alert-bot/logger"
	"github.com/peter115342/bazos-alert-bot/services/notifier"
	"github.com/peter115342/bazos-alert-bot/services/publisher"
	"github.com/peter115342/bazos-alert-bot/services/store"
)

// errorBackoff is slept after an unexpected cycle failure before retrying
const errorBackoff = 60 * time.Second

// Bot wires scrapers, the listing store and the notifier into the polling
// decision loop. It holds no listing state itself; all cross-cycle memory
// lives in the store.
type Bot struct {
	ctx       context.Context
	cfg       *config.Config
	scrapers  map[string]scraper.Scraper
	store     store.Store
	notifier  notifier.Notifier
	publisher publisher.Publisher
	log       *logger.Logger
}

// New creates a new bot. The publisher may be nil when event fan-out is
// not configured.
func New(
	ctx context.Context,
	cfg *config.Config,
	scrapers map[string]scraper.Scraper,
	st store.Store,
	n notifier.Notifier,
	pub publisher.Publisher,
) *Bot {
	return &Bot{
		ctx:       ctx,
		cfg:       cfg,
		scrapers:  scrapers,
		store:     st,
		notifier:  n,
		publisher: pub,
		log:       logger.ForBot(),
	}
}

// ProcessListings runs candidates through the dedup/notify state machine.
// Each candidate's store mutations are individually durable before the next
// candidate is touched. Store errors abort the batch and propagate;
// delivery failures leave the record unnotified for the next cycle.
func (b *Bot) ProcessListings(listings []scraper.Listing) error {
	newCount := 0

	for _, l := range listings {
		seen, err := b.store.IsSeen(l.ID, l.Source)
		if err != nil {
			return err
		}

		if !seen {
			if err := b.store.Add(l); err != nil {
				return err
			}
		} else {
			if err := b.store.UpdateLastChecked(l.ID, l.Source); err != nil {
				return err
			}
		}

		notified, err := b.store.IsNotified(l.ID, l.Source)
		if err != nil {
			return err
		}
		if notified {
			continue
		}

		if err := b.notifier.NotifyListing(l); err != nil {
			// Not marked notified; the next cycle retries naturally
			b.log.Error().Err(err).
				Str("id", l.ID).
				Str("source", l.Source).
				Msg("Failed to deliver notification, will retry next cycle")
			continue
		}

		if err := b.store.MarkNotified(l.ID, l.Source); err != nil {
			return err
		}

		b.publishEvent(l)
		newCount++
		b.log.Info().
			Str("title", l.Title).
			Str("source", l.Source).
			Msg("New listing notified")
	}

	if newCount > 0 {
		b.log.Info().Int("processed", len(listings)).Int("new", newCount).Msg("Processed listings")
	} else {
		b.log.Debug().Int("processed", len(listings)).Msg("Processed listings, no new ones")
	}
	return nil
}

// publishEvent fans a notified listing out to the event stream, best effort
func (b *Bot) publishEvent(l scraper.Listing) {
	if b.publisher == nil {
		return
	}

	data, err := json.Marshal(l)
	if err != nil {
		b.log.Error().Err(err).Str("id", l.ID).Msg("Failed to encode listing event")
		return
	}
	if err := b.publisher.Publish(l.Source, data); err != nil {
		b.log.Error().Err(err).Str("id", l.ID).Msg("Failed to publish listing event")
	}
}

// RunSearchCycle runs one complete cycle over all configured searches.
// A failure in one search never prevents the remaining searches from
// running.
func (b *Bot) RunSearchCycle() {
	b.log.Info().Msg("Starting search cycle")

	if b.cfg.CleanupDays > 0 {
		if _, err := b.store.CleanupOldListings(b.cfg.CleanupDays, ""); err != nil {
			b.log.Error().Err(err).Msg("Retention sweep failed")
		}
	}

	for _, search := range b.cfg.Searches {
		name := search.Name
		if name == "" {
			name = "unnamed"
		}

		if search.Source == "" {
			b.log.Warn().Str("name", name).Msg("Search config missing source, skipping")
			continue
		}

		s, ok := b.scrapers[search.Source]
		if !ok {
			b.log.Warn().Str("source", search.Source).Str("name", name).Msg("No scraper registered for source, skipping")
			continue
		}

		b.log.Info().Str("source", search.Source).Str("name", name).Msg("Scraping search")

		listings, err := s.Scrape(search)
		if err != nil {
			b.log.Error().Err(err).
				Str("source", search.Source).
				Str("name", name).
				Msg("Scrape failed")
			b.notifyError(fmt.Sprintf("Error scraping %s (%s): %v", search.Source, name, err))
		}

		// Candidates collected before a failure are still processed
		if len(listings) > 0 {
			if err := b.ProcessListings(listings); err != nil {
				b.log.Error().Err(err).
					Str("source", search.Source).
					Str("name", name).
					Msg("Processing listings failed")
				b.notifyError(fmt.Sprintf("Error processing %s (%s): %v", search.Source, name, err))
			}
		}
	}

	if b.publisher != nil {
		if err := b.publisher.TrimStreams(); err != nil {
			b.log.Error().Err(err).Msg("Failed to trim event streams")
		}
	}

	b.log.Info().Msg("Search cycle completed")
}

// notifyError sends a best-effort operator alert; its own failure is only
// logged so alerting problems cannot cascade
func (b *Bot) notifyError(message string) {
	if err := b.notifier.NotifyText("⚠️ Scraping Error", message); err != nil {
		b.log.Error().Err(err).Msg("Failed to send error notification")
	}
}

// RunOnce runs a single search cycle (for cron-style scheduling)
func (b *Bot) RunOnce() {
	b.log.Info().Msg("Bot starting in run-once mode")
	b.runCycleSafely()
}

// Run runs the bot continuously until the context is cancelled
func (b *Bot) Run() error {
	b.log.Info().
		Dur("interval", b.cfg.CheckInterval).
		Msg("Bot starting in continuous mode")

	if err := b.notifier.NotifyText("🚀 Bot Started",
		fmt.Sprintf("Bazos alert bot is now running. Checking every %s.", b.cfg.CheckInterval)); err != nil {
		b.log.Error().Err(err).Msg("Failed to send start notification")
	}

	for {
		sleep := b.cfg.CheckInterval
		if !b.runCycleSafely() {
			sleep = errorBackoff
		}

		select {
		case <-b.ctx.Done():
			b.log.Info().Msg("Bot stopping")
			if err := b.notifier.NotifyText("🛑 Bot Stopped", "Bazos alert bot has been stopped."); err != nil {
				b.log.Error().Err(err).Msg("Failed to send stop notification")
			}
			return nil
		case <-time.After(sleep):
		}
	}
}

// runCycleSafely runs one cycle, converting a panic into a logged, alerted
// failure so the run loop survives. Returns false when the cycle panicked.
func (b *Bot) runCycleSafely() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			b.log.Error().Interface("panic", r).Msg("Unexpected error in search cycle")
			b.notifyError(fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	b.RunSearchCycle()
	return true
}
