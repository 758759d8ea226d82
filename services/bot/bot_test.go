package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter115342/bazos-alert-bot/config"
	"github.com/peter115342/bazos-alert-bot/internal/scraper"
	"github.com/peter115342/bazos-alert-bot/services/notifier"
	"github.com/peter115342/bazos-alert-bot/services/publisher"
	"github.com/peter115342/bazos-alert-bot/services/store"
)

// MockScraper implements the scraper.Scraper interface for testing
type MockScraper struct {
	source    string
	listings  []scraper.Listing
	scrapeErr error
}

var _ scraper.Scraper = (*MockScraper)(nil)

func (m *MockScraper) Scrape(search config.SearchConfig) ([]scraper.Listing, error) {
	return m.listings, m.scrapeErr
}

func (m *MockScraper) Source() string {
	return m.source
}

// MockStore implements store.Store in memory for testing
type MockStore struct {
	records          map[string]*store.Record
	lastCheckedCalls int
}

var _ store.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]*store.Record)}
}

func (m *MockStore) key(id, source string) string { return source + ":" + id }

func (m *MockStore) IsSeen(id, source string) (bool, error) {
	_, ok := m.records[m.key(id, source)]
	return ok, nil
}

func (m *MockStore) Add(l scraper.Listing) error {
	k := m.key(l.ID, l.Source)
	if _, ok := m.records[k]; ok {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	m.records[k] = &store.Record{
		ID:          l.ID,
		Source:      l.Source,
		Title:       l.Title,
		FirstSeen:   now,
		LastChecked: now,
	}
	return nil
}

func (m *MockStore) UpdateLastChecked(id, source string) error {
	m.lastCheckedCalls++
	if rec, ok := m.records[m.key(id, source)]; ok {
		rec.LastChecked = time.Now().UTC().Format(time.RFC3339)
	}
	return nil
}

func (m *MockStore) IsNotified(id, source string) (bool, error) {
	if rec, ok := m.records[m.key(id, source)]; ok {
		return rec.Notified, nil
	}
	return false, nil
}

func (m *MockStore) MarkNotified(id, source string) error {
	if rec, ok := m.records[m.key(id, source)]; ok {
		rec.Notified = true
	}
	return nil
}

func (m *MockStore) Get(id, source string) (*store.Record, error) {
	return m.records[m.key(id, source)], nil
}

func (m *MockStore) Count(source string) (int, error) {
	return len(m.records), nil
}

func (m *MockStore) CleanupOldListings(days int, source string) (int64, error) {
	return 0, nil
}

func (m *MockStore) Close() error { return nil }

// MockNotifier implements notifier.Notifier for testing
type MockNotifier struct {
	listings []scraper.Listing
	texts    []string
	failures int // fail this many NotifyListing calls before succeeding
}

var _ notifier.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyListing(l scraper.Listing) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("delivery failed")
	}
	m.listings = append(m.listings, l)
	return nil
}

func (m *MockNotifier) NotifyText(title, message string) error {
	m.texts = append(m.texts, title+": "+message)
	return nil
}

// MockPublisher implements publisher.Publisher for testing
type MockPublisher struct {
	published map[string][][]byte
	trims     int
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{published: make(map[string][][]byte)}
}

func (m *MockPublisher) Publish(source string, message []byte) error {
	m.published[source] = append(m.published[source], message)
	return nil
}

func (m *MockPublisher) TrimStreams() error {
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func testBot(cfg *config.Config, scrapers map[string]scraper.Scraper, st store.Store, n notifier.Notifier, pub publisher.Publisher) *Bot {
	if cfg == nil {
		cfg = &config.Config{CheckInterval: time.Minute}
	}
	return New(context.Background(), cfg, scrapers, st, n, pub)
}

func testListing(id string) scraper.Listing {
	return scraper.Listing{
		ID:     id,
		Source: "bazos_sk",
		Title:  "Skoda Fabia 1.2 HTP",
		URL:    "https://auto.bazos.sk/inzerat/" + id + "/skoda-fabia.php",
		Price:  "2 200 €",
	}
}

func TestProcessListingsNewListing(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}
	pub := NewMockPublisher()
	b := testBot(nil, nil, st, n, pub)

	require.NoError(t, b.ProcessListings([]scraper.Listing{testListing("1")}))

	require.Len(t, n.listings, 1)
	assert.Equal(t, "1", n.listings[0].ID)

	rec, _ := st.Get("1", "bazos_sk")
	require.NotNil(t, rec)
	assert.True(t, rec.Notified)

	// Notified listings are fanned out to the event stream
	assert.Len(t, pub.published["bazos_sk"], 1)
}

func TestIdempotentRescrape(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}
	b := testBot(nil, nil, st, n, nil)

	listings := []scraper.Listing{testListing("1"), testListing("2")}

	require.NoError(t, b.ProcessListings(listings))
	require.NoError(t, b.ProcessListings(listings))

	// Exactly one notification per listing across both passes
	assert.Len(t, n.listings, 2)
	// Second pass only bumped last_checked
	assert.Equal(t, 2, st.lastCheckedCalls)
}

func TestAtMostOnceWithFailedDelivery(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{failures: 1}
	b := testBot(nil, nil, st, n, nil)

	listings := []scraper.Listing{testListing("1")}

	// Pass 1: delivery fails, record stays unnotified
	require.NoError(t, b.ProcessListings(listings))
	assert.Empty(t, n.listings)
	notified, _ := st.IsNotified("1", "bazos_sk")
	assert.False(t, notified)

	// Passes 2..4: exactly one successful delivery in total
	for i := 0; i < 3; i++ {
		require.NoError(t, b.ProcessListings(listings))
	}
	assert.Len(t, n.listings, 1)
	notified, _ = st.IsNotified("1", "bazos_sk")
	assert.True(t, notified)
}

func TestCycleErrorIsolation(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}

	scrapers := map[string]scraper.Scraper{
		"bazos_sk": &MockScraper{source: "bazos_sk", scrapeErr: errors.New("connection refused")},
		"bazos_cz": &MockScraper{source: "bazos_cz", listings: []scraper.Listing{{
			ID: "7", Source: "bazos_cz", Title: "Octavia", URL: "https://auto.bazos.cz/inzerat/7/octavia.php", Price: "N/A",
		}}},
	}

	cfg := &config.Config{
		CheckInterval: time.Minute,
		Searches: []config.SearchConfig{
			{Source: "bazos_sk", Name: "broken", SearchTerm: "fabia", MaxPages: 1},
			{Source: "bazos_cz", Name: "working", SearchTerm: "octavia"},
		},
	}

	b := testBot(cfg, scrapers, st, n, nil)
	b.RunSearchCycle()

	// Exactly one error alert for the broken search
	require.Len(t, n.texts, 1)
	assert.Contains(t, n.texts[0], "bazos_sk")

	// The second search still ran and notified
	require.Len(t, n.listings, 1)
	assert.Equal(t, "7", n.listings[0].ID)
}

func TestCyclePartialPageFailureKeepsCollected(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}

	// Scraper fails but returns candidates collected before the failure
	scrapers := map[string]scraper.Scraper{
		"bazos_sk": &MockScraper{
			source:    "bazos_sk",
			listings:  []scraper.Listing{testListing("1")},
			scrapeErr: errors.New("timeout on page 2"),
		},
	}

	cfg := &config.Config{
		CheckInterval: time.Minute,
		Searches:      []config.SearchConfig{{Source: "bazos_sk", SearchTerm: "fabia"}},
	}

	b := testBot(cfg, scrapers, st, n, nil)
	b.RunSearchCycle()

	assert.Len(t, n.texts, 1)
	// The collected candidate was still processed and notified
	assert.Len(t, n.listings, 1)
}

func TestCycleSkipsUnknownAndMissingSource(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}

	scrapers := map[string]scraper.Scraper{
		"bazos_sk": &MockScraper{source: "bazos_sk", listings: []scraper.Listing{testListing("1")}},
	}

	cfg := &config.Config{
		CheckInterval: time.Minute,
		Searches: []config.SearchConfig{
			{Name: "no source", SearchTerm: "fabia"},
			{Source: "mobile_de", Name: "unregistered", SearchTerm: "fabia"},
			{Source: "bazos_sk", Name: "valid", SearchTerm: "fabia"},
		},
	}

	b := testBot(cfg, scrapers, st, n, nil)
	b.RunSearchCycle()

	// Skipped searches are warnings, not error alerts
	assert.Empty(t, n.texts)
	assert.Len(t, n.listings, 1)
}

func TestCycleTrimsStreams(t *testing.T) {
	st := NewMockStore()
	n := &MockNotifier{}
	pub := NewMockPublisher()

	cfg := &config.Config{
		CheckInterval: time.Minute,
		Searches:      []config.SearchConfig{{Source: "bazos_sk", SearchTerm: "fabia"}},
	}
	scrapers := map[string]scraper.Scraper{
		"bazos_sk": &MockScraper{source: "bazos_sk"},
	}

	b := testBot(cfg, scrapers, st, n, pub)
	b.RunSearchCycle()

	assert.Equal(t, 1, pub.trims)
}
