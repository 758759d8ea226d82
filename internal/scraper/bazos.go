package scraper

import (
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/peter115342/bazos-alert-bot/config"
	"github.com/peter115342/bazos-alert-bot/helpers"
	"github.com/peter115342/bazos-alert-bot/logger"
	apperr "github.com/peter115342/bazos-alert-bot/pkg/errors"
	"github.com/peter115342/bazos-alert-bot/services/cache"
)

const (
	// listingsPerPage is the fixed Bazos page size used for pagination offsets
	listingsPerPage = 20

	// maxDescriptionLen bounds the extracted description, in runes
	maxDescriptionLen = 200

	// siblingScanLimit bounds the forward walk past a heading block. Price,
	// location and views always sit adjacent to the heading, but layout
	// spacing varies; an unbounded walk would bleed into the next listing.
	siblingScanLimit = 10

	defaultMaxPages = 3
)

var baseURLs = map[string]string{
	"bazos_sk": "https://auto.bazos.sk",
	"bazos_cz": "https://auto.bazos.cz",
}

var (
	listingLinkRe = regexp.MustCompile(`/inzerat/(\d+)/`)
	datePostedRe  = regexp.MustCompile(`\[(\d{1,2}\.\d{1,2}\.\s*\d{4})\]`)
	postalCodeRe  = regexp.MustCompile(`^(.*?)(\d{3,5}\s?\d{2})$`)
	viewCountRe   = regexp.MustCompile(`(\d+)\s*x`)
	categoryRe    = regexp.MustCompile(`https?://([^.]+)\.bazos\.(sk|cz)`)
)

// BazosScraper scrapes vehicle listings from Bazos.sk and Bazos.cz
type BazosScraper struct {
	source    string
	baseURL   string
	cacheSvc  cache.CacheService
	cacheKey  string
	blockTime time.Duration
	log       *logger.Logger

	// fetchFunc is swappable in tests
	fetchFunc func(url string) (io.Reader, error)
}

// NewBazosScraper creates a scraper for one of the supported Bazos variants
func NewBazosScraper(source string, cacheSvc cache.CacheService) (*BazosScraper, error) {
	baseURL, ok := baseURLs[source]
	if !ok {
		return nil, apperr.NewConfiguration("unknown bazos source: "+source, nil)
	}

	return &BazosScraper{
		source:    source,
		baseURL:   baseURL,
		cacheSvc:  cacheSvc,
		cacheKey:  source + "_rate_limited",
		blockTime: 500 * time.Second,
		log:       logger.ForScraper(source),
		fetchFunc: helpers.FetchWithHeaders,
	}, nil
}

// Source returns the source identifier
func (s *BazosScraper) Source() string {
	return s.source
}

// Scrape fetches result pages sequentially and extracts candidate listings.
// Pagination stops on an empty page, a fetch failure, or the page ceiling.
// Candidates collected before a failure are returned alongside the error.
func (s *BazosScraper) Scrape(search config.SearchConfig) ([]Listing, error) {
	url := search.URL
	if url == "" {
		url = s.buildSearchURL(search)
	}
	if url == "" {
		s.log.Warn().Str("name", search.Name).Msg("No URL or search term provided, skipping search")
		return nil, nil
	}

	maxPages := search.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	var all []Listing

	for pageNum := 0; pageNum < maxPages; pageNum++ {
		pageURL := s.pageURL(url, pageNum)
		if pageNum > 0 && pageURL == url {
			// URL without a query separator cannot be paged
			break
		}

		s.log.Info().
			Int("page", pageNum+1).
			Int("max_pages", maxPages).
			Str("url", pageURL).
			Msg("Scraping page")

		body, err := s.fetch(pageURL)
		if err != nil {
			s.log.Error().Err(err).Int("page", pageNum+1).Msg("Failed to fetch page")
			return all, apperr.NewNetwork(s.source, fmt.Sprintf("fetching page %d", pageNum+1), err)
		}

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			s.log.Error().Err(err).Int("page", pageNum+1).Msg("Failed to parse page")
			return all, apperr.NewParsing(s.source, fmt.Sprintf("parsing page %d", pageNum+1), err)
		}

		listings := s.parseListings(doc)
		if len(listings) == 0 {
			s.log.Info().Int("page", pageNum+1).Msg("No more listings found")
			break
		}

		all = append(all, listings...)
		s.log.Info().Int("page", pageNum+1).Int("count", len(listings)).Msg("Found listings")
	}

	s.log.Info().Int("total", len(all)).Msg("Scrape finished")
	return all, nil
}

// fetch fetches a URL, honoring the rate-limit block cache when configured
func (s *BazosScraper) fetch(url string) (io.Reader, error) {
	if s.cacheSvc != nil {
		if _, err := s.cacheSvc.Get(s.cacheKey); err == nil {
			return nil, apperr.NewRateLimit(s.source, s.blockTime)
		}
	}

	body, err := s.fetchFunc(url)
	if err != nil {
		if s.cacheSvc != nil && strings.Contains(err.Error(), "rate limited") {
			s.cacheSvc.Set(s.cacheKey, []byte("1"), s.blockTime)
		}
		return nil, err
	}

	return body, nil
}

// buildSearchURL constructs a search URL from descriptor parameters.
// An absent search term means there is nothing to scrape.
func (s *BazosScraper) buildSearchURL(search config.SearchConfig) string {
	if search.SearchTerm == "" {
		return ""
	}

	radius := search.Radius
	if radius == "" {
		radius = "25"
	}

	u := s.baseURL + "/?hledat=" + neturl.QueryEscape(search.SearchTerm)
	if search.PriceMin != "" {
		u += "&cenaod=" + search.PriceMin
	}
	if search.PriceMax != "" {
		u += "&cenado=" + search.PriceMax
	}
	if search.Location != "" {
		u += "&hlokalita=" + neturl.QueryEscape(search.Location)
	}
	u += "&humkreis=" + radius
	if search.Order != "" {
		u += "&order=" + search.Order
	}
	u += "&rubriky=auto&kitx=ano"

	return u
}

// pageURL returns the URL for a zero-indexed results page.
// Bazos pagination: page 0 = base URL, page 1 = /20/, page 2 = /40/, with
// the offset segment inserted between path and query string.
func (s *BazosScraper) pageURL(baseURL string, pageNum int) string {
	if pageNum == 0 {
		return baseURL
	}

	offset := pageNum * listingsPerPage

	if idx := strings.Index(baseURL, "/?"); idx >= 0 {
		return fmt.Sprintf("%s/%d/?%s", baseURL[:idx], offset, baseURL[idx+2:])
	}
	return baseURL
}

// parseListings extracts all candidate listings from one results page, in
// document order. A malformed block is skipped, never aborting the page.
func (s *BazosScraper) parseListings(doc *goquery.Document) []Listing {
	var listings []Listing

	headings := doc.Find("div.inzeratynadpis")
	s.log.Debug().Int("count", headings.Length()).Msg("Found listing heading blocks")

	headings.Each(func(_ int, sel *goquery.Selection) {
		listing, err := s.parseListingItem(sel)
		if err != nil {
			s.log.Debug().Err(err).Msg("Skipping listing block")
			return
		}
		listings = append(listings, *listing)
	})

	return listings
}

// parseListingItem extracts a single candidate from a heading block and its
// following siblings. Only a missing link or id discards the block; every
// other field degrades to its default on extraction failure.
func (s *BazosScraper) parseListingItem(sel *goquery.Selection) (*Listing, error) {
	var href string
	sel.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, ok := a.Attr("href")
		if ok && listingLinkRe.MatchString(h) {
			href = h
			return false
		}
		return true
	})
	if href == "" {
		return nil, errors.New("no listing link in heading block")
	}

	url := resolveURL(s.baseURL, href)
	id := extractListingID(url)
	if id == "" {
		return nil, errors.New("no listing id in url: " + url)
	}

	title := "Unknown"
	if t := strings.TrimSpace(sel.Find("h2.nadpis a").First().Text()); t != "" {
		title = t
	}

	var datePosted string
	if m := datePostedRe.FindStringSubmatch(sel.Find("span.velikost10").Text()); m != nil {
		datePosted = strings.TrimSpace(m[1])
	}

	var imageURL string
	if src, ok := sel.Find("img.obrazek").First().Attr("src"); ok && src != "" {
		if !strings.Contains(strings.ToLower(src), "no-image") {
			imageURL = resolveURL(s.baseURL, src)
		}
	}

	var description string
	if desc := sel.Find("div.popis").First(); desc.Length() > 0 {
		description = truncateDescription(strings.Join(strings.Fields(desc.Text()), " "))
	}

	price := "N/A"
	var location string
	var viewCount *int

	cur := sel.Next()
	for i := 0; i < siblingScanLimit && cur.Length() > 0; i++ {
		switch {
		case cur.HasClass("inzeratycena"):
			if t := strings.TrimSpace(cur.Text()); t != "" && t != "N/A" {
				price = t
			}
		case cur.HasClass("inzeratylok"):
			if t := strings.TrimSpace(cur.Text()); t != "" {
				location = normalizeLocation(strings.TrimSpace(strings.SplitN(t, "\n", 2)[0]))
			}
		case cur.HasClass("inzeratyview"):
			if m := viewCountRe.FindStringSubmatch(strings.TrimSpace(cur.Text())); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					viewCount = &n
				}
			}
		}
		cur = cur.Next()
	}

	var category string
	if m := categoryRe.FindStringSubmatch(url); m != nil {
		category = m[1]
	}

	return &Listing{
		ID:          id,
		Source:      s.source,
		Title:       title,
		URL:         url,
		Price:       price,
		Location:    location,
		ImageURL:    imageURL,
		Description: description,
		Category:    category,
		DatePosted:  datePosted,
		ViewCount:   viewCount,
	}, nil
}

// normalizeLocation merges a trailing postal code with the place name,
// e.g. "Bratislava 81106" -> "Bratislava, 81106". The postal code spacing
// is kept verbatim; only the separating comma is added.
func normalizeLocation(loc string) string {
	m := postalCodeRe.FindStringSubmatch(loc)
	if m == nil {
		return loc
	}
	name := strings.TrimRight(strings.TrimSpace(m[1]), ",")
	return name + ", " + strings.TrimSpace(m[2])
}

// truncateDescription caps a description at maxDescriptionLen runes with an
// ellipsis marker
func truncateDescription(desc string) string {
	runes := []rune(desc)
	if len(runes) <= maxDescriptionLen {
		return desc
	}
	return strings.TrimRightFunc(string(runes[:maxDescriptionLen]), unicode.IsSpace) + "..."
}

// extractListingID pulls the numeric id segment out of a detail-page URL,
// e.g. https://auto.bazos.sk/inzerat/184195972/fiat-500.php -> "184195972"
func extractListingID(url string) string {
	if m := listingLinkRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

// resolveURL resolves a possibly relative href against the source base URL
func resolveURL(base, href string) string {
	baseURL, err := neturl.Parse(base)
	if err != nil {
		return href
	}
	ref, err := neturl.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
