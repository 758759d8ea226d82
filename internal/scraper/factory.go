package scraper

import (
	"github.com/peter115342/bazos-alert-bot/logger"
	"github.com/peter115342/bazos-alert-bot/services/cache"
)

// Sources lists the supported source identifiers
var Sources = []string{"bazos_sk", "bazos_cz"}

// NewScrapers creates the registry of scrapers keyed by source name
func NewScrapers(cacheSvc cache.CacheService) map[string]Scraper {
	scrapers := make(map[string]Scraper, len(Sources))

	for _, source := range Sources {
		s, err := NewBazosScraper(source, cacheSvc)
		if err != nil {
			logger.Error("Failed to create scraper for %s: %v", source, err)
			continue
		}
		scrapers[source] = s
	}

	return scrapers
}
