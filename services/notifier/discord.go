package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peter115342/bazos-alert-bot/internal/scraper"
	"github.com/peter115342/bazos-alert-bot/logger"
	apperr "github.com/peter115342/bazos-alert-bot/pkg/errors"
)

const (
	listingColor = 0xF16400
	textColor    = 0x3498DB
)

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedThumbnail struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string          `json:"title"`
	URL         string          `json:"url,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color"`
	Fields      []embedField    `json:"fields,omitempty"`
	Thumbnail   *embedThumbnail `json:"thumbnail,omitempty"`
	Footer      *embedFooter    `json:"footer,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// DiscordNotifier implements Notifier against a Discord webhook
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	log        *logger.Logger
}

// NewDiscordNotifier creates a Discord webhook notifier
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	log := logger.ForNotifier()
	if webhookURL == "" {
		log.Warn().Msg("Discord webhook URL not set")
	}

	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// NotifyListing delivers a new-listing alert as a Discord embed
func (n *DiscordNotifier) NotifyListing(listing scraper.Listing) error {
	var fields []embedField

	if listing.Price != "" {
		fields = append(fields, embedField{Name: "💰 Price", Value: listing.Price, Inline: true})
	}
	if listing.Year != "" {
		fields = append(fields, embedField{Name: "📅 Year", Value: listing.Year, Inline: true})
	}
	if listing.Mileage != "" {
		fields = append(fields, embedField{Name: "🛣️ Mileage", Value: listing.Mileage, Inline: true})
	}
	if listing.Location != "" {
		fields = append(fields, embedField{Name: "📍 Location", Value: listing.Location, Inline: true})
	}

	e := embed{
		Title:       listing.Title,
		URL:         listing.URL,
		Description: listing.Description,
		Color:       listingColor,
		Fields:      fields,
		Footer:      &embedFooter{Text: "New Listing Alert"},
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if listing.ImageURL != "" {
		e.Thumbnail = &embedThumbnail{URL: listing.ImageURL}
	}

	return n.send(webhookPayload{Embeds: []embed{e}})
}

// NotifyText delivers a plain operator message
func (n *DiscordNotifier) NotifyText(title, message string) error {
	return n.send(webhookPayload{Embeds: []embed{{
		Title:       title,
		Description: message,
		Color:       textColor,
	}}})
}

// send posts a payload to the webhook; 204 is the only success status
func (n *DiscordNotifier) send(payload webhookPayload) error {
	if n.webhookURL == "" {
		return apperr.NewNotification("", "webhook URL not configured", nil)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return apperr.NewNotification("", "encoding webhook payload", err)
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return apperr.NewNotification("", "posting to webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apperr.NewNotification("", fmt.Sprintf("webhook returned status %d", resp.StatusCode), nil)
	}

	n.log.Debug().Msg("Discord notification sent")
	return nil
}
