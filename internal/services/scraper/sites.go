package scraper

import (
	"net/url"
	"strings"

	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/models"
)

// Site describes one supported listing portal: the hosts it serves, the
// fetch providers it prefers, and the extraction hints the model needs for
// its page layout.
type Site struct {
	Source models.Source
	Hosts  []string

	// Providers is the preferred fetch-provider order for this portal, by
	// provider name. Injected providers not named here are still tried, in
	// their injected order, after the preferred ones.
	Providers []string

	// PromptHint is appended to the extraction system prompt. Layout and
	// terminology differ between the portals.
	PromptHint string
}

var supportedSites = []Site{
	{
		Source:    models.SourceImmobiliare,
		Hosts:     []string{"immobiliare.it", "www.immobiliare.it"},
		Providers: []string{"http", "browser"},
		PromptHint: "The page is a property listing from immobiliare.it, an Italian real estate portal. " +
			"Prices are in euros. Surface area appears as \"superficie\" in square meters (m²). " +
			"Room count appears as \"locali\", bathrooms as \"bagni\". " +
			"Condition terms: \"nuovo\" or \"ristrutturato\" mean new or recently renovated; " +
			"\"buono stato\" or \"abitabile\" mean minor work needed; " +
			"\"da ristrutturare\" means a major renovation is needed.",
	},
	{
		Source: models.SourceIdealista,
		Hosts:  []string{"idealista.it", "www.idealista.it"},
		// idealista blocks plain HTTP clients aggressively, so the browser
		// goes first and the cheap fetch is the fallback.
		Providers: []string{"browser", "http"},
		PromptHint: "The page is a property listing from idealista.it, an Italian real estate portal. " +
			"Prices are in euros. Surface area appears in square meters (m²). " +
			"Room count appears as \"locali\" or \"stanze\", bathrooms as \"bagni\". " +
			"Condition terms: \"nuova costruzione\" means new; \"buono stato\" means minor work needed; " +
			"\"da ristrutturare\" means a major renovation is needed.",
	},
}

// SiteForURL resolves a listing URL against the portal allowlist. Unsupported
// hosts and malformed URLs are validation faults; nothing is fetched for them.
func SiteForURL(rawURL string) (*Site, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, durable.WrapFault(durable.KindValidation, err, "malformed listing url %q", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, durable.NewFault(durable.KindValidation, "listing url %q must use http or https", rawURL)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, durable.NewFault(durable.KindValidation, "listing url %q has no host", rawURL)
	}

	for i := range supportedSites {
		for _, h := range supportedSites[i].Hosts {
			if host == h {
				return &supportedSites[i], nil
			}
		}
	}

	return nil, durable.NewFault(durable.KindValidation, "unsupported listing host %q", host)
}
