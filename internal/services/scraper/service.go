package scraper

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
)

// Service turns a listing URL into a structured property record. The
// pipeline is fetch (provider chain, journaled), reduce (pure, re-executed
// on replay), extract (LLM, journaled). Side effects never escape the
// journal: a crash between fetch and extract replays the fetched page from
// the journal instead of touching the portal again.
type Service struct {
	providers []interfaces.FetchProvider
	generator interfaces.ContentGenerator
	reducer   *Reducer
	retry     durable.RetryPolicy
	logger    arbor.ILogger
}

// NewService creates the scraping orchestrator. Providers are tried in
// order; the last one should be the stealth browser.
func NewService(providers []interfaces.FetchProvider, generator interfaces.ContentGenerator, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		providers: providers,
		generator: generator,
		reducer:   NewReducer(config.Fetch.MaxContentSize, logger),
		retry: durable.RetryPolicy{
			MaxAttempts:       config.Research.MaxAttempts,
			InitialBackoff:    config.Research.InitialBackoff,
			MaxBackoff:        config.Research.MaxBackoff,
			BackoffMultiplier: config.Research.BackoffMultiplier,
		},
		logger: logger,
	}
}

// Scrape fetches, reduces, and extracts one listing. The returned ad has no
// ID, status, or scrape timestamp; the caller assigns those through its own
// journaled steps.
func (s *Service) Scrape(ctx context.Context, dctx *durable.Context, rawURL string) (*models.PropertyAd, error) {
	site, err := SiteForURL(rawURL)
	if err != nil {
		return nil, err
	}

	fetched, err := durable.RunStep(ctx, dctx, "fetch", func(sctx context.Context) (*interfaces.FetchResult, error) {
		return s.fetchWithChain(sctx, site, rawURL)
	})
	if err != nil {
		return nil, err
	}

	markdown, err := s.reducer.Reduce(fetched.HTML, rawURL)
	if err != nil {
		return nil, err
	}

	extraction, err := durable.RunStep(ctx, dctx, "extract", func(sctx context.Context) (*listingExtraction, error) {
		return s.extract(sctx, site, markdown)
	})
	if err != nil {
		return nil, err
	}

	return &models.PropertyAd{
		URL:                 rawURL,
		Source:              site.Source,
		Title:               extraction.Title,
		Price:               extraction.Price,
		Location:            extraction.Location,
		SizeSqm:             extraction.SizeSqm,
		Rooms:               extraction.Rooms,
		Bathrooms:           extraction.Bathrooms,
		Description:         extraction.Description,
		Summary:             extraction.Summary,
		RenovationCondition: models.RenovationCondition(extraction.RenovationCondition),
		Features:            extraction.Features,
		ListingAge:          extraction.ListingAge,
	}, nil
}

// fetchWithChain walks the site's provider chain. Each provider gets the
// full bounded retry budget for its transient failures; exhaustion escalates
// to the next provider. A definitive not-found stops the chain. The chain
// returns only terminal or unavailable faults, so the journaled step around
// it never multiplies the retries.
func (s *Service) fetchWithChain(ctx context.Context, site *Site, rawURL string) (*interfaces.FetchResult, error) {
	var lastErr error

	for _, provider := range s.providersFor(site) {
		var result *interfaces.FetchResult
		err := s.retry.Execute(ctx, s.logger, fmt.Sprintf("fetch/%s", provider.Name()), func() error {
			r, ferr := provider.Fetch(ctx, rawURL)
			if ferr != nil {
				return ferr
			}
			result = r
			return nil
		})
		if err == nil {
			s.logger.Info().
				Str("url", rawURL).
				Str("provider", provider.Name()).
				Msg("Listing fetched")
			return result, nil
		}

		if durable.IsKind(err, durable.KindNotFound) || durable.IsKind(err, durable.KindValidation) {
			return nil, err
		}

		s.logger.Warn().
			Err(err).
			Str("url", rawURL).
			Str("provider", provider.Name()).
			Msg("Fetch provider exhausted, escalating to next provider")
		lastErr = err
	}

	if lastErr == nil {
		lastErr = durable.NewFault(durable.KindInternal, "no fetch providers configured")
	}
	return nil, durable.Exhausted(lastErr)
}

// providersFor orders the injected providers by the site's preference.
// Providers the site does not name keep their injected order after the
// preferred ones, so a chain with extra providers still exhausts them all.
func (s *Service) providersFor(site *Site) []interfaces.FetchProvider {
	byName := make(map[string]interfaces.FetchProvider, len(s.providers))
	for _, p := range s.providers {
		byName[p.Name()] = p
	}

	ordered := make([]interfaces.FetchProvider, 0, len(s.providers))
	used := make(map[string]bool, len(s.providers))
	for _, name := range site.Providers {
		if p, ok := byName[name]; ok && !used[name] {
			ordered = append(ordered, p)
			used[name] = true
		}
	}
	for _, p := range s.providers {
		if !used[p.Name()] {
			ordered = append(ordered, p)
			used[p.Name()] = true
		}
	}
	return ordered
}

// extract runs one schema-constrained extraction call. Transient provider
// faults and undecodable responses surface as transient so the enclosing
// journaled step retries them.
func (s *Service) extract(ctx context.Context, site *Site, markdown string) (*listingExtraction, error) {
	resp, err := s.generator.GenerateContent(ctx, &interfaces.CompletionRequest{
		Messages: []interfaces.Message{
			{Role: "user", Content: markdown},
		},
		SystemInstruction: extractionSystemPrompt(site),
		OutputSchema:      listingSchema(),
	})
	if err != nil {
		return nil, err
	}

	extraction, err := parseExtraction(resp.Text)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("site", string(site.Source)).
		Str("title", extraction.Title).
		Str("provider", resp.Provider).
		Msg("Listing extracted")

	return extraction, nil
}
