package research

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/models"
)

// Handler bodies for the research actor. Each runs with exclusive access to
// its project key; all nondeterminism (ids, timestamps, fetches, model
// calls) goes through journaled steps so a re-driven invocation reproduces
// the original outcome instead of repeating side effects.

// createHandler initializes a project. Creating a key whose criteria is
// already set is a terminal conflict; the first creation wins and the
// criteria never changes afterwards.
func (s *Service) createHandler(criteria string) durable.Handler {
	return func(ctx context.Context, c *durable.Context) ([]byte, error) {
		if strings.TrimSpace(criteria) == "" {
			return nil, durable.NewFault(durable.KindValidation, "criteria must not be empty")
		}
		if c.Project().Exists() {
			return nil, durable.NewFault(durable.KindAlreadyExists, "project %q already exists", c.Key())
		}

		createdAt, err := c.Now(ctx, "created_at")
		if err != nil {
			return nil, err
		}

		project := &models.ResearchProject{
			Name:      c.Key(),
			Criteria:  criteria,
			CreatedAt: createdAt,
		}
		c.SetProject(project)

		return json.Marshal(projectInfo(project))
	}
}

// addAdHandler scrapes one listing URL and appends the resulting ad. The
// host allowlist check runs before any journaled step: an unsupported URL
// fails without a single fetch.
func (s *Service) addAdHandler(url string) durable.Handler {
	return func(ctx context.Context, c *durable.Context) ([]byte, error) {
		if !c.Project().Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", c.Key())
		}

		ad, err := s.scraper.Scrape(ctx, c, url)
		if err != nil {
			return nil, err
		}

		adID, err := c.NewID(ctx, "ad_id", common.AdIDPrefix)
		if err != nil {
			return nil, err
		}
		scrapedAt, err := c.Now(ctx, "scraped_at")
		if err != nil {
			return nil, err
		}

		ad.ID = adID
		ad.Status = models.StatusToReachOut
		ad.ScrapedAt = scrapedAt

		project := c.Project()
		project.Ads = append(project.Ads, *ad)
		c.MarkDirty()

		return json.Marshal(ad)
	}
}

// updateStatusHandler relabels one ad. Status values are labels, not a
// state machine: any value may follow any other.
func (s *Service) updateStatusHandler(adID string, status models.AdStatus) durable.Handler {
	return func(ctx context.Context, c *durable.Context) ([]byte, error) {
		if !models.ValidAdStatus(status) {
			return nil, durable.NewFault(durable.KindValidation, "unknown ad status %q", status)
		}
		if !c.Project().Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", c.Key())
		}

		ad := c.Project().FindAd(adID)
		if ad == nil {
			return nil, durable.NewFault(durable.KindNotFound, "ad %q not found in project %q", adID, c.Key())
		}

		ad.Status = status
		c.MarkDirty()

		return json.Marshal(ad)
	}
}

// updateNotesHandler replaces one ad's free-form notes.
func (s *Service) updateNotesHandler(adID string, notes string) durable.Handler {
	return func(ctx context.Context, c *durable.Context) ([]byte, error) {
		if !c.Project().Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", c.Key())
		}

		ad := c.Project().FindAd(adID)
		if ad == nil {
			return nil, durable.NewFault(durable.KindNotFound, "ad %q not found in project %q", adID, c.Key())
		}

		ad.Notes = notes
		c.MarkDirty()

		return json.Marshal(ad)
	}
}

// askQuestionHandler answers one question over the stored snapshot and
// appends the exchange to the project's Q&A history.
func (s *Service) askQuestionHandler(question string) durable.Handler {
	return func(ctx context.Context, c *durable.Context) ([]byte, error) {
		if strings.TrimSpace(question) == "" {
			return nil, durable.NewFault(durable.KindValidation, "question must not be empty")
		}
		if !c.Project().Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", c.Key())
		}

		answer, err := s.qa.Ask(ctx, c, c.Project(), question)
		if err != nil {
			return nil, err
		}

		qaID, err := c.NewID(ctx, "question_id", common.QuestionIDPrefix)
		if err != nil {
			return nil, err
		}
		askedAt, err := c.Now(ctx, "asked_at")
		if err != nil {
			return nil, err
		}

		entry := models.QuestionAnswer{
			ID:       qaID,
			Question: question,
			Answer:   answer,
			AskedAt:  askedAt,
		}

		project := c.Project()
		project.Questions = append(project.Questions, entry)
		c.MarkDirty()

		return json.Marshal(entry)
	}
}

// ProjectInfo is the criteria view of a project returned by create and
// getCriteria.
type ProjectInfo struct {
	Name          string    `json:"name"`
	Criteria      string    `json:"criteria"`
	CreatedAt     time.Time `json:"created_at"`
	AdCount       int       `json:"ad_count"`
	QuestionCount int       `json:"question_count"`
}

func projectInfo(p *models.ResearchProject) *ProjectInfo {
	return &ProjectInfo{
		Name:          p.Name,
		Criteria:      p.Criteria,
		CreatedAt:     p.CreatedAt,
		AdCount:       len(p.Ads),
		QuestionCount: len(p.Questions),
	}
}
