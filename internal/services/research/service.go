package research

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/models"
	"github.com/ternarybob/domus/internal/services/qa"
	"github.com/ternarybob/domus/internal/services/scraper"
)

// Service is the typed API over the research actor. Mutations run through
// the durable runtime under the project key's writer lock; reads observe
// the latest committed snapshot under the shared lock.
type Service struct {
	runtime *durable.Runtime
	scraper *scraper.Service
	qa      *qa.Engine
	logger  arbor.ILogger
}

// NewService wires the research actor over its runtime and collaborators.
func NewService(runtime *durable.Runtime, scraperSvc *scraper.Service, qaEngine *qa.Engine, logger arbor.ILogger) *Service {
	return &Service{
		runtime: runtime,
		scraper: scraperSvc,
		qa:      qaEngine,
		logger:  logger,
	}
}

// invoke runs one mutating operation and decodes its JSON result.
func invoke[T any](ctx context.Context, s *Service, invocationID, key, operation string, handler durable.Handler) (*T, error) {
	raw, err := s.runtime.Invoke(ctx, durable.Invocation{
		ID:        invocationID,
		Key:       key,
		Operation: operation,
	}, handler)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, durable.WrapFault(durable.KindInternal, err, "result decode failed for %s", operation)
	}
	return &out, nil
}

// Create initializes a research project with immutable criteria.
func (s *Service) Create(ctx context.Context, invocationID, name, criteria string) (*ProjectInfo, error) {
	return invoke[ProjectInfo](ctx, s, invocationID, name, "create", s.createHandler(criteria))
}

// GetCriteria returns the criteria view of an existing project.
func (s *Service) GetCriteria(ctx context.Context, name string) (*ProjectInfo, error) {
	raw, err := s.runtime.Query(ctx, name, func(project *models.ResearchProject) ([]byte, error) {
		if !project.Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", name)
		}
		return json.Marshal(projectInfo(project))
	})
	if err != nil {
		return nil, err
	}
	var info ProjectInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, durable.WrapFault(durable.KindInternal, err, "criteria decode failed")
	}
	return &info, nil
}

// AddAd scrapes a listing URL and appends the structured ad to the project.
func (s *Service) AddAd(ctx context.Context, invocationID, name, url string) (*models.PropertyAd, error) {
	return invoke[models.PropertyAd](ctx, s, invocationID, name, "addAd", s.addAdHandler(url))
}

// GetAds returns the project's ads in insertion order.
func (s *Service) GetAds(ctx context.Context, name string) ([]models.PropertyAd, error) {
	raw, err := s.runtime.Query(ctx, name, func(project *models.ResearchProject) ([]byte, error) {
		if !project.Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", name)
		}
		ads := project.Ads
		if ads == nil {
			ads = []models.PropertyAd{}
		}
		return json.Marshal(ads)
	})
	if err != nil {
		return nil, err
	}
	var ads []models.PropertyAd
	if err := json.Unmarshal(raw, &ads); err != nil {
		return nil, durable.WrapFault(durable.KindInternal, err, "ads decode failed")
	}
	return ads, nil
}

// UpdateStatus relabels one ad's pipeline status.
func (s *Service) UpdateStatus(ctx context.Context, invocationID, name, adID string, status models.AdStatus) (*models.PropertyAd, error) {
	return invoke[models.PropertyAd](ctx, s, invocationID, name, "updateStatus", s.updateStatusHandler(adID, status))
}

// UpdateNotes replaces one ad's free-form notes.
func (s *Service) UpdateNotes(ctx context.Context, invocationID, name, adID, notes string) (*models.PropertyAd, error) {
	return invoke[models.PropertyAd](ctx, s, invocationID, name, "updateNotes", s.updateNotesHandler(adID, notes))
}

// AskQuestion answers a question from stored state and appends the exchange.
func (s *Service) AskQuestion(ctx context.Context, invocationID, name, question string) (*models.QuestionAnswer, error) {
	return invoke[models.QuestionAnswer](ctx, s, invocationID, name, "askQuestion", s.askQuestionHandler(question))
}

// GetQuestions returns the project's Q&A history in insertion order.
func (s *Service) GetQuestions(ctx context.Context, name string) ([]models.QuestionAnswer, error) {
	raw, err := s.runtime.Query(ctx, name, func(project *models.ResearchProject) ([]byte, error) {
		if !project.Exists() {
			return nil, durable.NewFault(durable.KindNotFound, "project %q does not exist", name)
		}
		questions := project.Questions
		if questions == nil {
			questions = []models.QuestionAnswer{}
		}
		return json.Marshal(questions)
	})
	if err != nil {
		return nil, err
	}
	var questions []models.QuestionAnswer
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, durable.WrapFault(durable.KindInternal, err, "questions decode failed")
	}
	return questions, nil
}
