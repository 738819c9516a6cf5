package research

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
	"github.com/ternarybob/domus/internal/services/qa"
	"github.com/ternarybob/domus/internal/services/scraper"
	badgerstore "github.com/ternarybob/domus/internal/storage/badger"
)

type stubProvider struct {
	fails []error
	calls int
	mu    sync.Mutex
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(ctx context.Context, url string) (*interfaces.FetchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	p.calls++
	if idx < len(p.fails) && p.fails[idx] != nil {
		return nil, p.fails[idx]
	}
	return &interfaces.FetchResult{
		URL:        url,
		HTML:       "<html><body><main><h1>Bilocale Navigli</h1><p>240.000 euro</p></main></body></html>",
		StatusCode: 200,
		Provider:   "stub",
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubGenerator struct {
	text  string
	fails []error
	calls int
	mu    sync.Mutex
}

func (g *stubGenerator) GenerateContent(ctx context.Context, request *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.calls
	g.calls++
	if idx < len(g.fails) && g.fails[idx] != nil {
		return nil, g.fails[idx]
	}
	return &interfaces.CompletionResponse{Text: g.text, Provider: "stub", Model: "stub"}, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

const extractionJSON = `{"title":"Bilocale Navigli","price":240000,"location":"Navigli, Milano","size_sqm":52,"rooms":2,"bathrooms":1,"description":"Luminoso bilocale.","summary":"52 sqm flat near the canals.","renovation_condition":"minor-work-needed","features":["balcone"]}`

// actorFixture wires a full research service over in-memory storage with
// scripted fetch and model stubs.
type actorFixture struct {
	service   *Service
	provider  *stubProvider
	extractor *stubGenerator
	answerer  *stubGenerator
}

func newFixture(t *testing.T) *actorFixture {
	t.Helper()
	return newFixtureWith(t, &stubProvider{}, &stubGenerator{text: extractionJSON})
}

func newFixtureWith(t *testing.T, provider *stubProvider, extractor *stubGenerator) *actorFixture {
	t.Helper()

	manager, err := badgerstore.NewInMemoryManager(common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	cfg := common.NewDefaultConfig()
	cfg.Research.MaxAttempts = 3
	cfg.Research.InitialBackoff = time.Millisecond
	cfg.Research.MaxBackoff = 5 * time.Millisecond
	cfg.Research.BackoffMultiplier = 2.0

	logger := common.GetLogger()
	runtime := durable.NewRuntime(
		manager.JournalStorage(),
		manager.ProjectStorage(),
		&durable.RetryPolicy{
			MaxAttempts:       cfg.Research.MaxAttempts,
			InitialBackoff:    cfg.Research.InitialBackoff,
			MaxBackoff:        cfg.Research.MaxBackoff,
			BackoffMultiplier: cfg.Research.BackoffMultiplier,
		},
		logger,
	)

	answerer := &stubGenerator{text: "The Navigli flat fits your budget."}
	scraperSvc := scraper.NewService([]interfaces.FetchProvider{provider}, extractor, cfg, logger)
	qaEngine := qa.NewEngine(answerer, logger)

	return &actorFixture{
		service:   NewService(runtime, scraperSvc, qaEngine, logger),
		provider:  provider,
		extractor: extractor,
		answerer:  answerer,
	}
}

const listingURL = "https://www.immobiliare.it/annunci/12345/"

func TestCreateAndGetCriteria(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "2 rooms near Navigli, max 300k")
	require.NoError(t, err)
	assert.Equal(t, "milan-flat", info.Name)
	assert.Equal(t, "2 rooms near Navigli, max 300k", info.Criteria)
	assert.False(t, info.CreatedAt.IsZero())
	assert.Equal(t, 0, info.AdCount)

	got, err := f.service.GetCriteria(ctx, "milan-flat")
	require.NoError(t, err)
	assert.Equal(t, info.Criteria, got.Criteria)
	assert.True(t, info.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateEmptyCriteriaRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), common.NewInvocationID(), "milan-flat", "   ")
	assert.True(t, durable.IsKind(err, durable.KindValidation))
}

func TestCreateDuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria one")
	require.NoError(t, err)

	// A new invocation against the same key is a conflict and must not
	// overwrite the original criteria.
	_, err = f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria two")
	assert.True(t, durable.IsKind(err, durable.KindAlreadyExists))

	got, err := f.service.GetCriteria(ctx, "milan-flat")
	require.NoError(t, err)
	assert.Equal(t, "criteria one", got.Criteria)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
}

func TestCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	invID := common.NewInvocationID()

	first, err := f.service.Create(ctx, invID, "milan-flat", "criteria")
	require.NoError(t, err)

	// Re-driving the same invocation replays the recorded outcome instead
	// of conflicting with itself.
	second, err := f.service.Create(ctx, invID, "milan-flat", "criteria")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestGetCriteriaUnknownProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetCriteria(context.Background(), "nope")
	assert.True(t, durable.IsKind(err, durable.KindNotFound))
}

func TestAddAdAssignsDistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	first, err := f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.NoError(t, err)
	second, err := f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", "https://www.idealista.it/immobile/9/")
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StatusToReachOut, first.Status)
	assert.Equal(t, models.StatusToReachOut, second.Status)
	assert.False(t, first.ScrapedAt.IsZero())

	ads, err := f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	require.Len(t, ads, 2)
	assert.Equal(t, first.ID, ads[0].ID)
	assert.Equal(t, second.ID, ads[1].ID)
}

func TestAddAdUnknownProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.AddAd(context.Background(), common.NewInvocationID(), "nope", listingURL)
	assert.True(t, durable.IsKind(err, durable.KindNotFound))
	assert.Equal(t, 0, f.provider.callCount())
}

func TestAddAdFailureLeavesProjectUnchanged(t *testing.T) {
	provider := &stubProvider{fails: []error{
		durable.NewFault(durable.KindNotFound, "listing not found (status 404)"),
	}}
	f := newFixtureWith(t, provider, &stubGenerator{text: extractionJSON})
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	_, err = f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.True(t, durable.IsKind(err, durable.KindNotFound))

	ads, err := f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	assert.Empty(t, ads, "a failed addAd must not leave a partial ad behind")
}

func TestAddAdResumesAfterUnavailable(t *testing.T) {
	transient := durable.NewFault(durable.KindTransient, "model overloaded")
	extractor := &stubGenerator{text: extractionJSON, fails: []error{transient, transient, transient}}
	f := newFixtureWith(t, &stubProvider{}, extractor)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	invID := common.NewInvocationID()

	// Extraction exhausts its retry budget; the fetch is already journaled
	// and the invocation stays open.
	_, err = f.service.AddAd(ctx, invID, "milan-flat", listingURL)
	require.True(t, durable.IsKind(err, durable.KindUnavailable))
	assert.Equal(t, 1, f.provider.callCount())

	ads, err := f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	assert.Empty(t, ads)

	// Re-driving the same invocation resumes past the journaled fetch and
	// commits exactly one ad.
	ad, err := f.service.AddAd(ctx, invID, "milan-flat", listingURL)
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.callCount(), "the portal must not be fetched again on replay")
	assert.Equal(t, "Bilocale Navigli", ad.Title)

	ads, err = f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, ad.ID, ads[0].ID)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)
	ad, err := f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.NoError(t, err)

	updated, err := f.service.UpdateStatus(ctx, common.NewInvocationID(), "milan-flat", ad.ID, models.StatusVisitScheduled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVisitScheduled, updated.Status)

	// Only the status changed.
	assert.Equal(t, ad.Title, updated.Title)
	assert.Equal(t, ad.Notes, updated.Notes)

	// Labels are not a state machine: any value may follow any other.
	updated, err = f.service.UpdateStatus(ctx, common.NewInvocationID(), "milan-flat", ad.ID, models.StatusToReachOut)
	require.NoError(t, err)
	assert.Equal(t, models.StatusToReachOut, updated.Status)
}

func TestUpdateStatusRejectsUnknownLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)
	ad, err := f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, common.NewInvocationID(), "milan-flat", ad.ID, models.AdStatus("ghosted"))
	assert.True(t, durable.IsKind(err, durable.KindValidation))

	ads, err := f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, models.StatusToReachOut, ads[0].Status)
}

func TestUpdateStatusUnknownAd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(ctx, common.NewInvocationID(), "milan-flat", "ad_missing", models.StatusRejected)
	assert.True(t, durable.IsKind(err, durable.KindNotFound))
}

func TestUpdateNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)
	ad, err := f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.NoError(t, err)

	updated, err := f.service.UpdateNotes(ctx, common.NewInvocationID(), "milan-flat", ad.ID, "agent answered, visit friday")
	require.NoError(t, err)
	assert.Equal(t, "agent answered, visit friday", updated.Notes)
	assert.Equal(t, ad.Status, updated.Status)

	// Notes replace, not append.
	updated, err = f.service.UpdateNotes(ctx, common.NewInvocationID(), "milan-flat", ad.ID, "visit cancelled")
	require.NoError(t, err)
	assert.Equal(t, "visit cancelled", updated.Notes)
}

func TestAskQuestionOrderingAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)
	_, err = f.service.AddAd(ctx, common.NewInvocationID(), "milan-flat", listingURL)
	require.NoError(t, err)

	fetchesBefore := f.provider.callCount()

	first, err := f.service.AskQuestion(ctx, common.NewInvocationID(), "milan-flat", "Which listing is cheapest?")
	require.NoError(t, err)
	assert.Equal(t, "The Navigli flat fits your budget.", first.Answer)
	assert.False(t, first.AskedAt.IsZero())

	second, err := f.service.AskQuestion(ctx, common.NewInvocationID(), "milan-flat", "Any needing major work?")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	questions, err := f.service.GetQuestions(ctx, "milan-flat")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "Which listing is cheapest?", questions[0].Question)
	assert.Equal(t, "Any needing major work?", questions[1].Question)

	// Answers come from stored state only.
	assert.Equal(t, fetchesBefore, f.provider.callCount(), "asking a question must never fetch a portal")
	assert.Equal(t, 2, f.answerer.callCount())
}

func TestAskQuestionEmptyRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	_, err = f.service.AskQuestion(ctx, common.NewInvocationID(), "milan-flat", "  ")
	assert.True(t, durable.IsKind(err, durable.KindValidation))
	assert.Equal(t, 0, f.answerer.callCount())
}

func TestQueriesOnEmptyProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, common.NewInvocationID(), "milan-flat", "criteria")
	require.NoError(t, err)

	ads, err := f.service.GetAds(ctx, "milan-flat")
	require.NoError(t, err)
	assert.NotNil(t, ads)
	assert.Empty(t, ads)

	questions, err := f.service.GetQuestions(ctx, "milan-flat")
	require.NoError(t, err)
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}
