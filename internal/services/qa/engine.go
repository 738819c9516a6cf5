package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/models"
)

// Engine answers questions about a research project from its stored state
// only. It composes the criteria and every stored ad into the prompt and
// never touches the listing portals: stale stored data yields stale answers,
// which is the intended trade.
type Engine struct {
	generator interfaces.ContentGenerator
	logger    arbor.ILogger
}

// NewEngine creates a Q&A engine over the given content generator.
func NewEngine(generator interfaces.ContentGenerator, logger arbor.ILogger) *Engine {
	return &Engine{
		generator: generator,
		logger:    logger,
	}
}

const answerSystemPrompt = "You are a research assistant for a property hunt. " +
	"Answer the user's question using only the research criteria and the stored property listings provided. " +
	"Reference listings by their title and id. " +
	"If the stored data cannot answer the question, say so plainly instead of guessing."

// Ask answers one question over the project snapshot. The model call runs
// as a journaled step, so a re-driven invocation replays the recorded answer
// instead of paying for a second completion.
func (e *Engine) Ask(ctx context.Context, dctx *durable.Context, project *models.ResearchProject, question string) (string, error) {
	prompt := e.composePrompt(project, question)

	answer, err := durable.RunStep(ctx, dctx, "answer", func(sctx context.Context) (string, error) {
		resp, gerr := e.generator.GenerateContent(sctx, &interfaces.CompletionRequest{
			Messages: []interfaces.Message{
				{Role: "user", Content: prompt},
			},
			SystemInstruction: answerSystemPrompt,
		})
		if gerr != nil {
			return "", gerr
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("project", project.Name).
		Int("ads_in_prompt", len(project.Ads)).
		Msg("Question answered")

	return answer, nil
}

// composePrompt renders the criteria, the stored ads, and the question into
// a single prompt.
func (e *Engine) composePrompt(project *models.ResearchProject, question string) string {
	var b strings.Builder

	b.WriteString("Research criteria:\n")
	b.WriteString(project.Criteria)
	b.WriteString("\n\n")

	if len(project.Ads) == 0 {
		b.WriteString("No property listings have been collected yet.\n")
	} else {
		fmt.Fprintf(&b, "Collected listings (%d):\n\n", len(project.Ads))
		for i := range project.Ads {
			renderAd(&b, &project.Ads[i])
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	return b.String()
}

// renderAd writes one listing as a compact fact block.
func renderAd(b *strings.Builder, ad *models.PropertyAd) {
	fmt.Fprintf(b, "## %s (id %s)\n", ad.Title, ad.ID)
	fmt.Fprintf(b, "- URL: %s\n", ad.URL)
	fmt.Fprintf(b, "- Source: %s\n", ad.Source)
	if ad.Price != nil {
		fmt.Fprintf(b, "- Price: %.0f EUR\n", *ad.Price)
	}
	fmt.Fprintf(b, "- Location: %s\n", ad.Location)
	if ad.SizeSqm != nil {
		fmt.Fprintf(b, "- Size: %.0f sqm\n", *ad.SizeSqm)
	}
	if ad.Rooms != nil {
		fmt.Fprintf(b, "- Rooms: %d\n", *ad.Rooms)
	}
	if ad.Bathrooms != nil {
		fmt.Fprintf(b, "- Bathrooms: %d\n", *ad.Bathrooms)
	}
	if ad.RenovationCondition != "" {
		fmt.Fprintf(b, "- Condition: %s\n", ad.RenovationCondition)
	}
	if len(ad.Features) > 0 {
		fmt.Fprintf(b, "- Features: %s\n", strings.Join(ad.Features, ", "))
	}
	if ad.ListingAge != "" {
		fmt.Fprintf(b, "- Listing age: %s\n", ad.ListingAge)
	}
	fmt.Fprintf(b, "- Status: %s\n", ad.Status)
	if ad.Notes != "" {
		fmt.Fprintf(b, "- Notes: %s\n", ad.Notes)
	}
	if ad.Summary != "" {
		fmt.Fprintf(b, "- Summary: %s\n", ad.Summary)
	}
	b.WriteString("\n")
}
