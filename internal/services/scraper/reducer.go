package scraper

import (
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/durable"
)

// Reducer distills raw listing HTML into compact markdown suitable for an
// extraction prompt. Reduction is pure: same HTML in, same markdown out, no
// network or storage access, so it runs outside the journal and is simply
// re-executed on replay.
type Reducer struct {
	maxContentSize int
	logger         arbor.ILogger
}

// NewReducer creates a content reducer. maxContentSize bounds the returned
// markdown in bytes; zero or negative means 100KB.
func NewReducer(maxContentSize int, logger arbor.ILogger) *Reducer {
	if maxContentSize <= 0 {
		maxContentSize = 100 * 1024
	}
	return &Reducer{
		maxContentSize: maxContentSize,
		logger:         logger,
	}
}

// Selectors for chrome that never carries listing data.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "footer", "aside", "form",
	"[class*='cookie']", "[id*='cookie']",
	"[class*='consent']", "[id*='consent']",
	"[class*='gdpr']",
	"[role='navigation']", "[role='banner']", "[role='dialog']",
	"[class*='advert']", "[class*='banner']",
}

// Reduce strips page chrome, selects the main content area, and converts the
// remainder to markdown.
func (r *Reducer) Reduce(html string, sourceURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", durable.WrapFault(durable.KindInternal, err, "failed to parse listing HTML")
	}

	for _, selector := range strippedSelectors {
		doc.Find(selector).Remove()
	}

	content := doc.Find("main, article, .content, .main-content, #content, #main").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	contentHTML, err := content.Html()
	if err != nil || strings.TrimSpace(contentHTML) == "" {
		contentHTML = html
	}

	mdConverter := md.NewConverter(sourceURL, true, nil)
	markdown, err := mdConverter.ConvertString(contentHTML)
	if err != nil {
		r.logger.Warn().Err(err).Str("source_url", sourceURL).Msg("HTML to markdown conversion failed, using text fallback")
		markdown = strings.TrimSpace(content.Text())
	}

	markdown = cleanMarkdown(markdown)

	if len(markdown) > r.maxContentSize {
		cut := r.maxContentSize
		// Back off to a rune boundary so the cut never leaves a split
		// multi-byte character at the end.
		for cut > 0 && !utf8.RuneStart(markdown[cut]) {
			cut--
		}
		markdown = markdown[:cut]
	}

	return markdown, nil
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)
var excessSpaces = regexp.MustCompile(`[ \t]{2,}`)

func cleanMarkdown(markdown string) string {
	markdown = excessSpaces.ReplaceAllString(markdown, " ")
	markdown = excessNewlines.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}
