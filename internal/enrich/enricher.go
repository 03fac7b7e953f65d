// Package enrich cleans and classifies quotes with the completion service.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"quotelens/internal/ai"
	"quotelens/internal/segment"
)

const (
	minCleanedLength = 10

	cleanTemperature    = 0.3
	classifyTemperature = 0.1

	CommandCategory = "Command"
)

const cleanSystemPrompt = "You are a quote cleaning assistant. Remove filler words, fix grammar, and clarify meaning while preserving the original intent."

const classifySystemPrompt = `Return JSON ONLY with these fields:
{
  "category": string,
  "subcategory": string,
  "confidence": number
}
Prefer this taxonomy when it fits:
Pricing: ["cost concern", "value question"]
Features: ["comparison", "request"]`

// bare command or path tokens, e.g. "ls -la ./src"
var commandPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-./\\]+(?:\s+[a-zA-Z0-9_\-./\\]+)*$`)

// Quote is a segmented record moving through enrichment.
type Quote struct {
	segment.Record
	CleanedText    string
	Classification Classification
}

type Enricher struct {
	llm    ai.Completer
	pool   *ants.Pool
	logger *slog.Logger
}

type Option func(*Enricher) error

// WithPoolSize bounds how many quotes are cleaned or classified at once.
func WithPoolSize(size int) Option {
	return func(e *Enricher) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if e.pool != nil {
			e.pool.Release()
		}
		e.pool = pool
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

func New(llm ai.Completer, opts ...Option) (*Enricher, error) {
	if llm == nil {
		return nil, fmt.Errorf("enricher requires a completer")
	}
	pool, err := ants.NewPool(8)
	if err != nil {
		return nil, fmt.Errorf("create enrich pool failed: %w", err)
	}

	e := &Enricher{
		llm:    llm,
		pool:   pool,
		logger: slog.Default().With("component", "enricher"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}
	return e, nil
}

func (e *Enricher) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// CleanQuote asks the model to tidy text. Refusals, output shorter than ten
// characters and failed calls all yield text unchanged.
func (e *Enricher) CleanQuote(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out, err := e.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: cleanSystemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Clean this quote: \"%s\"", text)},
	}, ai.CompletionOptions{Temperature: cleanTemperature})
	if err != nil {
		e.logger.Warn("clean quote failed", "err", err)
		return text
	}

	out = strings.TrimSpace(out)
	if degenerate(out) {
		return text
	}
	return out
}

// EnrichQuote classifies q. Command-like text is labelled without a model
// call; every other failure ends up in Classification.Error.
func (e *Enricher) EnrichQuote(ctx context.Context, q Quote) Quote {
	if commandPattern.MatchString(strings.TrimSpace(q.OriginalText)) {
		q.CleanedText = q.OriginalText
		q.Classification = Classification{
			Category:    CommandCategory,
			Subcategory: CommandCategory,
			Confidence:  1.0,
		}
		return q
	}

	input := q.CleanedText
	if input == "" {
		input = q.OriginalText
	}

	raw, err := e.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: classifySystemPrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Analyze: \"%s\"", input)},
	}, ai.CompletionOptions{Temperature: classifyTemperature, JSONMode: true})
	if err != nil {
		q.Classification = Classification{Error: err.Error()}
		return q
	}

	c, err := ParseClassification(raw)
	if err != nil {
		e.logger.Debug("classification rejected", "err", err, "raw", raw)
		q.Classification = Classification{Error: err.Error()}
		return q
	}
	q.Classification = c
	return q
}

// EnhanceQuotes strips document headers from each quote and cleans it.
// Quotes run concurrently; the result keeps input order.
func (e *Enricher) EnhanceQuotes(ctx context.Context, quotes []Quote) []Quote {
	out := make([]Quote, len(quotes))
	e.forEach(len(quotes), func(i int) {
		q := quotes[i]
		cleaned := e.CleanQuote(ctx, segment.StripHeadersAndFooters(q.OriginalText))
		if degenerate(cleaned) {
			cleaned = q.OriginalText
		}
		q.CleanedText = cleaned
		out[i] = q
	})
	return out
}

// EnrichQuotes runs EnrichQuote over every quote concurrently, keeping input order.
func (e *Enricher) EnrichQuotes(ctx context.Context, quotes []Quote) []Quote {
	out := make([]Quote, len(quotes))
	e.forEach(len(quotes), func(i int) {
		out[i] = e.EnrichQuote(ctx, quotes[i])
	})
	return out
}

func (e *Enricher) forEach(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		task := func() {
			defer wg.Done()
			fn(i)
		}
		if err := e.pool.Submit(task); err != nil {
			e.logger.Warn("enrich pool rejected task, running inline", "err", err)
			task()
		}
	}
	wg.Wait()
}

func degenerate(text string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minCleanedLength {
		return true
	}
	return strings.Contains(strings.ToLower(text), "i'm sorry")
}
