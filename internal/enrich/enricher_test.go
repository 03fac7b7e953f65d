package enrich

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotelens/internal/ai"
	"quotelens/internal/segment"
)

// testCompleter answers every request through respond and counts calls.
type testCompleter struct {
	respond func(messages []ai.ChatMessage, opts ai.CompletionOptions) (string, error)
	calls   atomic.Int32

	mu   sync.Mutex
	opts []ai.CompletionOptions
}

func (c *testCompleter) Complete(_ context.Context, messages []ai.ChatMessage, opts ai.CompletionOptions) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.opts = append(c.opts, opts)
	c.mu.Unlock()
	return c.respond(messages, opts)
}

func replyWith(out string, err error) *testCompleter {
	return &testCompleter{respond: func([]ai.ChatMessage, ai.CompletionOptions) (string, error) {
		return out, err
	}}
}

func newEnricher(t *testing.T, llm ai.Completer) *Enricher {
	t.Helper()
	e, err := New(llm, WithPoolSize(4))
	require.NoError(t, err)
	t.Cleanup(e.Release)
	return e
}

func quote(text string) Quote {
	return Quote{Record: segment.Record{OriginalText: text, Speaker: "Speaker 1"}}
}

func TestCleanQuoteReturnsModelOutput(t *testing.T) {
	llm := replyWith("  We need better pricing.  ", nil)
	e := newEnricher(t, llm)

	assert.Equal(t, "We need better pricing.", e.CleanQuote(context.Background(), "um we like need better pricing"))
	require.Len(t, llm.opts, 1)
	assert.InDelta(t, 0.3, llm.opts[0].Temperature, 1e-9)
	assert.False(t, llm.opts[0].JSONMode)
}

func TestCleanQuoteRejectsDegenerateOutput(t *testing.T) {
	original := "so basically the onboarding was slow"
	tests := map[string]*testCompleter{
		"refusal":   replyWith("I'm sorry, but I can't help with that request.", nil),
		"too short": replyWith("Slow.", nil),
		"error":     replyWith("", errors.New("timeout")),
	}
	for name, llm := range tests {
		t.Run(name, func(t *testing.T) {
			e := newEnricher(t, llm)
			assert.Equal(t, original, e.CleanQuote(context.Background(), original))
		})
	}
}

func TestCleanQuoteSkipsBlankInput(t *testing.T) {
	llm := replyWith("anything at all here", nil)
	e := newEnricher(t, llm)

	assert.Equal(t, "  ", e.CleanQuote(context.Background(), "  "))
	assert.Equal(t, int32(0), llm.calls.Load())
}

func TestEnrichQuoteCommandShortCircuits(t *testing.T) {
	llm := replyWith(`{"category":"Other","confidence":0.2}`, nil)
	e := newEnricher(t, llm)

	got := e.EnrichQuote(context.Background(), quote("ls -la ./src"))

	assert.Equal(t, int32(0), llm.calls.Load())
	assert.Equal(t, CommandCategory, got.Classification.Category)
	assert.Equal(t, CommandCategory, got.Classification.Subcategory)
	assert.Equal(t, 1.0, got.Classification.Confidence)
	assert.True(t, got.Classification.OK())
	assert.Equal(t, "ls -la ./src", got.CleanedText)
}

func TestEnrichQuoteNonNumericConfidence(t *testing.T) {
	llm := replyWith(`{"category":"Pricing","confidence":"high"}`, nil)
	e := newEnricher(t, llm)

	got := e.EnrichQuote(context.Background(), quote("Honestly, the price feels too high for us."))

	assert.False(t, got.Classification.OK())
	assert.Equal(t, ErrIncompleteClassification.Error(), got.Classification.Error)
}

func TestEnrichQuoteErrors(t *testing.T) {
	prose := "Could you compare this with the old plan?"
	tests := []struct {
		name string
		llm  *testCompleter
		want string
	}{
		{"malformed json", replyWith("category: Pricing", nil), ErrInvalidJSON.Error()},
		{"missing category", replyWith(`{"confidence":0.9}`, nil), ErrIncompleteClassification.Error()},
		{"network", replyWith("", errors.New("connection reset")), "connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnricher(t, tt.llm)
			got := e.EnrichQuote(context.Background(), quote(prose))
			assert.Equal(t, tt.want, got.Classification.Error)
		})
	}
}

func TestEnrichQuoteUsesCleanedTextAndJSONMode(t *testing.T) {
	var prompt string
	llm := &testCompleter{respond: func(messages []ai.ChatMessage, _ ai.CompletionOptions) (string, error) {
		prompt = messages[len(messages)-1].Content
		return `{"category":"Features","subcategory":"comparison","confidence":0.82}`, nil
	}}
	e := newEnricher(t, llm)

	q := quote("uh, how does it, like, compare?")
	q.CleanedText = "How does it compare?"
	got := e.EnrichQuote(context.Background(), q)

	assert.Equal(t, `Analyze: "How does it compare?"`, prompt)
	assert.Equal(t, Classification{Category: "Features", Subcategory: "comparison", Confidence: 0.82}, got.Classification)
	require.Len(t, llm.opts, 1)
	assert.True(t, llm.opts[0].JSONMode)
	assert.InDelta(t, 0.1, llm.opts[0].Temperature, 1e-9)
}

func TestEnhanceQuotesPreservesOrder(t *testing.T) {
	llm := &testCompleter{respond: func(messages []ai.ChatMessage, _ ai.CompletionOptions) (string, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		text := strings.TrimSuffix(strings.TrimPrefix(messages[1].Content, `Clean this quote: "`), `"`)
		return "cleaned: " + text, nil
	}}
	e := newEnricher(t, llm)

	var in []Quote
	for _, s := range []string{"first quote text", "second quote text", "third quote text", "fourth quote text"} {
		in = append(in, quote(s))
	}
	out := e.EnhanceQuotes(context.Background(), in)

	require.Len(t, out, 4)
	for i := range in {
		assert.Equal(t, "cleaned: "+in[i].OriginalText, out[i].CleanedText)
		assert.Equal(t, in[i].OriginalText, out[i].OriginalText)
	}
}

func TestEnhanceQuotesFallsBackToOriginal(t *testing.T) {
	llm := replyWith("I'm sorry, I cannot do that.", nil)
	e := newEnricher(t, llm)

	out := e.EnhanceQuotes(context.Background(), []Quote{quote("Page 1 of 3"), quote("a reasonable remark")})

	assert.Equal(t, "Page 1 of 3", out[0].CleanedText)
	assert.Equal(t, "a reasonable remark", out[1].CleanedText)
	assert.Equal(t, int32(1), llm.calls.Load())
}

func TestParseClassification(t *testing.T) {
	c, err := ParseClassification("```json\n{\"category\":\"Pricing\",\"subcategory\":\"cost concern\",\"confidence\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, "cost concern", c.Subcategory)

	_, err = ParseClassification(`{"category":"Pricing","confidence":null}`)
	assert.ErrorIs(t, err, ErrIncompleteClassification)

	_, err = ParseClassification(`{"category":"","confidence":0.5}`)
	assert.ErrorIs(t, err, ErrIncompleteClassification)

	_, err = ParseClassification(`[1,2]`)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestExtractKeyInfo(t *testing.T) {
	e := newEnricher(t, replyWith(`{"mainTopic":"Pricing","keyPoints":["too high"],"actionItems":[]}`, nil))

	info, err := e.ExtractKeyInfo(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Pricing", info.MainTopic)
	assert.Equal(t, []string{"too high"}, info.KeyPoints)
	assert.Empty(t, info.ActionItems)
}

func TestValidateQuote(t *testing.T) {
	e := newEnricher(t, replyWith("4", nil))
	score, err := e.ValidateQuote(context.Background(), quote("fine"))
	require.NoError(t, err)
	assert.Equal(t, 4, score)

	e = newEnricher(t, replyWith("great", nil))
	_, err = e.ValidateQuote(context.Background(), quote("fine"))
	assert.Error(t, err)
}

func TestExplainRelevance(t *testing.T) {
	e := newEnricher(t, replyWith(" It discusses pricing. ", nil))
	out, err := e.ExplainRelevance(context.Background(), "pricing", "doc")
	require.NoError(t, err)
	assert.Equal(t, "It discusses pricing.", out)
}
