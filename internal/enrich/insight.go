package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"quotelens/internal/ai"
)

// KeyInfo summarizes a document.
type KeyInfo struct {
	MainTopic   string   `json:"mainTopic"`
	KeyPoints   []string `json:"keyPoints"`
	ActionItems []string `json:"actionItems"`
}

const keyInfoPrompt = `Extract key information as JSON: {
  "mainTopic": string,
  "keyPoints": string[],
  "actionItems": string[]
}`

const validatePrompt = `Verify quote quality on a 1-5 scale, where 5 means:
1. Contains a complete technical thought
2. Properly classified
3. Cleaned effectively
Reply with the number only.`

func (e *Enricher) ExtractKeyInfo(ctx context.Context, text string) (KeyInfo, error) {
	raw, err := e.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: keyInfoPrompt},
		{Role: ai.RoleUser, Content: text},
	}, ai.CompletionOptions{Temperature: classifyTemperature, JSONMode: true})
	if err != nil {
		return KeyInfo{}, fmt.Errorf("extract key info failed: %w", err)
	}

	info := KeyInfo{KeyPoints: []string{}, ActionItems: []string{}}
	if err := json.Unmarshal([]byte(ai.ExtractJSON(raw)), &info); err != nil {
		return KeyInfo{}, ErrInvalidJSON
	}
	return info, nil
}

func (e *Enricher) ExplainRelevance(ctx context.Context, query, text string) (string, error) {
	out, err := e.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: "Explain in 1-2 sentences why this document is relevant to the query."},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Query: \"%s\"\n\nDocument:\n%s", query, text)},
	}, ai.CompletionOptions{Temperature: cleanTemperature})
	if err != nil {
		return "", fmt.Errorf("explain relevance failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ValidateQuote scores a cleaned and classified quote from 1 to 5.
func (e *Enricher) ValidateQuote(ctx context.Context, q Quote) (int, error) {
	out, err := e.llm.Complete(ctx, []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: validatePrompt},
		{Role: ai.RoleUser, Content: fmt.Sprintf("Original: %s\nCleaned: %s\nCategory: %s / %s",
			q.OriginalText, q.CleanedText, q.Classification.Category, q.Classification.Subcategory)},
	}, ai.CompletionOptions{Temperature: 0})
	if err != nil {
		return 0, fmt.Errorf("validate quote failed: %w", err)
	}

	score, err := strconv.Atoi(strings.Trim(strings.TrimSpace(out), "."))
	if err != nil || score < 1 || score > 5 {
		return 0, fmt.Errorf("validate quote failed: unexpected score %q", out)
	}
	return score, nil
}
