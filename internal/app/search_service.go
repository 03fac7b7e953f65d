package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"quotelens/internal/ai"
	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
)

const (
	answerTemperature  = 0.2
	summaryTemperature = 0.3
	summaryMaxTokens   = 300
	minSummaryLength   = 20

	SummaryFallback      = "Found relevant documents but couldn't summarize."
	SummaryErrorFallback = "I couldn't generate a summary due to an error."
	NoResultsAnswer      = "No relevant documents found."
)

var (
	ErrEmptyQuery        = errors.New("query must be a non-empty string")
	ErrNoDocumentContent = errors.New("no document content found for the provided conversation ID")
	errInvalidAnswer     = errors.New("invalid answer from AI")
)

const answerSystemPrompt = `You are a document analysis assistant. Answer the user's question using only the document content below.
Return JSON ONLY in this shape:
{
  "answer": string,
  "relevantSections": [{"text": string, "relevanceScore": number between 0 and 1}]
}
If the document does not contain the answer, say so in "answer".

Document content:
%s`

const summarySystemPrompt = `You summarize search results for the user.
Rules:
- Answer only from the provided context.
- Write one or two short paragraphs.
- Never invent facts. If the context does not answer the question, say "I don't know".`

// tsquery operators and quoting characters are never part of a search term.
var tsQueryReplacer = strings.NewReplacer(
	"&", "", "|", "", "!", "", "(", "", ")", "", ":", "", "*", "", "<", "", ">", "", "'", "", `\`, "",
)

type RelevantSection struct {
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
}

type Answer struct {
	Answer           string            `json:"answer"`
	RelevantSections []RelevantSection `json:"relevant_sections"`
	ConversationID   string            `json:"conversation_id"`
}

type Summary struct {
	Answer  string              `json:"answer"`
	Sources []model.RankedQuote `json:"sources"`
}

type SearchService struct {
	quotes        QuoteStore
	conversations *ConversationService
	llm           ai.Completer
	limit         int
	maxHistory    int
	logger        *slog.Logger
}

func NewSearchService(quotes QuoteStore, conversations *ConversationService, llm ai.Completer, limit, maxHistory int) *SearchService {
	if limit <= 0 {
		limit = 10
	}
	return &SearchService{
		quotes:        quotes,
		conversations: conversations,
		llm:           llm,
		limit:         limit,
		maxHistory:    maxHistory,
		logger:        logx.Component("search"),
	}
}

// BuildSearchQuery lower-cases and tokenizes the query, drops single-character
// tokens and joins the rest with AND. An empty result means nothing is searchable.
func BuildSearchQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		term := tsQueryReplacer.Replace(f)
		if utf8.RuneCountInString(term) <= 1 {
			continue
		}
		terms = append(terms, term)
	}
	return strings.Join(terms, " & ")
}

// SearchQuotes runs ranked keyword search across all stored quotes.
func (s *SearchService) SearchQuotes(ctx context.Context, query string) ([]model.RankedQuote, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	tsQuery := BuildSearchQuery(query)
	if tsQuery == "" {
		return []model.RankedQuote{}, nil
	}
	hits, err := s.quotes.SearchRanked(ctx, tsQuery, s.limit)
	if err != nil {
		return nil, fmt.Errorf("search quotes failed: %w", err)
	}
	return hits, nil
}

// SearchInFile answers a question over the documents of one conversation and
// records the turn. Failures are recorded as an error answer and returned.
func (s *SearchService) SearchInFile(ctx context.Context, query, conversationID string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	conversation, err := s.conversations.GetOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	answer, err := s.answer(ctx, query, conversation)
	if err != nil {
		s.recordFailure(ctx, conversation.ID, query, err)
		return nil, err
	}

	if _, err := s.conversations.AppendTurn(ctx, conversation.ID, query, answer.Answer); err != nil {
		s.recordFailure(ctx, conversation.ID, query, err)
		return nil, err
	}
	answer.ConversationID = conversation.ID
	return answer, nil
}

func (s *SearchService) answer(ctx context.Context, query string, conversation *model.Conversation) (*Answer, error) {
	quotes, err := s.quotes.ListByConversationID(ctx, conversation.ID)
	if err != nil {
		return nil, fmt.Errorf("load quotes failed: %w", err)
	}
	if len(quotes) == 0 {
		return nil, ErrNoDocumentContent
	}

	messages := buildAnswerMessages(DocumentContext(quotes), trimMessages(conversation.Messages, s.maxHistory), query)
	raw, err := s.llm.Complete(ctx, messages, ai.CompletionOptions{
		Temperature: answerTemperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}
	return parseAnswer(raw)
}

func (s *SearchService) recordFailure(ctx context.Context, conversationID, query string, cause error) {
	text := "Sorry, I couldn't answer that: " + cause.Error()
	if _, err := s.conversations.AppendTurn(ctx, conversationID, query, text); err != nil {
		s.logger.Error("record failed answer failed", "conversation_id", conversationID, "err", err, "cause", cause)
	}
}

// DocumentContext joins quote texts in position order with blank lines.
func DocumentContext(quotes []model.Quote) string {
	ordered := make([]model.Quote, len(quotes))
	copy(ordered, quotes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	parts := make([]string, 0, len(ordered))
	for i := range ordered {
		parts = append(parts, ordered[i].Text())
	}
	return strings.Join(parts, "\n\n")
}

func buildAnswerMessages(documentContext string, history []model.Message, query string) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    ai.RoleSystem,
		Content: fmt.Sprintf(answerSystemPrompt, documentContext),
	})
	messages = appendHistory(messages, history)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: query})
	return messages
}

func appendHistory(messages []ai.ChatMessage, history []model.Message) []ai.ChatMessage {
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = ai.RoleUser
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: m.Content})
	}
	return messages
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

type answerPayload struct {
	Answer           *string `json:"answer"`
	RelevantSections []struct {
		Text           string  `json:"text"`
		RelevanceScore float64 `json:"relevanceScore"`
	} `json:"relevantSections"`
}

func parseAnswer(raw string) (*Answer, error) {
	var payload answerPayload
	if err := json.Unmarshal([]byte(ai.ExtractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidAnswer, err)
	}
	if payload.Answer == nil || strings.TrimSpace(*payload.Answer) == "" {
		return nil, fmt.Errorf("%w: missing answer", errInvalidAnswer)
	}

	answer := &Answer{
		Answer:           strings.TrimSpace(*payload.Answer),
		RelevantSections: make([]RelevantSection, 0, len(payload.RelevantSections)),
	}
	for _, section := range payload.RelevantSections {
		if strings.TrimSpace(section.Text) == "" {
			continue
		}
		answer.RelevantSections = append(answer.RelevantSections, RelevantSection{
			Text:           section.Text,
			RelevanceScore: clamp01(section.RelevanceScore),
		})
	}
	return answer, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// GenerateSummaryAnswer writes a short answer from the given context. It never
// fails: model errors and uncertain replies become canned messages.
func (s *SearchService) GenerateSummaryAnswer(ctx context.Context, query, contextText string, history []model.Message) string {
	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: summarySystemPrompt})
	messages = appendHistory(messages, trimMessages(history, s.maxHistory))
	messages = append(messages, ai.ChatMessage{
		Role:    ai.RoleUser,
		Content: fmt.Sprintf("Question: %s\nContext:\n%s", query, contextText),
	})

	out, err := s.llm.Complete(ctx, messages, ai.CompletionOptions{
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		s.logger.Warn("generate summary failed", "err", err)
		return SummaryErrorFallback
	}
	out = strings.TrimSpace(out)
	if strings.Contains(strings.ToLower(out), "i don't know") || utf8.RuneCountInString(out) < minSummaryLength {
		return SummaryFallback
	}
	return out
}

// Summarize answers a query from the top keyword hits, using the conversation
// history when a conversation id is given.
func (s *SearchService) Summarize(ctx context.Context, query, conversationID string) (*Summary, error) {
	hits, err := s.SearchQuotes(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return &Summary{Answer: NoResultsAnswer, Sources: hits}, nil
	}

	var history []model.Message
	if conversationID != "" {
		history, err = s.conversations.History(ctx, conversationID)
		if err != nil && !errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
	}

	texts := make([]string, 0, len(hits))
	for i := range hits {
		texts = append(texts, hits[i].Text())
	}
	return &Summary{
		Answer:  s.GenerateSummaryAnswer(ctx, query, strings.Join(texts, "\n\n"), history),
		Sources: hits,
	}, nil
}
