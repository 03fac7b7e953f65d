package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quotelens/internal/app"
	"quotelens/internal/model"
	"quotelens/internal/transport/http/response"
)

type Searcher interface {
	SearchQuotes(ctx context.Context, query string) ([]model.RankedQuote, error)
	SearchInFile(ctx context.Context, query, conversationID string) (*app.Answer, error)
	Summarize(ctx context.Context, query, conversationID string) (*app.Summary, error)
}

type SearchHandler struct {
	search     Searcher
	retries    int
	retryDelay time.Duration
}

type SearchRequest struct {
	Query          string `json:"query" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
}

type SummaryRequest struct {
	Query          string `json:"query" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

// NewSearchHandler builds the handler. retries and retryDelay apply while a
// conversation has no ingested content yet.
func NewSearchHandler(search Searcher, retries int, retryDelay time.Duration) *SearchHandler {
	return &SearchHandler{
		search:     search,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

func (h *SearchHandler) Ask(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "query and conversation_id are required")
		return
	}

	answer, err := app.RetryOnNotFound(c.Request.Context(), h.retries, h.retryDelay, func(ctx context.Context) (*app.Answer, error) {
		return h.search.SearchInFile(ctx, req.Query, req.ConversationID)
	})
	if err != nil {
		writeSearchError(c, err, "search failed")
		return
	}
	response.OK(c, answer)
}

func (h *SearchHandler) Quotes(c *gin.Context) {
	hits, err := h.search.SearchQuotes(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeSearchError(c, err, "search quotes failed")
		return
	}
	response.OK(c, hits)
}

func (h *SearchHandler) Summary(c *gin.Context) {
	var req SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "query is required")
		return
	}

	summary, err := h.search.Summarize(c.Request.Context(), req.Query, req.ConversationID)
	if err != nil {
		writeSearchError(c, err, "summary failed")
		return
	}
	response.OK(c, summary)
}

func writeSearchError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrEmptyQuery), errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrNoDocumentContent):
		response.Error(c, http.StatusNotFound, response.CodeNoDocumentContent, "No document content found for the provided conversation ID")
	case errors.Is(err, app.ErrConversationNotFound):
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
