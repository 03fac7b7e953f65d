package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quotelens/internal/app"
	"quotelens/internal/model"
	"quotelens/internal/transport/http/response"
)

type Conversations interface {
	Create(ctx context.Context, title string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	Get(ctx context.Context, id string) (*model.Conversation, error)
	ListQuotes(ctx context.Context, id string) ([]model.Quote, error)
	Delete(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (*app.IngestStatus, error)
}

type ConversationHandler struct {
	conversations Conversations
}

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=255"`
}

func NewConversationHandler(conversations Conversations) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	conversation, err := h.conversations.Create(c.Request.Context(), req.Title)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	conversations, err := h.conversations.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list conversations failed")
		return
	}
	response.OK(c, conversations)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conversation, err := h.conversations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeConversationError(c, err, "get conversation failed")
		return
	}
	response.OK(c, conversation)
}

func (h *ConversationHandler) Quotes(c *gin.Context) {
	quotes, err := h.conversations.ListQuotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeConversationError(c, err, "list quotes failed")
		return
	}
	response.OK(c, quotes)
}

// Status lets a client poll until uploaded documents have produced quotes.
func (h *ConversationHandler) Status(c *gin.Context) {
	status, err := h.conversations.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeConversationError(c, err, "get status failed")
		return
	}
	response.OK(c, status)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.conversations.Delete(c.Request.Context(), id); err != nil {
		writeConversationError(c, err, "delete conversation failed")
		return
	}
	response.OK(c, gin.H{"deleted_conversation_id": id})
}

func writeConversationError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, app.ErrConversationNotFound) {
		response.Error(c, http.StatusNotFound, response.CodeConversationNotFound, err.Error())
		return
	}
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}
