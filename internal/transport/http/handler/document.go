package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quotelens/internal/app"
	"quotelens/internal/model"
	"quotelens/internal/transport/http/response"
)

const uploadField = "documents"

type Ingestor interface {
	Accept(ctx context.Context, input app.AcceptInput) (*app.AcceptResult, error)
}

type Documents interface {
	List(ctx context.Context) ([]model.Document, error)
	Get(ctx context.Context, id string) (*model.Document, error)
	ListQuotes(ctx context.Context, id string) ([]model.Quote, error)
	Delete(ctx context.Context, id string) error
}

type DocumentHandler struct {
	ingest       Ingestor
	documents    Documents
	uploadDir    string
	maxFiles     int
	maxFileBytes int64
}

func NewDocumentHandler(ingest Ingestor, documents Documents, uploadDir string, maxFiles int, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{
		ingest:       ingest,
		documents:    documents,
		uploadDir:    uploadDir,
		maxFiles:     maxFiles,
		maxFileBytes: maxFileBytes,
	}
}

// Upload stages the multipart "documents" files on disk and starts background
// ingestion. It answers before any file is processed.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files uploaded")
		return
	}
	if h.maxFiles > 0 && len(headers) > h.maxFiles {
		response.Error(c, http.StatusBadRequest, response.CodeTooManyFiles, fmt.Sprintf("at most %d files per upload", h.maxFiles))
		return
	}
	for _, fh := range headers {
		if h.maxFileBytes > 0 && fh.Size > h.maxFileBytes {
			response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, fmt.Sprintf("%s: %s", fh.Filename, app.ErrUnsupportedUpload))
			return
		}
	}

	files, err := h.stage(c, headers)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "store upload failed")
		return
	}

	result, err := h.ingest.Accept(c.Request.Context(), app.AcceptInput{
		ConversationID: c.PostForm("conversation_id"),
		Files:          files,
	})
	if err != nil {
		removeStaged(files)
		switch {
		case errors.Is(err, app.ErrNoFiles), errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrTooManyFiles):
			response.Error(c, http.StatusBadRequest, response.CodeTooManyFiles, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}

	response.Accepted(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDocumentError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Quotes(c *gin.Context) {
	quotes, err := h.documents.ListQuotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDocumentError(c, err, "list quotes failed")
		return
	}
	response.OK(c, quotes)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeDocumentError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func writeDocumentError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, app.ErrDocumentNotFound) {
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		return
	}
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}

func (h *DocumentHandler) stage(c *gin.Context, headers []*multipart.FileHeader) ([]model.UploadedFile, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return nil, err
	}
	files := make([]model.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		path := filepath.Join(h.uploadDir, app.SafeFileName(fh.Filename, time.Now()))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			removeStaged(files)
			return nil, err
		}
		files = append(files, model.UploadedFile{
			OriginalName: fh.Filename,
			Path:         path,
			MediaType:    strings.TrimSpace(fh.Header.Get("Content-Type")),
		})
	}
	return files, nil
}

func removeStaged(files []model.UploadedFile) {
	for _, f := range files {
		_ = os.Remove(f.Path)
	}
}
