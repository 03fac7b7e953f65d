package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const embeddingBatchSize = 16

// EmbeddingConfig holds API settings for the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LangchainEmbedder produces embeddings through langchaingo's OpenAI client.
type LangchainEmbedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func NewLangchainEmbedder(cfg EmbeddingConfig) (*LangchainEmbedder, error) {
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding client failed: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(embeddingBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder failed: %w", err)
	}

	return &LangchainEmbedder{
		embedder: embedder,
		logger:   slog.Default().With("component", "embedder"),
	}, nil
}

func (e *LangchainEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed texts failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(texts))
	}
	return vectors, nil
}
