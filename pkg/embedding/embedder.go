// Package embedding turns source records into vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-fkgraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-fkgraph/pkg/retry"
)

// DefaultModel is used when no embedding model is configured.
const DefaultModel = "text-embedding-3-small"

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for an OpenAI-compatible embedder.
type Config struct {
	Endpoint  string // Base URL, e.g., "https://api.openai.com/v1"
	Model     string
	APIKey    string // Optional for local endpoints
	BatchSize int    // Texts per request (default: 64)
}

// OpenAIEmbedder calls CreateEmbeddings on an OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
	retry     *retry.Config
	logger    *zap.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder.
func NewOpenAIEmbedder(cfg Config, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		retry:     retry.DefaultConfig(),
		logger:    logger.Named("embedding"),
	}, nil
}

// Embed batches texts and returns vectors in the same order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		var resp openai.EmbeddingResponse
		err := retry.DoIfRetryable(ctx, e.retry, func() error {
			var err error
			resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.model),
				Input: batch,
			})
			return err
		})
		if err != nil {
			e.logger.Error("Embedding request failed",
				zap.String("model", e.model),
				zap.Int("texts", len(batch)),
				zap.String("error", logging.SanitizeError(err)))
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("create embeddings: got %d vectors for %d texts", len(resp.Data), len(batch))
		}

		ordered := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("create embeddings: index %d out of range", d.Index)
			}
			ordered[d.Index] = d.Embedding
		}
		vectors = append(vectors, ordered...)
	}

	return vectors, nil
}
