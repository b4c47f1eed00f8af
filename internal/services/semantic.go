package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/internal/vectorstore"
	"github.com/sirupsen/logrus"
)

// Embedder generates a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NearestIndex answers nearest-neighbour queries over manual chunks.
type NearestIndex interface {
	QueryNearest(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error)
}

// SemanticSearchService is the embedding-based fallback stage. It
// enforces its own timeout independent of the orchestrator's so a
// stalled vector store or embedder cannot block under the radar; on
// timeout it returns an empty list so the orchestrator's stage-failure
// handling stays uniform.
type SemanticSearchService struct {
	embedder Embedder
	index    NearestIndex
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewSemanticSearchService(embedder Embedder, index NearestIndex, timeout time.Duration, logger *logrus.Logger) *SemanticSearchService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SemanticSearchService{
		embedder: embedder,
		index:    index,
		timeout:  timeout,
		logger:   logger,
	}
}

type semanticResult struct {
	candidates []models.CandidateAnswer
	err        error
}

// Search returns up to k candidates ordered by similarity. An empty
// index and an internal timeout both yield an empty list.
func (s *SemanticSearchService) Search(ctx context.Context, text string, k int) ([]models.CandidateAnswer, error) {
	start := time.Now()

	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)

	resultCh := make(chan semanticResult, 1)
	go func() {
		defer cancel()
		resultCh <- s.search(searchCtx, text, k, start)
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			if errors.Is(result.err, context.DeadlineExceeded) && ctx.Err() == nil {
				// Our internal budget expired, not the caller's.
				s.logger.WithField("timeout", s.timeout).Warn("Semantic search timed out; returning empty result")
				return []models.CandidateAnswer{}, nil
			}
			return nil, result.err
		}
		return result.candidates, nil
	case <-searchCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.logger.WithField("timeout", s.timeout).Warn("Semantic search timed out; returning empty result")
		return []models.CandidateAnswer{}, nil
	}
}

func (s *SemanticSearchService) search(ctx context.Context, text string, k int, start time.Time) semanticResult {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return semanticResult{err: fmt.Errorf("query embedding failed: %w", err)}
	}

	matches, err := s.index.QueryNearest(ctx, vector, k)
	if err != nil {
		return semanticResult{err: fmt.Errorf("vector query failed: %w", err)}
	}

	candidates := make([]models.CandidateAnswer, 0, len(matches))
	for _, match := range matches {
		candidates = append(candidates, models.CandidateAnswer{
			Source:     models.SourceSemantic,
			EntryID:    fmt.Sprintf("%d", match.Chunk.ID),
			Text:       match.Chunk.Content,
			References: chunkReferences(match.Chunk),
			Confidence: clamp01(1 - match.Distance),
			Latency:    time.Since(start),
		})
	}

	return semanticResult{candidates: candidates}
}

func chunkReferences(chunk models.ManualChunk) []string {
	ref := chunk.Manufacturer
	if chunk.ModelSeries != "" {
		if ref != "" {
			ref += " "
		}
		ref += chunk.ModelSeries
	}
	if ref == "" {
		return nil
	}
	return []string{ref}
}
