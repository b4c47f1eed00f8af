package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vector []float32
	err    error
	block  bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.vector, s.err
}

type stubIndex struct {
	matches []vectorstore.Match
	err     error
}

func (s *stubIndex) QueryNearest(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	return s.matches, s.err
}

func manualMatch(id uint, content string, distance float64) vectorstore.Match {
	chunk := models.ManualChunk{Manufacturer: "Bosch", ModelSeries: "SMS6", Content: content}
	chunk.ID = id
	return vectorstore.Match{Chunk: chunk, Distance: distance}
}

func TestSemanticSearchConvertsDistanceToConfidence(t *testing.T) {
	index := &stubIndex{matches: []vectorstore.Match{
		manualMatch(1, "Check the heat pump filter.", 0.25),
		manualMatch(2, "Descale the spray arms.", 0.6),
	}}
	svc := NewSemanticSearchService(&stubEmbedder{vector: []float32{1, 0}}, index, time.Second, testLogger())

	candidates, err := svc.Search(context.Background(), "dishes come out dirty", 3)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, models.SourceSemantic, candidates[0].Source)
	assert.InDelta(t, 0.75, candidates[0].Confidence, 1e-9)
	assert.InDelta(t, 0.4, candidates[1].Confidence, 1e-9)
	assert.Equal(t, []string{"Bosch SMS6"}, candidates[0].References)
}

func TestSemanticSearchClampsNegativeSimilarity(t *testing.T) {
	index := &stubIndex{matches: []vectorstore.Match{manualMatch(1, "unrelated content", 1.8)}}
	svc := NewSemanticSearchService(&stubEmbedder{vector: []float32{1, 0}}, index, time.Second, testLogger())

	candidates, err := svc.Search(context.Background(), "anything", 1)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, 0.0, candidates[0].Confidence)
}

func TestSemanticSearchEmptyIndexYieldsEmptyList(t *testing.T) {
	svc := NewSemanticSearchService(&stubEmbedder{vector: []float32{1, 0}}, &stubIndex{}, time.Second, testLogger())

	candidates, err := svc.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSemanticSearchTimeoutYieldsEmptyList(t *testing.T) {
	svc := NewSemanticSearchService(&stubEmbedder{block: true}, &stubIndex{}, 50*time.Millisecond, testLogger())

	start := time.Now()
	candidates, err := svc.Search(context.Background(), "slow embedder", 3)
	require.NoError(t, err, "a timeout degrades to an empty result, not an error")

	assert.Empty(t, candidates)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSemanticSearchEmbedderErrorPropagates(t *testing.T) {
	svc := NewSemanticSearchService(&stubEmbedder{err: errors.New("model not loaded")}, &stubIndex{}, time.Second, testLogger())

	_, err := svc.Search(context.Background(), "anything", 3)
	assert.Error(t, err)
}

func TestSemanticSearchIndexErrorPropagates(t *testing.T) {
	svc := NewSemanticSearchService(&stubEmbedder{vector: []float32{1}}, &stubIndex{err: errors.New("index rebuilding")}, time.Second, testLogger())

	_, err := svc.Search(context.Background(), "anything", 3)
	assert.Error(t, err)
}
