package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Match is a single nearest-neighbour result. Distance is cosine
// distance in [0,2]; callers derive confidence as 1 - distance.
type Match struct {
	Chunk    models.ManualChunk
	Distance float64
}

// MemoryIndex is an in-memory cosine index over manual chunks. The
// index is read-mostly: queries take a read lock, Reload swaps the
// whole chunk set. Re-embedding happens out-of-band, so a slightly
// stale index is acceptable.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []models.ManualChunk
	logger *logrus.Logger
}

func NewMemoryIndex(logger *logrus.Logger) *MemoryIndex {
	return &MemoryIndex{logger: logger}
}

// LoadFrom replaces the index contents with the active chunks from the
// repository.
func (m *MemoryIndex) LoadFrom(repo models.ManualChunkRepository) error {
	chunks, err := repo.GetActive()
	if err != nil {
		return err
	}

	kept := chunks[:0]
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			kept = append(kept, chunk)
		}
	}

	m.mu.Lock()
	m.chunks = kept
	m.mu.Unlock()

	m.logger.WithField("chunks", len(kept)).Info("Vector index loaded")
	return nil
}

// QueryNearest returns up to k chunks ordered by ascending cosine
// distance. An empty index yields an empty slice, not an error.
func (m *MemoryIndex) QueryNearest(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return []Match{}, nil
	}

	matches := make([]Match, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		sim := cosineSimilarity(vector, chunk.Embedding)
		matches = append(matches, Match{
			Chunk:    chunk,
			Distance: 1 - sim,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if len(matches) > k {
		matches = matches[:k]
	}

	return matches, nil
}

// Size returns the number of indexed chunks.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
