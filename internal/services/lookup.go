package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Blended scoring weights for curated entries.
const (
	keywordWeight = 0.6
	modelWeight   = 0.3
	successWeight = 0.1

	// Entries below this keyword overlap are treated as non-matches.
	defaultMinOverlap = 0.2

	candidateFetchLimit = 25
)

// ExactMatchService ranks curated Q&A entries against a query.
type ExactMatchService struct {
	repo       models.QAEntryRepository
	minOverlap float64
	logger     *logrus.Logger
}

func NewExactMatchService(repo models.QAEntryRepository, logger *logrus.Logger) *ExactMatchService {
	return &ExactMatchService{
		repo:       repo,
		minOverlap: defaultMinOverlap,
		logger:     logger,
	}
}

// Lookup returns the best curated entry for the query, or nil when no
// entry clears the minimal overlap threshold. A nil result is a normal
// outcome, not an error.
func (s *ExactMatchService) Lookup(ctx context.Context, text string, uctx *models.UserContext) (*models.CandidateAnswer, error) {
	start := time.Now()

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := s.repo.FindCandidates(tokens, candidateFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("curated entry lookup failed: %w", err)
	}

	declaredModel := ""
	if uctx != nil {
		declaredModel = uctx.Preferences["appliance_model"]
	}

	queryTokens := tokenSet(tokens)

	var best *models.QAEntry
	var bestScore, bestOverlap float64
	for i := range entries {
		entry := &entries[i]

		overlap := keywordOverlap(queryTokens, entry)
		if overlap < s.minOverlap {
			continue
		}

		score := keywordWeight*overlap +
			modelWeight*modelMatchScore(declaredModel, entry.SupportedModels) +
			successWeight*entry.SuccessRate

		// Ties go to the more-vetted answer.
		if best == nil || score > bestScore ||
			(score == bestScore && entry.UsageCount > best.UsageCount) {
			best = entry
			bestScore = score
			bestOverlap = overlap
		}
	}

	if best == nil {
		s.logger.WithField("tokens", len(tokens)).Debug("No curated entry cleared the overlap threshold")
		return nil, nil
	}

	s.logger.WithFields(logrus.Fields{
		"entry_id": best.ID,
		"score":    bestScore,
		"overlap":  bestOverlap,
	}).Debug("Curated entry selected")

	return &models.CandidateAnswer{
		Source:     models.SourceExactMatch,
		EntryID:    fmt.Sprintf("%d", best.ID),
		Text:       best.Answer,
		References: []string{best.Question},
		Confidence: clamp01(bestScore),
		Latency:    time.Since(start),
	}, nil
}

// keywordOverlap measures how much of the query the entry's keywords
// cover. Entries without keywords fall back to their question text.
func keywordOverlap(queryTokens map[string]bool, entry *models.QAEntry) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	entryTokens := make(map[string]bool)
	for _, kw := range entry.Keywords {
		for _, t := range tokenize(kw) {
			entryTokens[t] = true
		}
	}
	if len(entryTokens) == 0 {
		entryTokens = tokenSet(tokenize(entry.Question))
	}

	matched := 0
	for token := range queryTokens {
		if entryTokens[token] {
			matched++
		}
	}

	return float64(matched) / float64(len(queryTokens))
}

// modelMatchScore gives full credit to entries that either apply to all
// models or explicitly support the declared one. A declared model that
// misses a restricted entry scores zero.
func modelMatchScore(declaredModel string, supported models.StringArray) float64 {
	if len(supported) == 0 {
		return 1
	}
	if declaredModel == "" {
		return 0.5
	}

	declared := strings.ToLower(declaredModel)
	for _, m := range supported {
		if strings.ToLower(strings.TrimSpace(m)) == declared {
			return 1
		}
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
