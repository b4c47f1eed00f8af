package services

import (
	"context"
	"errors"
	"testing"

	"github.com/fixmate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQARepo struct {
	entries []models.QAEntry
	err     error
}

func (s *stubQARepo) Create(entry *models.QAEntry) error     { return nil }
func (s *stubQARepo) GetByID(id uint) (*models.QAEntry, error) { return nil, errors.New("not found") }
func (s *stubQARepo) List(page, pageSize int, activeOnly bool) ([]models.QAEntry, int64, error) {
	return s.entries, int64(len(s.entries)), nil
}
func (s *stubQARepo) FindCandidates(terms []string, limit int) ([]models.QAEntry, error) {
	return s.entries, s.err
}
func (s *stubQARepo) IncrementUsage(id uint) error { return nil }
func (s *stubQARepo) Deactivate(id uint) error     { return nil }

func qaEntry(id uint, question string, keywords []string) models.QAEntry {
	entry := models.QAEntry{
		Question: question,
		Answer:   "answer for " + question,
		Keywords: models.StringArray(keywords),
	}
	entry.ID = id
	return entry
}

func TestLookupPrefersHigherKeywordOverlap(t *testing.T) {
	broad := qaEntry(1, "Dishwasher issues", []string{"dishwasher"})
	broad.SuccessRate = 0.9

	precise := qaEntry(2, "Dishwasher not draining", []string{"dishwasher", "draining", "standing", "water"})
	precise.SuccessRate = 0.5

	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{broad, precise}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "dishwasher has standing water and is not draining", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, "2", candidate.EntryID)
	assert.Equal(t, models.SourceExactMatch, candidate.Source)
}

func TestLookupSuccessRateBreaksCloseCalls(t *testing.T) {
	weak := qaEntry(1, "Washer leaking", []string{"washer", "leaking"})
	weak.SuccessRate = 0.1

	strong := qaEntry(2, "Washer leaking water", []string{"washer", "leaking"})
	strong.SuccessRate = 0.9

	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{weak, strong}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "washer leaking", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, "2", candidate.EntryID)
}

func TestLookupUsageCountBreaksExactTies(t *testing.T) {
	fresh := qaEntry(1, "Fridge warm", []string{"fridge", "warm"})
	vetted := qaEntry(2, "Fridge warm", []string{"fridge", "warm"})
	vetted.UsageCount = 250

	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{fresh, vetted}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "fridge warm", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, "2", candidate.EntryID, "ties go to the more-used entry")
}

func TestLookupDeclaredModelBoostsSupportingEntries(t *testing.T) {
	generic := qaEntry(1, "Dryer not heating", []string{"dryer", "heating"})
	generic.SupportedModels = models.StringArray{"XQ-200"}

	matching := qaEntry(2, "Dryer not heating", []string{"dryer", "heating"})
	matching.SupportedModels = models.StringArray{"LG-DLE7300"}

	uctx := models.DefaultUserContext("u1")
	uctx.Preferences["appliance_model"] = "lg-dle7300"

	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{generic, matching}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "dryer not heating", uctx)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.Equal(t, "2", candidate.EntryID)
}

func TestLookupNoOverlapReturnsNil(t *testing.T) {
	entry := qaEntry(1, "Dishwasher not draining", []string{"dishwasher", "draining"})
	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{entry}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "television screen flickering", nil)
	require.NoError(t, err)

	assert.Nil(t, candidate, "a miss is a normal outcome, not an error")
}

func TestLookupEmptyQueryReturnsNil(t *testing.T) {
	svc := NewExactMatchService(&stubQARepo{}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "the and is", nil)
	require.NoError(t, err)
	assert.Nil(t, candidate)
}

func TestLookupConfidenceStaysInRange(t *testing.T) {
	entry := qaEntry(1, "Oven light out", []string{"oven", "light", "out"})
	entry.SuccessRate = 1.0

	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{entry}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "oven light out", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)

	assert.GreaterOrEqual(t, candidate.Confidence, 0.0)
	assert.LessOrEqual(t, candidate.Confidence, 1.0)
}

func TestLookupPropagatesRepositoryErrors(t *testing.T) {
	svc := NewExactMatchService(&stubQARepo{err: errors.New("connection refused")}, testLogger())

	_, err := svc.Lookup(context.Background(), "dishwasher broken", nil)
	assert.Error(t, err)
}

func TestLookupFallsBackToQuestionTokens(t *testing.T) {
	entry := qaEntry(1, "Microwave plate not spinning", nil)
	svc := NewExactMatchService(&stubQARepo{entries: []models.QAEntry{entry}}, testLogger())

	candidate, err := svc.Lookup(context.Background(), "microwave plate not spinning", nil)
	require.NoError(t, err)
	require.NotNil(t, candidate)
}
