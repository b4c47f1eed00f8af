package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fixmate/backend/internal/config"
	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		GlobalDeadline:    2 * time.Second,
		ContextTimeout:    100 * time.Millisecond,
		LookupTimeout:     200 * time.Millisecond,
		SemanticCap:       500 * time.Millisecond,
		SafetyTimeout:     100 * time.Millisecond,
		FastPathThreshold: 0.75,
		ConfidenceFloor:   0.4,
		MaxQueryLength:    2000,
	}
}

type fakeContexts struct {
	uctx  *models.UserContext
	err   error
	delay time.Duration
}

func (f *fakeContexts) Get(ctx context.Context, requesterID string) (*models.UserContext, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.uctx != nil {
		return f.uctx, nil
	}
	return models.DefaultUserContext(requesterID), nil
}

type fakeLookup struct {
	candidate *models.CandidateAnswer
	err       error
	delay     time.Duration
	calls     int
}

func (f *fakeLookup) Lookup(ctx context.Context, text string, uctx *models.UserContext) (*models.CandidateAnswer, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.candidate, f.err
}

type fakeFallback struct {
	candidates []models.CandidateAnswer
	err        error
	delay      time.Duration
	calls      int
}

func (f *fakeFallback) Search(ctx context.Context, text string, k int) ([]models.CandidateAnswer, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.candidates, f.err
}

type fakeClassifier struct {
	verdict *models.SafetyVerdict
	err     error
	delay   time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, candidate *models.CandidateAnswer) (*models.SafetyVerdict, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.verdict, f.err
}

func safeVerdict() *models.SafetyVerdict {
	return &models.SafetyVerdict{Level: models.SafetySafeDIY}
}

func newTestOrchestrator(contexts ContextProvider, lookup ExactLookup, fallback FallbackSearch, safety Classifier) *Orchestrator {
	composer := NewResponseComposer(nil, testLogger())
	return NewOrchestrator(contexts, lookup, fallback, safety, composer, testOrchestratorConfig(), testLogger())
}

func TestResolveFastPathSkipsFallback(t *testing.T) {
	exact := &models.CandidateAnswer{
		Source:     models.SourceExactMatch,
		EntryID:    "7",
		Text:       "Clean the drain filter at the bottom front of the machine.",
		Confidence: 0.9,
	}
	fallback := &fakeFallback{}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, fallback, &fakeClassifier{verdict: safeVerdict()})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "dishwasher not draining"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionFastPath, result.Resolution)
	assert.Equal(t, models.SourceExactMatch, result.Source)
	assert.Equal(t, 0.9, result.Confidence)
	assert.Contains(t, result.Answer, "drain filter")
	assert.Equal(t, 0, fallback.calls, "fallback should not run when the fast path clears the threshold")
	assert.NotEmpty(t, result.CorrelationID)
}

func TestResolveFallbackPathOutranksWeakExact(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "weak answer", Confidence: 0.1}
	semantic := []models.CandidateAnswer{
		{Source: models.SourceSemantic, Text: "Check the door latch alignment on the hinge side.", Confidence: 0.6},
		{Source: models.SourceSemantic, Text: "less relevant chunk", Confidence: 0.45},
	}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{candidates: semantic}, &fakeClassifier{verdict: safeVerdict()})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "oven door will not close"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionFallbackPath, result.Resolution)
	assert.Equal(t, models.SourceSemantic, result.Source)
	assert.Equal(t, 0.6, result.Confidence)
	assert.Contains(t, result.Answer, "door latch")
}

func TestResolveExactWinsTies(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "curated answer", Confidence: 0.6}
	semantic := []models.CandidateAnswer{{Source: models.SourceSemantic, Text: "manual chunk", Confidence: 0.6}}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{candidates: semantic}, &fakeClassifier{verdict: safeVerdict()})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "fridge too warm"})
	require.NoError(t, err)

	assert.Equal(t, models.SourceExactMatch, result.Source)
	assert.Equal(t, models.ResolutionFastPath, result.Resolution)
}

func TestResolveSafetyOverrideSuppressesSteps(t *testing.T) {
	exact := &models.CandidateAnswer{
		Source:     models.SourceExactMatch,
		Text:       "Replace the water inlet valve behind the lower access panel.",
		Confidence: 0.9,
	}
	verdict := &models.SafetyVerdict{
		Level:     models.SafetyDangerous,
		Rationale: "Water inlet valves sit next to live mains wiring",
	}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{}, &fakeClassifier{verdict: verdict})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "how to replace water inlet valve"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionSafetyOverride, result.Resolution)
	assert.Equal(t, models.SafetyDangerous, result.Verdict.Level)
	assert.NotContains(t, result.Answer, "access panel", "DIY steps must be suppressed")
	assert.Contains(t, result.Answer, "technician")
	assert.Contains(t, result.Answer, "live mains wiring")
}

func TestResolveContextTimeoutDegradesToDefault(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "steps", Confidence: 0.9}
	contexts := &fakeContexts{
		uctx:  &models.UserContext{RequesterID: "u1", SkillLevel: models.SkillDIYEnthusiast},
		delay: time.Second,
	}
	o := newTestOrchestrator(contexts, &fakeLookup{candidate: exact}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict()})

	start := time.Now()
	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "washer is shaking", RequesterID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionFastPath, result.Resolution)
	// The novice framing proves the default context was used.
	assert.Contains(t, result.Answer, "one at a time")
	assert.Less(t, time.Since(start), time.Second, "resolution must not wait out a slow context store")
}

func TestResolveKnowledgeGapWhenNothingMatches(t *testing.T) {
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict()})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "quantum flux capacitor hum"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionKnowledgeGap, result.Resolution)
	assert.NotEmpty(t, result.GapReason)
	assert.Equal(t, models.SafetyRequiresTools, result.Verdict.Level, "gap results still carry a cautious verdict")
	assert.NotEmpty(t, result.Answer)
}

func TestResolveKnowledgeGapBelowConfidenceFloor(t *testing.T) {
	semantic := []models.CandidateAnswer{{Source: models.SourceSemantic, Text: "vaguely related", Confidence: 0.2}}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{}, &fakeFallback{candidates: semantic}, &fakeClassifier{verdict: safeVerdict()})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "strange rattle"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionKnowledgeGap, result.Resolution)
	assert.Contains(t, result.GapReason, "confident")
}

func TestResolveClassifierFailureFailsClosed(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "steps", Confidence: 0.9}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{}, &fakeClassifier{err: errors.New("classifier down")})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "dryer not heating"})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyProfessionalOnly, result.Verdict.Level)
	assert.Equal(t, models.ResolutionSafetyOverride, result.Resolution)
}

func TestResolveClassifierTimeoutFailsClosed(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "steps", Confidence: 0.9}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict(), delay: time.Second})

	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "dryer not heating"})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyProfessionalOnly, result.Verdict.Level)
}

func TestResolveSlowStagesStayUnderDeadline(t *testing.T) {
	slow := 5 * time.Second
	o := newTestOrchestrator(
		&fakeContexts{delay: slow},
		&fakeLookup{delay: slow},
		&fakeFallback{delay: slow},
		&fakeClassifier{verdict: safeVerdict(), delay: slow},
	)

	start := time.Now()
	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "everything is slow"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionKnowledgeGap, result.Resolution)
	assert.Less(t, time.Since(start), testOrchestratorConfig().GlobalDeadline+500*time.Millisecond)
}

func TestResolveGlobalDeadlineReportsTimeout(t *testing.T) {
	// Stage budgets wider than the global deadline, so the global
	// deadline is the one that fires.
	cfg := testOrchestratorConfig()
	cfg.GlobalDeadline = 100 * time.Millisecond
	cfg.ContextTimeout = 10 * time.Millisecond
	cfg.LookupTimeout = time.Second
	cfg.SemanticCap = time.Second

	composer := NewResponseComposer(nil, testLogger())
	o := NewOrchestrator(
		&fakeContexts{},
		&fakeLookup{delay: time.Second},
		&fakeFallback{delay: time.Second},
		&fakeClassifier{verdict: safeVerdict()},
		composer, cfg, testLogger(),
	)

	start := time.Now()
	result, err := o.Resolve(context.Background(), models.QueryRequest{Text: "oven takes forever to preheat"})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionKnowledgeGap, result.Resolution)
	assert.Contains(t, result.GapReason, "timed out")
	assert.Equal(t, models.SafetyRequiresTools, result.Verdict.Level)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveRejectsEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict()})

	_, err := o.Resolve(context.Background(), models.QueryRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestResolveRejectsOversizedQuery(t *testing.T) {
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict()})

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'a'
	}
	_, err := o.Resolve(context.Background(), models.QueryRequest{Text: string(long)})
	assert.ErrorIs(t, err, ErrQueryTooLong)
}

func TestResolveIsIdempotentForSameInput(t *testing.T) {
	exact := &models.CandidateAnswer{Source: models.SourceExactMatch, Text: "fixed steps", Confidence: 0.85}
	o := newTestOrchestrator(&fakeContexts{}, &fakeLookup{candidate: exact}, &fakeFallback{}, &fakeClassifier{verdict: safeVerdict()})

	first, err := o.Resolve(context.Background(), models.QueryRequest{Text: "ice maker stuck"})
	require.NoError(t, err)
	second, err := o.Resolve(context.Background(), models.QueryRequest{Text: "ice maker stuck"})
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Resolution, second.Resolution)
	assert.Equal(t, first.Confidence, second.Confidence)
}
