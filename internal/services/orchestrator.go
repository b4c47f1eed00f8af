package services

import (
	"context"
	"strings"
	"time"

	"github.com/fixmate/backend/internal/config"
	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

const semanticFanout = 3

// ContextProvider fetches the requester's context.
type ContextProvider interface {
	Get(ctx context.Context, requesterID string) (*models.UserContext, error)
}

// ExactLookup is the curated fast path.
type ExactLookup interface {
	Lookup(ctx context.Context, text string, uctx *models.UserContext) (*models.CandidateAnswer, error)
}

// FallbackSearch is the semantic fallback stage.
type FallbackSearch interface {
	Search(ctx context.Context, text string, k int) ([]models.CandidateAnswer, error)
}

// Classifier assigns a safety verdict to a candidate answer.
type Classifier interface {
	Classify(ctx context.Context, candidate *models.CandidateAnswer) (*models.SafetyVerdict, error)
}

// AnswerComposer renders the final answer text.
type AnswerComposer interface {
	Compose(candidate *models.CandidateAnswer, verdict models.SafetyVerdict, uctx *models.UserContext) string
}

// Orchestrator runs a query through context resolution, tiered search,
// safety classification, and composition under a global deadline. Every
// stage runs under its own sub-deadline; a slow stage degrades the
// answer, it never takes the whole request down with it.
type Orchestrator struct {
	contexts ContextProvider
	lookup   ExactLookup
	fallback FallbackSearch
	safety   Classifier
	composer AnswerComposer
	cfg      config.OrchestratorConfig
	logger   *logrus.Logger
}

func NewOrchestrator(
	contexts ContextProvider,
	lookup ExactLookup,
	fallback FallbackSearch,
	safety Classifier,
	composer AnswerComposer,
	cfg config.OrchestratorConfig,
	logger *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		contexts: contexts,
		lookup:   lookup,
		fallback: fallback,
		safety:   safety,
		composer: composer,
		cfg:      cfg,
		logger:   logger,
	}
}

// stageOutcome pairs a stage's value with its error for channel handoff.
type stageOutcome[T any] struct {
	value T
	err   error
}

// awaitStage runs fn under its own timeout. If the stage overruns, the
// deadline error is returned and the late result is abandoned; the
// goroutine still drains into the buffered channel and exits.
func awaitStage[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)

	resultCh := make(chan stageOutcome[T], 1)
	go func() {
		defer cancel()
		value, err := fn(stageCtx)
		resultCh <- stageOutcome[T]{value: value, err: err}
	}()

	select {
	case result := <-resultCh:
		return result.value, result.err
	case <-stageCtx.Done():
		var zero T
		return zero, stageCtx.Err()
	}
}

// Resolve answers a query end to end. It never returns an error for
// stage failures or missing knowledge; those surface as knowledge_gap
// results. Errors are reserved for invalid input.
func (o *Orchestrator) Resolve(ctx context.Context, req models.QueryRequest) (*models.OrchestrationResult, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if o.cfg.MaxQueryLength > 0 && len(text) > o.cfg.MaxQueryLength {
		return nil, ErrQueryTooLong
	}

	correlationID := utils.GenerateRandomID(8)
	log := o.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"requester_id":   req.RequesterID,
	})

	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalDeadline)
	defer cancel()

	uctx := o.resolveContext(ctx, req.RequesterID, log)

	best := o.searchTiers(ctx, text, uctx, log)

	if err := ctx.Err(); err != nil && best == nil {
		log.WithField("elapsed", time.Since(start)).Warn("Resolution deadline exhausted before any candidate arrived")
		return o.knowledgeGap("the request timed out before an answer was found", correlationID, start), nil
	}

	if best == nil || best.Confidence < o.cfg.ConfidenceFloor {
		reason := "no answer matched this question"
		if best != nil {
			reason = "no answer was confident enough for this question"
		}
		log.WithField("elapsed", time.Since(start)).Info("Query resolved as knowledge gap")
		return o.knowledgeGap(reason, correlationID, start), nil
	}

	verdict := o.classify(ctx, best, log)

	resolution := models.ResolutionFastPath
	if best.Source == models.SourceSemantic {
		resolution = models.ResolutionFallbackPath
	}
	if verdict.Blocking() {
		resolution = models.ResolutionSafetyOverride
	}

	answer := o.composer.Compose(best, verdict, uctx)

	log.WithFields(logrus.Fields{
		"source":     best.Source,
		"confidence": best.Confidence,
		"safety":     verdict.Level,
		"resolution": resolution,
		"elapsed":    time.Since(start),
	}).Info("Query resolved")

	return &models.OrchestrationResult{
		Answer:        answer,
		Source:        best.Source,
		Confidence:    best.Confidence,
		Verdict:       verdict,
		Resolution:    resolution,
		Elapsed:       time.Since(start),
		CorrelationID: correlationID,
	}, nil
}

// resolveContext degrades to a default novice context when the context
// store is slow or unavailable.
func (o *Orchestrator) resolveContext(ctx context.Context, requesterID string, log *logrus.Entry) *models.UserContext {
	uctx, err := awaitStage(ctx, o.cfg.ContextTimeout, func(stageCtx context.Context) (*models.UserContext, error) {
		return o.contexts.Get(stageCtx, requesterID)
	})
	if err != nil || uctx == nil {
		if err != nil {
			log.WithError(err).Warn("Context resolution failed; using default context")
		}
		return models.DefaultUserContext(requesterID)
	}
	return uctx
}

// searchTiers runs the exact-match lookup and, when it does not clear
// the fast-path threshold, the semantic fallback under the remaining
// budget. At equal confidence the curated answer wins.
func (o *Orchestrator) searchTiers(ctx context.Context, text string, uctx *models.UserContext, log *logrus.Entry) *models.CandidateAnswer {
	exact, err := awaitStage(ctx, o.cfg.LookupTimeout, func(stageCtx context.Context) (*models.CandidateAnswer, error) {
		return o.lookup.Lookup(stageCtx, text, uctx)
	})
	if err != nil {
		log.WithError(err).Warn("Exact-match lookup failed")
		exact = nil
	}

	if exact != nil && exact.Confidence >= o.cfg.FastPathThreshold {
		return exact
	}

	semanticBudget := o.semanticBudget(ctx)
	if semanticBudget <= 0 {
		return exact
	}

	candidates, err := awaitStage(ctx, semanticBudget, func(stageCtx context.Context) ([]models.CandidateAnswer, error) {
		return o.fallback.Search(stageCtx, text, semanticFanout)
	})
	if err != nil {
		log.WithError(err).Warn("Semantic fallback failed")
		return exact
	}

	var semantic *models.CandidateAnswer
	for i := range candidates {
		if semantic == nil || candidates[i].Confidence > semantic.Confidence {
			semantic = &candidates[i]
		}
	}

	if semantic == nil {
		return exact
	}
	if exact != nil && exact.Confidence >= semantic.Confidence {
		return exact
	}
	return semantic
}

// semanticBudget is the time left under the global deadline, capped so
// the fallback cannot eat an arbitrarily large budget.
func (o *Orchestrator) semanticBudget(ctx context.Context) time.Duration {
	budget := o.cfg.SemanticCap
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	return budget
}

// classify fails closed: if the classifier is slow or errors, the
// candidate gets a professional-only verdict rather than none.
func (o *Orchestrator) classify(ctx context.Context, candidate *models.CandidateAnswer, log *logrus.Entry) models.SafetyVerdict {
	verdict, err := awaitStage(ctx, o.cfg.SafetyTimeout, func(stageCtx context.Context) (*models.SafetyVerdict, error) {
		return o.safety.Classify(stageCtx, candidate)
	})
	if err != nil || verdict == nil {
		if err != nil {
			log.WithError(err).Warn("Safety classification unavailable; failing closed")
		}
		return ConservativeVerdict()
	}
	return *verdict
}

// knowledgeGap builds the honest "I don't know" result. It still
// carries a verdict so downstream rendering stays uniform.
func (o *Orchestrator) knowledgeGap(reason, correlationID string, start time.Time) *models.OrchestrationResult {
	return &models.OrchestrationResult{
		Answer:        "I don't have a reliable answer for this yet. For anything involving gas, mains wiring, or persistent leaks, please contact a qualified technician.",
		Verdict:       GenericCautionVerdict(),
		Resolution:    models.ResolutionKnowledgeGap,
		GapReason:     reason,
		Elapsed:       time.Since(start),
		CorrelationID: correlationID,
	}
}
