package models

import "time"

// SkillLevel describes how hands-on a requester is willing or able to be.
type SkillLevel string

const (
	SkillNovice        SkillLevel = "novice"
	SkillDIYEnthusiast SkillLevel = "diy_enthusiast"
	SkillRenter        SkillLevel = "renter"
)

// SourceKind identifies which search stage produced a candidate answer.
type SourceKind string

const (
	SourceExactMatch SourceKind = "exact_match"
	SourceSemantic   SourceKind = "semantic"
)

// SafetyLevel is the verdict of the safety classifier for a candidate answer.
type SafetyLevel string

const (
	SafetySafeDIY          SafetyLevel = "safe_diy"
	SafetyRequiresTools    SafetyLevel = "requires_tools"
	SafetyProfessionalOnly SafetyLevel = "professional_only"
	SafetyDangerous        SafetyLevel = "dangerous"
)

// Resolution tags how a request was ultimately answered.
type Resolution string

const (
	ResolutionFastPath       Resolution = "fast_path"
	ResolutionFallbackPath   Resolution = "fallback_path"
	ResolutionSafetyOverride Resolution = "safety_override"
	ResolutionKnowledgeGap   Resolution = "knowledge_gap"
)

// QueryRequest is the immutable input to the orchestrator. Created once
// per incoming question and never mutated.
type QueryRequest struct {
	Text        string
	SessionID   string
	RequesterID string
	ReceivedAt  time.Time
}

// UserContext holds a requester's skill level and constraints. Owned by
// the context resolver; updates are last-writer-wins per requester.
type UserContext struct {
	RequesterID   string
	SkillLevel    SkillLevel
	SkillExplicit bool
	Preferences   map[string]string
	LastActive    time.Time
}

// DefaultUserContext is the graceful-degradation context used when the
// context store is unavailable or has never seen the requester.
func DefaultUserContext(requesterID string) *UserContext {
	return &UserContext{
		RequesterID: requesterID,
		SkillLevel:  SkillNovice,
		Preferences: map[string]string{},
		LastActive:  time.Now(),
	}
}

// CandidateAnswer is produced by a search stage. Transient; owned by the
// producing stage until handed to the safety classifier.
type CandidateAnswer struct {
	Source     SourceKind
	EntryID    string
	Text       string
	References []string
	Confidence float64
	Latency    time.Duration
}

// SafetyVerdict is immutable once produced and attached to exactly one
// candidate answer.
type SafetyVerdict struct {
	Level         SafetyLevel
	Rationale     string
	Warning       string
	RequiredTools []string
}

// Blocking reports whether the verdict forces suppression of DIY
// instructions regardless of the requester's skill level.
func (v SafetyVerdict) Blocking() bool {
	return v.Level == SafetyProfessionalOnly || v.Level == SafetyDangerous
}

// OrchestrationResult is the final, immutable output of a resolution.
// Every result carries exactly one safety verdict.
type OrchestrationResult struct {
	Answer        string
	Source        SourceKind
	Confidence    float64
	Verdict       SafetyVerdict
	Resolution    Resolution
	GapReason     string
	Elapsed       time.Duration
	CorrelationID string
}
