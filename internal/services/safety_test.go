package services

import (
	"context"
	"testing"

	"github.com/fixmate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() []models.SafetyRule {
	return []models.SafetyRule{
		{Pattern: "valve", Level: "requires_tools", Priority: 0, RequiredTools: models.StringArray{"wrench"}},
		{Pattern: "water inlet valve", Level: "dangerous", Priority: 10, Rationale: "sits next to mains wiring"},
		{Pattern: "gas", Level: "professional_only", Priority: 20, Rationale: "gas work is regulated"},
		{Pattern: "clean the filter", Level: "safe_diy", Priority: 0},
	}
}

func TestClassifyMostSpecificRuleWins(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{
		Text: "Shut off the supply, then replace the water inlet valve.",
	})
	require.NoError(t, err)

	// Both "valve" and "water inlet valve" match; the higher-priority,
	// longer pattern must win.
	assert.Equal(t, models.SafetyDangerous, verdict.Level)
	assert.Equal(t, "sits next to mains wiring", verdict.Rationale)
}

func TestClassifyPatternLengthBreaksPriorityTies(t *testing.T) {
	rules := []models.SafetyRule{
		{Pattern: "drain", Level: "safe_diy", Priority: 5},
		{Pattern: "drain pump motor", Level: "requires_tools", Priority: 5},
	}
	c := NewSafetyClassifier(rules, testLogger())

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{
		Text: "Test the drain pump motor windings with a multimeter.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyRequiresTools, verdict.Level)
}

func TestClassifyMatchIsCaseInsensitive(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{
		Text: "Never attempt GAS line repairs yourself.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyProfessionalOnly, verdict.Level)
}

func TestClassifyDefaultsToCaution(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{
		Text: "Level the appliance by adjusting the front feet.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyRequiresTools, verdict.Level)
	assert.NotEmpty(t, verdict.Warning)
}

func TestClassifyCarriesRequiredTools(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{
		Text: "Tighten the shutoff valve a quarter turn.",
	})
	require.NoError(t, err)

	assert.Equal(t, models.SafetyRequiresTools, verdict.Level)
	assert.Equal(t, []string{"wrench"}, verdict.RequiredTools)
}

func TestSetRulesInvalidatesCachedVerdicts(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())
	candidate := &models.CandidateAnswer{Text: "Replace the water inlet valve."}

	verdict, err := c.Classify(context.Background(), candidate)
	require.NoError(t, err)
	require.Equal(t, models.SafetyDangerous, verdict.Level)

	c.SetRules(nil)

	verdict, err = c.Classify(context.Background(), candidate)
	require.NoError(t, err)
	assert.Equal(t, models.SafetyRequiresTools, verdict.Level, "stale cached verdicts must not survive a rule reload")
}

func TestClassifyHonorsCancelledContext(t *testing.T) {
	c := NewSafetyClassifier(testRules(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Classify(ctx, &models.CandidateAnswer{Text: "anything"})
	assert.Error(t, err)
}

type stubRuleRepo struct {
	rules []models.SafetyRule
	err   error
}

func (s *stubRuleRepo) Create(rule *models.SafetyRule) error { return nil }
func (s *stubRuleRepo) GetOrdered() ([]models.SafetyRule, error) {
	return s.rules, s.err
}

func TestReloadFromReplacesRules(t *testing.T) {
	c := NewSafetyClassifier(nil, testLogger())

	err := c.ReloadFrom(&stubRuleRepo{rules: testRules()})
	require.NoError(t, err)

	verdict, err := c.Classify(context.Background(), &models.CandidateAnswer{Text: "check the gas line"})
	require.NoError(t, err)
	assert.Equal(t, models.SafetyProfessionalOnly, verdict.Level)
}

func TestConservativeVerdictIsBlocking(t *testing.T) {
	assert.True(t, ConservativeVerdict().Blocking())
	assert.False(t, GenericCautionVerdict().Blocking())
}
