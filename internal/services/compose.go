package services

import (
	"strconv"
	"strings"

	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// UsageRecorder increments the usage counter of a curated entry.
type UsageRecorder interface {
	IncrementUsage(id uint) error
}

// Tools a renter can reasonably use without touching the building's
// plumbing or electrics.
var renterSafeTools = map[string]bool{
	"screwdriver": true,
	"flashlight":  true,
	"pliers":      true,
	"towel":       true,
	"bucket":      true,
	"gloves":      true,
}

// ResponseComposer renders the final answer text from a candidate, its
// verdict, and the requester's context.
type ResponseComposer struct {
	usage  UsageRecorder
	logger *logrus.Logger
}

func NewResponseComposer(usage UsageRecorder, logger *logrus.Logger) *ResponseComposer {
	return &ResponseComposer{
		usage:  usage,
		logger: logger,
	}
}

// Compose selects a rendering by (verdict level, skill level). A
// professional_only or dangerous verdict suppresses DIY steps entirely,
// independent of skill level.
func (c *ResponseComposer) Compose(candidate *models.CandidateAnswer, verdict models.SafetyVerdict, uctx *models.UserContext) string {
	defer c.recordUsage(candidate)

	if verdict.Blocking() {
		return c.composeReferral(verdict)
	}

	skill := models.SkillNovice
	if uctx != nil {
		skill = uctx.SkillLevel
	}

	switch verdict.Level {
	case models.SafetyRequiresTools:
		return c.composeWithTools(candidate, verdict, skill)
	default:
		return c.composeSafeDIY(candidate, verdict, skill)
	}
}

func (c *ResponseComposer) composeReferral(verdict models.SafetyVerdict) string {
	var b strings.Builder
	b.WriteString("This repair should not be attempted yourself.\n\n")
	if verdict.Rationale != "" {
		b.WriteString("Why: ")
		b.WriteString(verdict.Rationale)
		b.WriteString("\n\n")
	}
	if verdict.Warning != "" {
		b.WriteString("Warning: ")
		b.WriteString(verdict.Warning)
		b.WriteString("\n\n")
	}
	b.WriteString("Please contact a qualified appliance technician. ")
	b.WriteString("If the appliance is leaking, sparking, or smells of burning, disconnect it from power now.")
	return b.String()
}

func (c *ResponseComposer) composeWithTools(candidate *models.CandidateAnswer, verdict models.SafetyVerdict, skill models.SkillLevel) string {
	if skill == models.SkillRenter && !renterSafe(verdict.RequiredTools) {
		var b strings.Builder
		b.WriteString("This fix needs tools or access that typically are not available to renters")
		if len(verdict.RequiredTools) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(verdict.RequiredTools, ", "))
			b.WriteString(")")
		}
		b.WriteString(".\n\nPlease contact your building management or a professional instead. ")
		b.WriteString("In the meantime, stop using the appliance to avoid making the problem worse.")
		return b.String()
	}

	var b strings.Builder
	b.WriteString(skillAdapted(candidate.Text, skill))
	if len(verdict.RequiredTools) > 0 {
		b.WriteString("\n\nYou will need:\n")
		for _, tool := range verdict.RequiredTools {
			b.WriteString("- ")
			b.WriteString(tool)
			b.WriteString("\n")
		}
	}
	if verdict.Warning != "" {
		b.WriteString("\nWarning: ")
		b.WriteString(verdict.Warning)
	}
	return b.String()
}

func (c *ResponseComposer) composeSafeDIY(candidate *models.CandidateAnswer, verdict models.SafetyVerdict, skill models.SkillLevel) string {
	var b strings.Builder
	b.WriteString(skillAdapted(candidate.Text, skill))
	if verdict.Warning != "" {
		b.WriteString("\n\nNote: ")
		b.WriteString(verdict.Warning)
	}
	return b.String()
}

// skillAdapted frames the same steps for different audiences: expanded
// for novices, terse for enthusiasts, tool-free emphasis for renters.
func skillAdapted(steps string, skill models.SkillLevel) string {
	switch skill {
	case models.SkillDIYEnthusiast:
		return steps
	case models.SkillRenter:
		return "These steps avoid permanent changes to the appliance or plumbing:\n\n" + steps
	default:
		return "Take these one at a time, and don't worry if some terms are new - each step explains what to look for:\n\n" + steps
	}
}

func renterSafe(tools []string) bool {
	for _, tool := range tools {
		if !renterSafeTools[strings.ToLower(strings.TrimSpace(tool))] {
			return false
		}
	}
	return true
}

// recordUsage bumps the winning entry's usage counter without blocking
// the response.
func (c *ResponseComposer) recordUsage(candidate *models.CandidateAnswer) {
	if c.usage == nil || candidate == nil || candidate.Source != models.SourceExactMatch {
		return
	}

	id, err := strconv.ParseUint(candidate.EntryID, 10, 64)
	if err != nil {
		return
	}

	go func() {
		if err := c.usage.IncrementUsage(uint(id)); err != nil {
			c.logger.WithError(err).WithField("entry_id", id).Warn("Failed to increment usage count")
		}
	}()
}
