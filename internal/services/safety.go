package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/pkg/utils"
	"github.com/sirupsen/logrus"
)

const verdictCacheTTL = 24 * time.Hour

// SafetyClassifier maps a candidate answer to a safety verdict via an
// ordered rule table. Rules are treated as hot-reloadable configuration
// and are read-locked only for the duration of a lookup. Verdicts are
// cached for 24 hours keyed by a hash of the candidate text.
type SafetyClassifier struct {
	rulesMu sync.RWMutex
	rules   []models.SafetyRule

	cacheMu sync.Mutex
	cache   map[string]cachedVerdict

	logger *logrus.Logger
}

type cachedVerdict struct {
	verdict  models.SafetyVerdict
	cachedAt time.Time
}

func NewSafetyClassifier(rules []models.SafetyRule, logger *logrus.Logger) *SafetyClassifier {
	c := &SafetyClassifier{
		cache:  make(map[string]cachedVerdict),
		logger: logger,
	}
	c.SetRules(rules)
	return c
}

// SetRules replaces the rule table. Rules are ordered most-specific
// first: explicit priority, then pattern length.
func (c *SafetyClassifier) SetRules(rules []models.SafetyRule) {
	ordered := make([]models.SafetyRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return len(ordered[i].Pattern) > len(ordered[j].Pattern)
	})

	c.rulesMu.Lock()
	c.rules = ordered
	c.rulesMu.Unlock()

	// A new rule table invalidates prior verdicts.
	c.cacheMu.Lock()
	c.cache = make(map[string]cachedVerdict)
	c.cacheMu.Unlock()

	c.logger.WithField("rules", len(ordered)).Info("Safety rule table loaded")
}

// ReloadFrom refreshes the rule table from the store.
func (c *SafetyClassifier) ReloadFrom(repo models.SafetyRuleRepository) error {
	rules, err := repo.GetOrdered()
	if err != nil {
		return err
	}
	c.SetRules(rules)
	return nil
}

// Classify evaluates the rule table top-down against the candidate
// text; the first matching rule wins. No rule matching defaults to
// requires_tools with a generic caution.
func (c *SafetyClassifier) Classify(ctx context.Context, candidate *models.CandidateAnswer) (*models.SafetyVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.ToLower(candidate.Text)
	key := utils.MD5Hash(text)

	if verdict, ok := c.cachedVerdict(key); ok {
		return verdict, nil
	}

	c.rulesMu.RLock()
	rules := c.rules
	c.rulesMu.RUnlock()

	verdict := GenericCautionVerdict()
	for _, rule := range rules {
		if strings.Contains(text, strings.ToLower(rule.Pattern)) {
			verdict = models.SafetyVerdict{
				Level:         models.SafetyLevel(rule.Level),
				Rationale:     rule.Rationale,
				Warning:       rule.Warning,
				RequiredTools: append([]string(nil), rule.RequiredTools...),
			}
			break
		}
	}

	c.storeVerdict(key, verdict)
	return &verdict, nil
}

func (c *SafetyClassifier) cachedVerdict(key string) (*models.SafetyVerdict, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.cachedAt) > verdictCacheTTL {
		delete(c.cache, key)
		return nil, false
	}

	verdict := entry.verdict
	return &verdict, true
}

func (c *SafetyClassifier) storeVerdict(key string, verdict models.SafetyVerdict) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	// Opportunistic eviction of anything already stale.
	for k, entry := range c.cache {
		if time.Since(entry.cachedAt) > verdictCacheTTL {
			delete(c.cache, k)
		}
	}

	c.cache[key] = cachedVerdict{verdict: verdict, cachedAt: time.Now()}
}

// GenericCautionVerdict is the default when no rule matches:
// uncertainty leans toward caution, never toward safe_diy.
func GenericCautionVerdict() models.SafetyVerdict {
	return models.SafetyVerdict{
		Level:     models.SafetyRequiresTools,
		Rationale: "No specific safety rule matched this repair",
		Warning:   "Proceed carefully and disconnect power and water before starting. Stop and call a professional if anything is unclear.",
	}
}

// ConservativeVerdict is the fail-closed verdict used when safety
// classification is unavailable.
func ConservativeVerdict() models.SafetyVerdict {
	return models.SafetyVerdict{
		Level:     models.SafetyProfessionalOnly,
		Rationale: "Safety classification was unavailable, so this repair defaults to a professional referral",
		Warning:   "The safety of this repair could not be verified.",
	}
}
