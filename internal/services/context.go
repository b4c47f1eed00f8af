package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// ContextCache is the subset of the redis cache the resolver needs.
type ContextCache interface {
	GetCachedUserContext(ctx context.Context, requesterID string) (*models.UserContext, error)
	CacheUserContext(ctx context.Context, requesterID string, uctx *models.UserContext, expiration time.Duration) error
	InvalidateUserContext(ctx context.Context, requesterID string) error
}

// ContextPatch carries a partial update to a requester's context.
type ContextPatch struct {
	SkillLevel    models.SkillLevel
	SkillDeclared bool
	Preferences   map[string]string
}

// ContextResolver retrieves and stores per-requester context with a
// read-through cache over the persistent store.
type ContextResolver struct {
	repo     models.UserContextRepository
	cache    ContextCache
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewContextResolver(repo models.UserContextRepository, cache ContextCache, logger *logrus.Logger) *ContextResolver {
	return &ContextResolver{
		repo:     repo,
		cache:    cache,
		cacheTTL: 5 * time.Minute,
		logger:   logger,
	}
}

// Get returns the requester's context, creating a default novice
// context on first contact. Cache misses fall through to the store.
func (r *ContextResolver) Get(ctx context.Context, requesterID string) (*models.UserContext, error) {
	if requesterID == "" {
		return models.DefaultUserContext(""), nil
	}

	if r.cache != nil {
		if cached, err := r.cache.GetCachedUserContext(ctx, requesterID); err == nil {
			return cached, nil
		}
	}

	record, err := r.repo.GetByRequester(requesterID)
	if err != nil {
		// First contact: persist a default so later updates have a row.
		uctx := models.DefaultUserContext(requesterID)
		if err := r.persist(uctx); err != nil {
			return nil, err
		}
		r.cacheContext(ctx, uctx)
		return uctx, nil
	}

	uctx := recordToContext(record)
	r.cacheContext(ctx, uctx)
	return uctx, nil
}

// Update applies a patch with last-writer-wins semantics. An explicitly
// declared skill level always sticks; an inferred one never overwrites
// a level the requester declared.
func (r *ContextResolver) Update(ctx context.Context, requesterID string, patch ContextPatch) (*models.UserContext, error) {
	current, err := r.Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	if patch.SkillLevel != "" {
		if patch.SkillDeclared {
			current.SkillLevel = patch.SkillLevel
			current.SkillExplicit = true
		} else if !current.SkillExplicit {
			current.SkillLevel = patch.SkillLevel
		}
	}

	if current.Preferences == nil {
		current.Preferences = map[string]string{}
	}
	for k, v := range patch.Preferences {
		current.Preferences[k] = v
	}
	current.LastActive = time.Now()

	if err := r.persist(current); err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.InvalidateUserContext(ctx, requesterID); err != nil {
			r.logger.WithError(err).Warn("Failed to invalidate context cache")
		}
	}

	return current, nil
}

func (r *ContextResolver) persist(uctx *models.UserContext) error {
	prefs, err := json.Marshal(uctx.Preferences)
	if err != nil {
		return err
	}

	return r.repo.Upsert(&models.UserContextRecord{
		RequesterID:   uctx.RequesterID,
		SkillLevel:    string(uctx.SkillLevel),
		SkillExplicit: uctx.SkillExplicit,
		Preferences:   string(prefs),
		LastActive:    uctx.LastActive,
	})
}

func (r *ContextResolver) cacheContext(ctx context.Context, uctx *models.UserContext) {
	if r.cache == nil {
		return
	}
	if err := r.cache.CacheUserContext(ctx, uctx.RequesterID, uctx, r.cacheTTL); err != nil {
		r.logger.WithError(err).Debug("Failed to cache user context")
	}
}

func recordToContext(record *models.UserContextRecord) *models.UserContext {
	prefs := map[string]string{}
	if record.Preferences != "" {
		// Malformed preference blobs degrade to an empty map.
		_ = json.Unmarshal([]byte(record.Preferences), &prefs)
	}

	return &models.UserContext{
		RequesterID:   record.RequesterID,
		SkillLevel:    models.SkillLevel(record.SkillLevel),
		SkillExplicit: record.SkillExplicit,
		Preferences:   prefs,
		LastActive:    record.LastActive,
	}
}
