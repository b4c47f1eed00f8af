package services

import (
	"context"
	"testing"
	"time"

	"github.com/fixmate/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryContextRepo struct {
	records map[string]*models.UserContextRecord
	upserts int
}

func newMemoryContextRepo() *memoryContextRepo {
	return &memoryContextRepo{records: map[string]*models.UserContextRecord{}}
}

func (m *memoryContextRepo) GetByRequester(requesterID string) (*models.UserContextRecord, error) {
	record, ok := m.records[requesterID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memoryContextRepo) Upsert(record *models.UserContextRecord) error {
	m.upserts++
	copied := *record
	m.records[record.RequesterID] = &copied
	return nil
}

type countingCache struct {
	stored map[string]*models.UserContext
	hits   int
}

func newCountingCache() *countingCache {
	return &countingCache{stored: map[string]*models.UserContext{}}
}

func (c *countingCache) GetCachedUserContext(ctx context.Context, requesterID string) (*models.UserContext, error) {
	if uctx, ok := c.stored[requesterID]; ok {
		c.hits++
		return uctx, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (c *countingCache) CacheUserContext(ctx context.Context, requesterID string, uctx *models.UserContext, expiration time.Duration) error {
	c.stored[requesterID] = uctx
	return nil
}

func (c *countingCache) InvalidateUserContext(ctx context.Context, requesterID string) error {
	delete(c.stored, requesterID)
	return nil
}

func TestContextGetCreatesDefaultOnFirstContact(t *testing.T) {
	repo := newMemoryContextRepo()
	resolver := NewContextResolver(repo, nil, testLogger())

	uctx, err := resolver.Get(context.Background(), "new-user")
	require.NoError(t, err)

	assert.Equal(t, models.SkillNovice, uctx.SkillLevel)
	assert.False(t, uctx.SkillExplicit)
	assert.Equal(t, 1, repo.upserts, "first contact persists a default row")
}

func TestContextGetEmptyRequesterSkipsStore(t *testing.T) {
	repo := newMemoryContextRepo()
	resolver := NewContextResolver(repo, nil, testLogger())

	uctx, err := resolver.Get(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, models.SkillNovice, uctx.SkillLevel)
	assert.Equal(t, 0, repo.upserts)
}

func TestContextGetServedFromCache(t *testing.T) {
	repo := newMemoryContextRepo()
	cache := newCountingCache()
	resolver := NewContextResolver(repo, cache, testLogger())

	_, err := resolver.Get(context.Background(), "u1")
	require.NoError(t, err)

	_, err = resolver.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, cache.hits, "second read must come from the cache")
	assert.Equal(t, 1, repo.upserts)
}

func TestContextDeclaredSkillSticks(t *testing.T) {
	resolver := NewContextResolver(newMemoryContextRepo(), nil, testLogger())

	uctx, err := resolver.Update(context.Background(), "u1", ContextPatch{
		SkillLevel:    models.SkillDIYEnthusiast,
		SkillDeclared: true,
	})
	require.NoError(t, err)
	require.Equal(t, models.SkillDIYEnthusiast, uctx.SkillLevel)
	require.True(t, uctx.SkillExplicit)

	// A later inference must not override the declaration.
	uctx, err = resolver.Update(context.Background(), "u1", ContextPatch{
		SkillLevel: models.SkillNovice,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SkillDIYEnthusiast, uctx.SkillLevel)
	assert.True(t, uctx.SkillExplicit)
}

func TestContextInferredSkillAppliesWhenUndeclared(t *testing.T) {
	resolver := NewContextResolver(newMemoryContextRepo(), nil, testLogger())

	uctx, err := resolver.Update(context.Background(), "u1", ContextPatch{
		SkillLevel: models.SkillRenter,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SkillRenter, uctx.SkillLevel)
	assert.False(t, uctx.SkillExplicit)
}

func TestContextUpdateMergesPreferences(t *testing.T) {
	repo := newMemoryContextRepo()
	resolver := NewContextResolver(repo, nil, testLogger())

	_, err := resolver.Update(context.Background(), "u1", ContextPatch{
		Preferences: map[string]string{"appliance_model": "LG-DLE7300"},
	})
	require.NoError(t, err)

	uctx, err := resolver.Update(context.Background(), "u1", ContextPatch{
		Preferences: map[string]string{"home_type": "apartment"},
	})
	require.NoError(t, err)

	assert.Equal(t, "LG-DLE7300", uctx.Preferences["appliance_model"])
	assert.Equal(t, "apartment", uctx.Preferences["home_type"])
}

func TestContextUpdateSurvivesRoundTrip(t *testing.T) {
	repo := newMemoryContextRepo()
	resolver := NewContextResolver(repo, nil, testLogger())

	_, err := resolver.Update(context.Background(), "u1", ContextPatch{
		SkillLevel:    models.SkillRenter,
		SkillDeclared: true,
		Preferences:   map[string]string{"appliance_model": "WF45"},
	})
	require.NoError(t, err)

	// Fresh resolver, same store: context must rebuild from the record.
	reloaded := NewContextResolver(repo, nil, testLogger())
	uctx, err := reloaded.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, models.SkillRenter, uctx.SkillLevel)
	assert.True(t, uctx.SkillExplicit)
	assert.Equal(t, "WF45", uctx.Preferences["appliance_model"])
}

func TestContextUpdateInvalidatesCache(t *testing.T) {
	repo := newMemoryContextRepo()
	cache := newCountingCache()
	resolver := NewContextResolver(repo, cache, testLogger())

	_, err := resolver.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Contains(t, cache.stored, "u1")

	_, err = resolver.Update(context.Background(), "u1", ContextPatch{
		SkillLevel:    models.SkillDIYEnthusiast,
		SkillDeclared: true,
	})
	require.NoError(t, err)

	assert.NotContains(t, cache.stored, "u1")
}
