package repository

import (
	"strings"
	"time"

	"github.com/fixmate/backend/internal/models"
	"gorm.io/gorm"
)

// QAEntryRepositoryImpl implements QAEntryRepository
type QAEntryRepositoryImpl struct {
	db *gorm.DB
}

func NewQAEntryRepository(db *gorm.DB) models.QAEntryRepository {
	return &QAEntryRepositoryImpl{db: db}
}

func (r *QAEntryRepositoryImpl) Create(entry *models.QAEntry) error {
	return r.db.Create(entry).Error
}

func (r *QAEntryRepositoryImpl) GetByID(id uint) (*models.QAEntry, error) {
	var entry models.QAEntry
	err := r.db.First(&entry, id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *QAEntryRepositoryImpl) List(page, pageSize int, activeOnly bool) ([]models.QAEntry, int64, error) {
	var entries []models.QAEntry
	var total int64

	query := r.db.Model(&models.QAEntry{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// FindCandidates returns active entries whose question, answer, or
// keywords match any of the given terms. Final ranking happens in the
// lookup service; the database just narrows the candidate set.
func (r *QAEntryRepositoryImpl) FindCandidates(terms []string, limit int) ([]models.QAEntry, error) {
	var entries []models.QAEntry

	query := r.db.Where("is_active = ?", true)

	var conditions []string
	var args []interface{}
	for _, term := range terms {
		pattern := "%" + strings.ToLower(term) + "%"
		conditions = append(conditions,
			"(LOWER(question) LIKE ? OR LOWER(answer) LIKE ? OR LOWER(array_to_string(keywords, ' ')) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if len(conditions) > 0 {
		query = query.Where(strings.Join(conditions, " OR "), args...)
	}

	err := query.Order("success_rate DESC, usage_count DESC, created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *QAEntryRepositoryImpl) IncrementUsage(id uint) error {
	return r.db.Model(&models.QAEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now(),
		}).Error
}

func (r *QAEntryRepositoryImpl) Deactivate(id uint) error {
	return r.db.Model(&models.QAEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now(),
		}).Error
}

// ManualChunkRepositoryImpl implements ManualChunkRepository
type ManualChunkRepositoryImpl struct {
	db *gorm.DB
}

func NewManualChunkRepository(db *gorm.DB) models.ManualChunkRepository {
	return &ManualChunkRepositoryImpl{db: db}
}

func (r *ManualChunkRepositoryImpl) Create(chunk *models.ManualChunk) error {
	return r.db.Create(chunk).Error
}

func (r *ManualChunkRepositoryImpl) GetActive() ([]models.ManualChunk, error) {
	var chunks []models.ManualChunk
	err := r.db.Where("is_active = ?", true).Find(&chunks).Error
	return chunks, err
}

func (r *ManualChunkRepositoryImpl) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&models.ManualChunk{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}

// SafetyRuleRepositoryImpl implements SafetyRuleRepository
type SafetyRuleRepositoryImpl struct {
	db *gorm.DB
}

func NewSafetyRuleRepository(db *gorm.DB) models.SafetyRuleRepository {
	return &SafetyRuleRepositoryImpl{db: db}
}

func (r *SafetyRuleRepositoryImpl) Create(rule *models.SafetyRule) error {
	return r.db.Create(rule).Error
}

// GetOrdered returns rules most-specific-first: explicit priority wins,
// longer patterns break ties.
func (r *SafetyRuleRepositoryImpl) GetOrdered() ([]models.SafetyRule, error) {
	var rules []models.SafetyRule
	err := r.db.Order("priority DESC, LENGTH(pattern) DESC").
		Find(&rules).Error
	return rules, err
}

// UserContextRepositoryImpl implements UserContextRepository
type UserContextRepositoryImpl struct {
	db *gorm.DB
}

func NewUserContextRepository(db *gorm.DB) models.UserContextRepository {
	return &UserContextRepositoryImpl{db: db}
}

func (r *UserContextRepositoryImpl) GetByRequester(requesterID string) (*models.UserContextRecord, error) {
	var record models.UserContextRecord
	err := r.db.Where("requester_id = ?", requesterID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert writes a context record with last-writer-wins semantics. State
// is partitioned by requester, so no cross-requester locking is needed.
func (r *UserContextRepositoryImpl) Upsert(record *models.UserContextRecord) error {
	return r.db.Exec(`
		INSERT INTO user_contexts (requester_id, skill_level, skill_explicit, preferences, last_active, created_at, updated_at)
		VALUES (?, ?, ?, ?::jsonb, NOW(), NOW(), NOW())
		ON CONFLICT (requester_id)
		DO UPDATE SET
			skill_level = EXCLUDED.skill_level,
			skill_explicit = EXCLUDED.skill_explicit,
			preferences = EXCLUDED.preferences,
			last_active = NOW(),
			updated_at = NOW()
	`, record.RequesterID, record.SkillLevel, record.SkillExplicit, record.Preferences).Error
}

// ResolveLogRepositoryImpl implements ResolveLogRepository
type ResolveLogRepositoryImpl struct {
	db *gorm.DB
}

func NewResolveLogRepository(db *gorm.DB) models.ResolveLogRepository {
	return &ResolveLogRepositoryImpl{db: db}
}

func (r *ResolveLogRepositoryImpl) Create(log *models.ResolveLog) error {
	return r.db.Create(log).Error
}

func (r *ResolveLogRepositoryImpl) GetRecent(limit int) ([]models.ResolveLog, error) {
	var logs []models.ResolveLog
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// PopularQueryRepositoryImpl implements PopularQueryRepository
type PopularQueryRepositoryImpl struct {
	db *gorm.DB
}

func NewPopularQueryRepository(db *gorm.DB) models.PopularQueryRepository {
	return &PopularQueryRepositoryImpl{db: db}
}

func (r *PopularQueryRepositoryImpl) IncrementCount(queryText string) error {
	return r.db.Exec(`
		INSERT INTO popular_queries (query_text, search_count, last_searched, created_at, updated_at)
		VALUES (?, 1, NOW(), NOW(), NOW())
		ON CONFLICT (query_text)
		DO UPDATE SET
			search_count = popular_queries.search_count + 1,
			last_searched = NOW(),
			updated_at = NOW()
	`, queryText).Error
}

func (r *PopularQueryRepositoryImpl) GetTop(limit int) ([]models.PopularQuery, error) {
	var queries []models.PopularQuery
	err := r.db.Order("search_count DESC").
		Limit(limit).
		Find(&queries).Error
	return queries, err
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error {
	return r.db.Exec(`
		INSERT INTO system_health (service_name, status, response_time_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, NOW())
	`, serviceName, status, responseTime, errorMsg).Error
}

func (r *SystemHealthRepositoryImpl) GetServiceHealth(serviceName string) (*models.SystemHealth, error) {
	var health models.SystemHealth
	err := r.db.Where("service_name = ?", serviceName).
		Order("checked_at DESC").
		First(&health).Error
	if err != nil {
		return nil, err
	}
	return &health, nil
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth() ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.Raw(`
		SELECT DISTINCT ON (service_name) *
		FROM system_health
		ORDER BY service_name, checked_at DESC
	`).Scan(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	QAEntry      models.QAEntryRepository
	ManualChunk  models.ManualChunkRepository
	SafetyRule   models.SafetyRuleRepository
	UserContext  models.UserContextRepository
	ResolveLog   models.ResolveLogRepository
	PopularQuery models.PopularQueryRepository
	SystemHealth models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		QAEntry:      NewQAEntryRepository(db),
		ManualChunk:  NewManualChunkRepository(db),
		SafetyRule:   NewSafetyRuleRepository(db),
		UserContext:  NewUserContextRepository(db),
		ResolveLog:   NewResolveLogRepository(db),
		PopularQuery: NewPopularQueryRepository(db),
		SystemHealth: NewSystemHealthRepository(db),
	}
}
