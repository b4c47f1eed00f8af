package models

// GORM models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// StringArray for PostgreSQL array support
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}

	switch v := value.(type) {
	case string:
		if v == "{}" {
			*s = StringArray{}
			return nil
		}
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Float32Array stores an embedding vector as a PostgreSQL real[].
type Float32Array []float32

func (f Float32Array) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "{}", nil
	}
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, ",")), nil
}

func (f *Float32Array) Scan(value interface{}) error {
	if value == nil {
		*f = Float32Array{}
		return nil
	}

	switch v := value.(type) {
	case string:
		v = strings.Trim(v, "{}")
		if v == "" {
			*f = Float32Array{}
			return nil
		}
		parts := strings.Split(v, ",")
		out := make(Float32Array, 0, len(parts))
		for _, p := range parts {
			var x float32
			if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &x); err != nil {
				return fmt.Errorf("cannot parse %q as float32: %w", p, err)
			}
			out = append(out, x)
		}
		*f = out
	case []byte:
		return f.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Float32Array", value)
	}
	return nil
}

// Base model with common fields
type BaseModel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QAEntry is a curated question/answer pair served by the exact-match
// lookup stage.
type QAEntry struct {
	BaseModel
	Question        string      `json:"question" gorm:"not null"`
	Answer          string      `json:"answer" gorm:"not null"`
	Keywords        StringArray `json:"keywords" gorm:"type:text[]"`
	SupportedModels StringArray `json:"supported_models" gorm:"type:text[]"`
	SafetyLevel     string      `json:"safety_level" gorm:"default:'requires_tools';check:safety_level IN ('safe_diy','requires_tools','professional_only','dangerous')"`
	ComplexityScore int         `json:"complexity_score" gorm:"default:5;check:complexity_score BETWEEN 1 AND 10"`
	SuccessRate     float64     `json:"success_rate" gorm:"type:decimal(3,2);default:0"`
	UsageCount      int         `json:"usage_count" gorm:"default:0"`
	IsActive        bool        `json:"is_active" gorm:"default:true"`
}

// ManualChunk is a slice of appliance-manual content indexed for
// semantic search. The embedding is populated by the ingestion side.
type ManualChunk struct {
	BaseModel
	Manufacturer string       `json:"manufacturer"`
	ModelSeries  string       `json:"model_series"`
	Content      string       `json:"content" gorm:"not null"`
	ContentType  string       `json:"content_type" gorm:"default:'manual_section'"`
	Embedding    Float32Array `json:"-" gorm:"type:real[]"`
	IsActive     bool         `json:"is_active" gorm:"default:true"`
}

// SafetyRule maps a text pattern to a verdict. Treated as hot-reloadable
// configuration; Priority orders evaluation, most specific first.
type SafetyRule struct {
	BaseModel
	Pattern       string      `json:"pattern" gorm:"not null;unique"`
	Level         string      `json:"level" gorm:"not null;check:level IN ('safe_diy','requires_tools','professional_only','dangerous')"`
	Rationale     string      `json:"rationale"`
	Warning       string      `json:"warning"`
	RequiredTools StringArray `json:"required_tools" gorm:"type:text[]"`
	Priority      int         `json:"priority" gorm:"default:0"`
}

// UserContextRecord is the persisted form of a requester's context.
// Soft persisted: created on first contact, updated on every
// interaction, never deleted.
type UserContextRecord struct {
	BaseModel
	RequesterID   string    `json:"requester_id" gorm:"unique;not null"`
	SkillLevel    string    `json:"skill_level" gorm:"default:'novice';check:skill_level IN ('novice','diy_enthusiast','renter')"`
	SkillExplicit bool      `json:"skill_explicit" gorm:"default:false"`
	Preferences   string    `json:"preferences" gorm:"type:jsonb;default:'{}'"`
	LastActive    time.Time `json:"last_active" gorm:"default:NOW()"`
}

// ResolveLog records one orchestration outcome for analytics.
type ResolveLog struct {
	BaseModel
	QueryText      string `json:"query_text" gorm:"not null"`
	RequesterID    string `json:"requester_id"`
	SessionID      string `json:"session_id"`
	Resolution     string `json:"resolution"`
	SafetyLevel    string `json:"safety_level"`
	Confidence     float64
	ResponseTimeMs int    `json:"response_time_ms"`
	CorrelationID  string `json:"correlation_id"`
}

// PopularQuery represents frequently asked questions
type PopularQuery struct {
	BaseModel
	QueryText         string    `json:"query_text" gorm:"unique;not null"`
	SearchCount       int       `json:"search_count" gorm:"default:1"`
	AvgResponseTimeMs int       `json:"avg_response_time_ms" gorm:"default:0"`
	LastSearched      time.Time `json:"last_searched" gorm:"default:NOW()"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at" gorm:"default:NOW()"`
}

// Database interfaces for repository pattern
type QAEntryRepository interface {
	Create(entry *QAEntry) error
	GetByID(id uint) (*QAEntry, error)
	List(page, pageSize int, activeOnly bool) ([]QAEntry, int64, error)
	FindCandidates(terms []string, limit int) ([]QAEntry, error)
	IncrementUsage(id uint) error
	Deactivate(id uint) error
}

type ManualChunkRepository interface {
	Create(chunk *ManualChunk) error
	GetActive() ([]ManualChunk, error)
	CountActive() (int64, error)
}

type SafetyRuleRepository interface {
	Create(rule *SafetyRule) error
	GetOrdered() ([]SafetyRule, error)
}

type UserContextRepository interface {
	GetByRequester(requesterID string) (*UserContextRecord, error)
	Upsert(record *UserContextRecord) error
}

type ResolveLogRepository interface {
	Create(log *ResolveLog) error
	GetRecent(limit int) ([]ResolveLog, error)
}

type PopularQueryRepository interface {
	IncrementCount(queryText string) error
	GetTop(limit int) ([]PopularQuery, error)
}

type SystemHealthRepository interface {
	UpdateServiceHealth(serviceName, status string, responseTime int, errorMsg string) error
	GetServiceHealth(serviceName string) (*SystemHealth, error)
	GetAllServicesHealth() ([]SystemHealth, error)
}

// TableName methods for custom table names
func (QAEntry) TableName() string           { return "qa_entries" }
func (ManualChunk) TableName() string       { return "manual_chunks" }
func (SafetyRule) TableName() string        { return "safety_rules" }
func (UserContextRecord) TableName() string { return "user_contexts" }
func (ResolveLog) TableName() string        { return "resolve_logs" }
func (PopularQuery) TableName() string      { return "popular_queries" }
func (SystemHealth) TableName() string      { return "system_health" }

// Model validation methods
func (e *QAEntry) Validate() error {
	if e.Question == "" {
		return fmt.Errorf("question is required")
	}
	if e.Answer == "" {
		return fmt.Errorf("answer is required")
	}
	if e.ComplexityScore < 1 || e.ComplexityScore > 10 {
		return fmt.Errorf("complexity score must be between 1 and 10")
	}
	return validSafetyLevel(e.SafetyLevel)
}

func (r *SafetyRule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("pattern is required")
	}
	return validSafetyLevel(r.Level)
}

func (u *UserContextRecord) Validate() error {
	if u.RequesterID == "" {
		return fmt.Errorf("requester ID is required")
	}
	validLevels := map[string]bool{
		"novice":         true,
		"diy_enthusiast": true,
		"renter":         true,
	}
	if !validLevels[u.SkillLevel] {
		return fmt.Errorf("invalid skill level: %s", u.SkillLevel)
	}
	return nil
}

func validSafetyLevel(level string) error {
	validLevels := map[string]bool{
		"safe_diy":          true,
		"requires_tools":    true,
		"professional_only": true,
		"dangerous":         true,
	}
	if !validLevels[level] {
		return fmt.Errorf("invalid safety level: %s", level)
	}
	return nil
}

// GORM hooks
func (e *QAEntry) BeforeCreate(tx *gorm.DB) error {
	return e.Validate()
}

func (r *SafetyRule) BeforeCreate(tx *gorm.DB) error {
	return r.Validate()
}

func (u *UserContextRecord) BeforeCreate(tx *gorm.DB) error {
	return u.Validate()
}

func (u *UserContextRecord) BeforeUpdate(tx *gorm.DB) error {
	return u.Validate()
}
