package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fixmate/backend/internal/database"
	"github.com/fixmate/backend/internal/models"
	"github.com/fixmate/backend/internal/repository"
	"github.com/fixmate/backend/internal/services"
	"github.com/fixmate/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// QueryResolver runs a query through the orchestration pipeline.
type QueryResolver interface {
	Resolve(ctx context.Context, req models.QueryRequest) (*models.OrchestrationResult, error)
}

type ResolveHandler struct {
	resolver    QueryResolver
	contexts    *services.ContextResolver
	repoManager *repository.RepositoryManager
	cache       *database.Cache
	logger      *logrus.Logger
}

func NewResolveHandler(
	resolver QueryResolver,
	contexts *services.ContextResolver,
	repoManager *repository.RepositoryManager,
	cache *database.Cache,
	logger *logrus.Logger,
) *ResolveHandler {
	return &ResolveHandler{
		resolver:    resolver,
		contexts:    contexts,
		repoManager: repoManager,
		cache:       cache,
		logger:      logger,
	}
}

// HandleResolve answers a troubleshooting question.
func (h *ResolveHandler) HandleResolve(c *gin.Context) {
	startTime := time.Now()

	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid resolve request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	requesterID := h.requesterID(c, req)

	h.logger.WithFields(logrus.Fields{
		"requester_id": requesterID,
		"ip_address":   c.ClientIP(),
	}).Info("Processing resolve request")

	ctx := c.Request.Context()

	// Answers are skill-adapted, so cached results are scoped to the
	// requester as well as the query.
	cacheKey := h.resolveCacheKey(req.Query, requesterID)
	cached := &models.ResolveResponse{}
	if h.cache != nil {
		if err := h.cache.GetCachedResolveResult(ctx, cacheKey, cached); err == nil {
			h.logger.Debug("Resolve result served from cache")
			cached.ResponseTime = int(time.Since(startTime).Milliseconds())
			utils.SuccessResponse(c, http.StatusOK, "Query resolved", cached)
			return
		}
	}

	result, err := h.resolver.Resolve(ctx, models.QueryRequest{
		Text:        req.Query,
		SessionID:   req.SessionID,
		RequesterID: requesterID,
		ReceivedAt:  startTime,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Query cannot be empty", nil)
			return
		}
		if errors.Is(err, services.ErrQueryTooLong) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Query too long (max 2000 characters)", nil)
			return
		}
		h.logger.WithError(err).Error("Resolve failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Resolve failed", err)
		return
	}

	response := toResolveResponse(result)

	if h.cache != nil && result.Resolution != models.ResolutionKnowledgeGap {
		if err := h.cache.CacheResolveResult(ctx, cacheKey, response, 5*time.Minute); err != nil {
			h.logger.WithError(err).Warn("Failed to cache resolve result")
		}
	}

	go h.trackResolve(req, requesterID, result)
	go h.updatePopularQueries(req.Query)

	h.logger.WithFields(logrus.Fields{
		"resolution":     result.Resolution,
		"safety_level":   result.Verdict.Level,
		"response_time":  result.Elapsed.Milliseconds(),
		"correlation_id": result.CorrelationID,
	}).Info("Resolve completed")

	utils.SuccessResponse(c, http.StatusOK, "Query resolved", response)
}

// HandleSuggestions returns popular queries matching a prefix.
func (h *ResolveHandler) HandleSuggestions(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Query parameter 'q' is required", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if limit > 10 {
		limit = 10
	}

	popular, err := h.repoManager.PopularQuery.GetTop(50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get suggestions")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get suggestions", err)
		return
	}

	queryLower := strings.ToLower(query)
	filtered := make([]models.PopularQuery, 0, limit)
	for _, suggestion := range popular {
		if strings.Contains(strings.ToLower(suggestion.QueryText), queryLower) {
			filtered = append(filtered, suggestion)
			if len(filtered) >= limit {
				break
			}
		}
	}

	utils.SuccessResponse(c, http.StatusOK, "Suggestions retrieved", filtered)
}

// HandleContextUpdate stores a requester's declared skill level and
// preferences.
func (h *ResolveHandler) HandleContextUpdate(c *gin.Context) {
	var req models.ContextUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid context format", err)
		return
	}

	patch := services.ContextPatch{Preferences: req.Preferences}
	if req.SkillLevel != "" {
		if !validSkillLevel(req.SkillLevel) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid skill level", nil)
			return
		}
		patch.SkillLevel = models.SkillLevel(req.SkillLevel)
		patch.SkillDeclared = true
	}

	uctx, err := h.contexts.Update(c.Request.Context(), req.RequesterID, patch)
	if err != nil {
		h.logger.WithError(err).Error("Failed to update context")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update context", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Context updated", uctx)
}

// HandleGetContext returns a requester's stored context.
func (h *ResolveHandler) HandleGetContext(c *gin.Context) {
	requesterID := c.Param("requester_id")
	if requesterID == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Requester ID is required", nil)
		return
	}

	uctx, err := h.contexts.Get(c.Request.Context(), requesterID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get context")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get context", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Context retrieved", uctx)
}

// HandleListEntries lists curated Q&A entries.
func (h *ResolveHandler) HandleListEntries(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	entries, total, err := h.repoManager.QAEntry.List(page, pageSize, true)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list entries")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Entries retrieved", gin.H{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// HandleGetEntry returns a single curated Q&A entry.
func (h *ResolveHandler) HandleGetEntry(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid entry ID", nil)
		return
	}

	entry, err := h.repoManager.QAEntry.GetByID(uint(id))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Entry not found", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Entry retrieved", entry)
}

// Helper methods

func (h *ResolveHandler) requesterID(c *gin.Context, req models.ResolveRequest) string {
	if req.RequesterID != "" {
		return req.RequesterID
	}
	if requester := c.GetHeader("X-Requester-ID"); requester != "" {
		return requester
	}

	// A well-formed session id is already a stable handle for an
	// otherwise anonymous requester.
	if utils.ValidateSessionID(req.SessionID) {
		return req.SessionID
	}

	// Anonymous requesters get a stable fingerprint so their answers
	// still adapt across a session.
	return utils.GenerateSessionID(c.ClientIP() + c.GetHeader("User-Agent"))
}

func (h *ResolveHandler) resolveCacheKey(query, requesterID string) string {
	return utils.MD5Hash(strings.ToLower(strings.TrimSpace(query)) + "|" + requesterID)
}

func (h *ResolveHandler) trackResolve(req models.ResolveRequest, requesterID string, result *models.OrchestrationResult) {
	log := &models.ResolveLog{
		QueryText:      req.Query,
		RequesterID:    requesterID,
		SessionID:      req.SessionID,
		Resolution:     string(result.Resolution),
		SafetyLevel:    string(result.Verdict.Level),
		Confidence:     result.Confidence,
		ResponseTimeMs: int(result.Elapsed.Milliseconds()),
		CorrelationID:  result.CorrelationID,
	}

	if err := h.repoManager.ResolveLog.Create(log); err != nil {
		h.logger.WithError(err).Error("Failed to track resolve")
	}
}

func (h *ResolveHandler) updatePopularQueries(query string) {
	if err := h.repoManager.PopularQuery.IncrementCount(strings.ToLower(strings.TrimSpace(query))); err != nil {
		h.logger.WithError(err).Error("Failed to update popular queries")
	}
}

func toResolveResponse(result *models.OrchestrationResult) *models.ResolveResponse {
	return &models.ResolveResponse{
		Answer:        result.Answer,
		Source:        string(result.Source),
		Confidence:    result.Confidence,
		Resolution:    string(result.Resolution),
		SafetyLevel:   string(result.Verdict.Level),
		Warning:       result.Verdict.Warning,
		RequiredTools: result.Verdict.RequiredTools,
		GapReason:     result.GapReason,
		ResponseTime:  int(result.Elapsed.Milliseconds()),
		CorrelationID: result.CorrelationID,
	}
}

func validSkillLevel(level string) bool {
	switch models.SkillLevel(level) {
	case models.SkillNovice, models.SkillDIYEnthusiast, models.SkillRenter:
		return true
	}
	return false
}
