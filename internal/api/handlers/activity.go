// backend/internal/api/handlers/activity.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nkorzh/psyassist/backend/internal/analytics"
	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/models"
	"github.com/nkorzh/psyassist/backend/internal/repository"
	"github.com/nkorzh/psyassist/backend/pkg/utils"
)

const userStateCacheTTL = 30 * time.Minute

// ActivityHandler covers user state, the action log, exercise feedback
// and the analytics reports built on top of them.
type ActivityHandler struct {
	repoManager *repository.RepositoryManager
	cache       *database.Cache
	stats       *analytics.Service
	logger      *logrus.Logger
}

func NewActivityHandler(
	repoManager *repository.RepositoryManager,
	cache *database.Cache,
	stats *analytics.Service,
	logger *logrus.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		repoManager: repoManager,
		cache:       cache,
		stats:       stats,
		logger:      logger,
	}
}

// HandleGetState returns the current conversational state for a user
func (h *ActivityHandler) HandleGetState(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if state, err := h.cache.GetCachedUserState(ctx, userID); err == nil {
		h.logger.Debug("User state served from cache")
		utils.SuccessResponse(c, http.StatusOK, "", state)
		return
	}

	state, err := h.repoManager.UserState.Get(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "User state not found", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to fetch user state")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to fetch user state", err)
		return
	}

	if err := h.cache.CacheUserState(ctx, state, userStateCacheTTL); err != nil {
		h.logger.WithError(err).Warn("Failed to cache user state")
	}

	utils.SuccessResponse(c, http.StatusOK, "", state)
}

// HandleSetState upserts the conversational state for a user
func (h *ActivityHandler) HandleSetState(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID", err)
		return
	}

	var req models.UserStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	state := &models.UserState{
		UserID:         userID,
		CurrentContext: req.CurrentContext,
		LastCommand:    req.LastCommand,
	}

	if err := h.repoManager.UserState.Set(state); err != nil {
		h.logger.WithError(err).Error("Failed to set user state")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to set user state", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.cache.InvalidateUserState(ctx, userID); err != nil {
		h.logger.WithError(err).Warn("Failed to invalidate user state cache")
	}

	utils.SuccessResponse(c, http.StatusOK, "User state updated", state)
}

// HandleLogAction appends one entry to the action log
func (h *ActivityHandler) HandleLogAction(c *gin.Context) {
	var req models.UserActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	action := &models.UserAction{
		UserID:     req.UserID,
		ActionType: req.ActionType,
		Content:    req.Content,
	}

	if err := h.repoManager.UserAction.Log(action); err != nil {
		h.logger.WithError(err).Error("Failed to log user action")
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to log user action", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Action logged", action)
}

// HandleRecentActions lists the most recent log entries
func (h *ActivityHandler) HandleRecentActions(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)

	actions, err := h.repoManager.UserAction.GetRecent(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list user actions")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list user actions", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", actions)
}

// HandleCreateFeedback stores exercise feedback from a user
func (h *ActivityHandler) HandleCreateFeedback(c *gin.Context) {
	var req models.ExerciseFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	feedback := &models.ExerciseFeedback{
		UserID:       req.UserID,
		ExerciseID:   req.ExerciseID,
		FeedbackText: req.FeedbackText,
		Context:      req.Context,
	}

	if req.ExerciseDate != "" {
		exerciseDate, err := time.Parse(time.RFC3339, req.ExerciseDate)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid exercise_date, expected RFC3339", err)
			return
		}
		feedback.ExerciseDate = exerciseDate
	} else {
		feedback.ExerciseDate = time.Now().UTC()
	}

	if err := h.repoManager.ExerciseFeedback.Create(feedback); err != nil {
		h.logger.WithError(err).Error("Failed to create exercise feedback")
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to create exercise feedback", err)
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Feedback recorded", feedback)
}

// HandleListFeedback lists exercise feedback, optionally by user or exercise
func (h *ActivityHandler) HandleListFeedback(c *gin.Context) {
	if exerciseID := c.Query("exercise_id"); exerciseID != "" {
		feedback, err := h.repoManager.ExerciseFeedback.GetByExercise(exerciseID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list feedback", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "", feedback)
		return
	}

	if rawUserID := c.Query("user_id"); rawUserID != "" {
		userID, err := strconv.ParseInt(rawUserID, 10, 64)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid user ID", err)
			return
		}
		feedback, err := h.repoManager.ExerciseFeedback.GetByUser(userID)
		if err != nil {
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list feedback", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "", feedback)
		return
	}

	limit := parseLimit(c.Query("limit"), 50)
	feedback, err := h.repoManager.ExerciseFeedback.GetRecent(limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list feedback", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", feedback)
}

// HandleEngagementReport returns engagement statistics for a date range
func (h *ActivityHandler) HandleEngagementReport(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	stats, err := h.stats.GetEngagementStats(from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute engagement stats")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to compute engagement stats", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", stats)
}

// HandleExerciseReport returns exercise statistics for a date range
func (h *ActivityHandler) HandleExerciseReport(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	stats, err := h.stats.GetExerciseStats(from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute exercise stats")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to compute exercise stats", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", stats)
}

// HandleUserReport returns user-base statistics for a date range
func (h *ActivityHandler) HandleUserReport(c *gin.Context) {
	from, to, err := parseDateRange(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	stats, err := h.stats.GetUserStats(from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to compute user stats")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to compute user stats", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", stats)
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}

// parseDateRange reads from/to query params, defaulting to the last 7 days
func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}

	return from, to, nil
}
