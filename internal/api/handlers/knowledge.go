// backend/internal/api/handlers/knowledge.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/models"
	"github.com/nkorzh/psyassist/backend/internal/repository"
	"github.com/nkorzh/psyassist/backend/pkg/utils"
)

const knowledgeCacheTTL = 10 * time.Minute

type KnowledgeHandler struct {
	repoManager *repository.RepositoryManager
	cache       *database.Cache
	logger      *logrus.Logger
}

func NewKnowledgeHandler(
	repoManager *repository.RepositoryManager,
	cache *database.Cache,
	logger *logrus.Logger,
) *KnowledgeHandler {
	return &KnowledgeHandler{
		repoManager: repoManager,
		cache:       cache,
		logger:      logger,
	}
}

// HandleList returns knowledge articles, optionally filtered by category
func (h *KnowledgeHandler) HandleList(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if category != "" {
		if items, err := h.cache.GetCachedCategoryItems(ctx, category); err == nil {
			h.logger.Debug("Category items served from cache")
			utils.SuccessResponse(c, http.StatusOK, "", items)
			return
		}

		items, err := h.repoManager.KnowledgeItem.GetByCategory(category)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list knowledge items")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list knowledge items", err)
			return
		}

		if err := h.cache.CacheCategoryItems(ctx, category, items, knowledgeCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache category items")
		}

		utils.SuccessResponse(c, http.StatusOK, "", items)
		return
	}

	items, err := h.repoManager.KnowledgeItem.GetAll()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list knowledge items")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list knowledge items", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", items)
}

// HandleGetByCommand serves one article by its bot command, logging a
// knowledge_view action for the requesting user when one is identified.
func (h *KnowledgeHandler) HandleGetByCommand(c *gin.Context) {
	command := c.Param("command")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	item, err := h.cache.GetCachedKnowledgeItem(ctx, command)
	if err != nil {
		item, err = h.repoManager.KnowledgeItem.GetByCommand(command)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.ErrorResponse(c, http.StatusNotFound, "Knowledge item not found", nil)
				return
			}
			h.logger.WithError(err).Error("Failed to fetch knowledge item")
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to fetch knowledge item", err)
			return
		}

		if err := h.cache.CacheKnowledgeItem(ctx, item, knowledgeCacheTTL); err != nil {
			h.logger.WithError(err).Warn("Failed to cache knowledge item")
		}
	} else {
		h.logger.Debug("Knowledge item served from cache")
	}

	if userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64); err == nil && userID != 0 {
		go h.trackKnowledgeView(userID, command)
	}

	utils.SuccessResponse(c, http.StatusOK, "", item)
}

// HandleCreate adds a new knowledge article
func (h *KnowledgeHandler) HandleCreate(c *gin.Context) {
	var req models.KnowledgeItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	item := &models.KnowledgeItem{
		Category: req.Category,
		Title:    req.Title,
		Content:  req.Content,
		Command:  req.Command,
	}

	if err := h.repoManager.KnowledgeItem.Create(item); err != nil {
		h.logger.WithError(err).Error("Failed to create knowledge item")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create knowledge item", err)
		return
	}

	h.invalidate(c, item)

	h.logger.WithFields(logrus.Fields{
		"id":      item.ID,
		"command": item.Command,
	}).Info("Knowledge item created")

	utils.SuccessResponse(c, http.StatusCreated, "Knowledge item created", item)
}

// HandleUpdate edits an existing knowledge article
func (h *KnowledgeHandler) HandleUpdate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid knowledge item ID", err)
		return
	}

	var req models.KnowledgeItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	item, err := h.repoManager.KnowledgeItem.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Knowledge item not found", nil)
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to fetch knowledge item", err)
		return
	}

	item.Category = req.Category
	item.Title = req.Title
	item.Content = req.Content
	item.Command = req.Command

	if err := h.repoManager.KnowledgeItem.Update(item); err != nil {
		h.logger.WithError(err).Error("Failed to update knowledge item")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update knowledge item", err)
		return
	}

	h.invalidate(c, item)

	utils.SuccessResponse(c, http.StatusOK, "Knowledge item updated", item)
}

// HandleCategories lists distinct knowledge categories
func (h *KnowledgeHandler) HandleCategories(c *gin.Context) {
	categories, err := h.repoManager.KnowledgeItem.Categories()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list categories")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", categories)
}

func (h *KnowledgeHandler) invalidate(c *gin.Context, item *models.KnowledgeItem) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.cache.InvalidateKnowledge(ctx, item.Command, item.Category); err != nil {
		h.logger.WithError(err).Warn("Failed to invalidate knowledge cache")
	}
}

func (h *KnowledgeHandler) trackKnowledgeView(userID int64, command string) {
	action := &models.UserAction{
		UserID:     userID,
		ActionType: models.ActionKnowledgeView,
		Content:    &command,
	}
	if err := h.repoManager.UserAction.Log(action); err != nil {
		h.logger.WithError(err).Warn("Failed to log knowledge view")
	}
}
