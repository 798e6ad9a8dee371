// backend/internal/api/handlers/cache.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/pkg/utils"
)

// CacheHandler exposes cache operations to operators
type CacheHandler struct {
	cache  *database.Cache
	logger *logrus.Logger
}

func NewCacheHandler(cache *database.Cache, logger *logrus.Logger) *CacheHandler {
	return &CacheHandler{
		cache:  cache,
		logger: logger,
	}
}

// HandleStats returns Redis keyspace and memory statistics
func (h *CacheHandler) HandleStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.cache.GetCacheStats(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read cache stats")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to read cache stats", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", stats)
}

// HandleClear flushes the entire cache database
func (h *CacheHandler) HandleClear(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.cache.ClearAllCache(ctx); err != nil {
		h.logger.WithError(err).Error("Failed to clear cache")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to clear cache", err)
		return
	}

	h.logger.Warn("Cache cleared by admin request")
	utils.SuccessResponse(c, http.StatusOK, "Cache cleared", nil)
}
