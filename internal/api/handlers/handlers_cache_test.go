package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/models"
	"github.com/nkorzh/psyassist/backend/internal/repository"
)

func setupRouterWithMiniredis(t *testing.T) (*gin.Engine, *repository.RepositoryManager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router, repoManager := setupRouterWithRedis(t, client)
	return router, repoManager, mr
}

func TestKnowledgeServedFromCache(t *testing.T) {
	router, repoManager, mr := setupRouterWithMiniredis(t)

	w := doJSON(t, router, "POST", "/api/admin/knowledge", models.KnowledgeItemRequest{
		Category: "anxiety",
		Title:    "Grounding techniques",
		Content:  "Name five things you can see.",
		Command:  "grounding",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// First read warms the cache
	w = doJSON(t, router, "GET", "/api/knowledge/grounding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mr.Exists(fmt.Sprintf(database.KnowledgeCommandKey, "grounding")))

	// Change the row behind the cache's back. A second read returning the
	// old title proves it never touched the database.
	item, err := repoManager.KnowledgeItem.GetByCommand("grounding")
	require.NoError(t, err)
	item.Title = "Renamed in the database"
	require.NoError(t, repoManager.KnowledgeItem.Update(item))

	w = doJSON(t, router, "GET", "/api/knowledge/grounding", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.KnowledgeItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Grounding techniques", resp.Data.Title)
}

func TestKnowledgeUpdateInvalidatesCache(t *testing.T) {
	router, repoManager, mr := setupRouterWithMiniredis(t)

	item := &models.KnowledgeItem{Category: "sleep", Title: "Old title", Command: "sleep"}
	require.NoError(t, repoManager.KnowledgeItem.Create(item))

	w := doJSON(t, router, "GET", "/api/knowledge/sleep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mr.Exists(fmt.Sprintf(database.KnowledgeCommandKey, "sleep")))

	w = doJSON(t, router, "PUT", fmt.Sprintf("/api/admin/knowledge/%d", item.ID), models.KnowledgeItemRequest{
		Category: "sleep",
		Title:    "Sleep hygiene",
		Command:  "sleep",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists(fmt.Sprintf(database.KnowledgeCommandKey, "sleep")))

	w = doJSON(t, router, "GET", "/api/knowledge/sleep", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.KnowledgeItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Sleep hygiene", resp.Data.Title)
}

func TestCategoryListServedFromCache(t *testing.T) {
	router, repoManager, mr := setupRouterWithMiniredis(t)

	require.NoError(t, repoManager.KnowledgeItem.Create(&models.KnowledgeItem{
		Category: "sleep", Title: "Sleep hygiene", Command: "sleep",
	}))

	w := doJSON(t, router, "GET", "/api/knowledge?category=sleep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mr.Exists(fmt.Sprintf(database.KnowledgeCategoryKey, "sleep")))
}

func TestSetStateInvalidatesCache(t *testing.T) {
	router, _, mr := setupRouterWithMiniredis(t)

	w := doJSON(t, router, "PUT", "/api/users/123/state", models.UserStateRequest{
		CurrentContext: "faq",
		LastCommand:    "/start",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Read warms the cache
	w = doJSON(t, router, "GET", "/api/users/123/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mr.Exists(fmt.Sprintf(database.UserStateKey, int64(123))))

	// Writing new state drops the cached entry so the next read sees it
	w = doJSON(t, router, "PUT", "/api/users/123/state", models.UserStateRequest{
		CurrentContext: "consultation",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists(fmt.Sprintf(database.UserStateKey, int64(123))))

	w = doJSON(t, router, "GET", "/api/users/123/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.UserState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "consultation", resp.Data.CurrentContext)
}

func TestCacheStatsEndpoint(t *testing.T) {
	router, _, _ := setupRouterWithMiniredis(t)

	w := doJSON(t, router, "GET", "/api/admin/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	for _, key := range []string{"keyspace_hits", "keyspace_misses", "used_memory", "connected_clients"} {
		assert.Contains(t, resp.Data, key)
	}
}

func TestCacheClearEndpoint(t *testing.T) {
	router, repoManager, mr := setupRouterWithMiniredis(t)

	require.NoError(t, repoManager.KnowledgeItem.Create(&models.KnowledgeItem{
		Category: "anxiety", Title: "Grounding techniques", Command: "grounding",
	}))

	w := doJSON(t, router, "GET", "/api/knowledge/grounding", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, mr.Exists(fmt.Sprintf(database.KnowledgeCommandKey, "grounding")))

	w = doJSON(t, router, "POST", "/api/admin/cache/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists(fmt.Sprintf(database.KnowledgeCommandKey, "grounding")))
}
