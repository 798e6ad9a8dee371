package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/nkorzh/psyassist/backend/internal/analytics"
	"github.com/nkorzh/psyassist/backend/internal/database"
	"github.com/nkorzh/psyassist/backend/internal/models"
	"github.com/nkorzh/psyassist/backend/internal/repository"
)

// setupRouter wires the handlers against an in-memory database. The cache
// points at a closed port, so every cache call falls through to the DB.
func setupRouter(t *testing.T) (*gin.Engine, *repository.RepositoryManager) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return setupRouterWithRedis(t, client)
}

// setupRouterWithRedis wires the same handlers against a caller-provided
// Redis client, for tests that exercise the cache paths.
func setupRouterWithRedis(t *testing.T, client *redis.Client) (*gin.Engine, *repository.RepositoryManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.KnowledgeItem{},
		&models.UserState{},
		&models.UserAction{},
		&models.ExerciseFeedback{},
	))

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	repoManager := repository.NewRepositoryManager(db)
	cache := database.NewCache(client, logger)
	statsService := analytics.NewService(db, logger)

	knowledgeHandler := NewKnowledgeHandler(repoManager, cache, logger)
	activityHandler := NewActivityHandler(repoManager, cache, statsService, logger)
	cacheHandler := NewCacheHandler(cache, logger)

	router := gin.New()
	router.GET("/api/knowledge", knowledgeHandler.HandleList)
	router.GET("/api/knowledge/categories", knowledgeHandler.HandleCategories)
	router.GET("/api/knowledge/:command", knowledgeHandler.HandleGetByCommand)
	router.POST("/api/admin/knowledge", knowledgeHandler.HandleCreate)
	router.PUT("/api/admin/knowledge/:id", knowledgeHandler.HandleUpdate)
	router.GET("/api/users/:id/state", activityHandler.HandleGetState)
	router.PUT("/api/users/:id/state", activityHandler.HandleSetState)
	router.POST("/api/actions", activityHandler.HandleLogAction)
	router.POST("/api/feedback", activityHandler.HandleCreateFeedback)
	router.GET("/api/admin/feedback", activityHandler.HandleListFeedback)
	router.GET("/api/admin/reports/engagement", activityHandler.HandleEngagementReport)
	router.GET("/api/admin/reports/exercises", activityHandler.HandleExerciseReport)
	router.GET("/api/admin/reports/users", activityHandler.HandleUserReport)
	router.GET("/api/admin/cache/stats", cacheHandler.HandleStats)
	router.POST("/api/admin/cache/clear", cacheHandler.HandleClear)

	return router, repoManager
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestKnowledgeCreateAndGet(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/admin/knowledge", models.KnowledgeItemRequest{
		Category: "anxiety",
		Title:    "Grounding techniques",
		Content:  "Name five things you can see.",
		Command:  "grounding",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "GET", "/api/knowledge/grounding", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                 `json:"success"`
		Data    models.KnowledgeItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Grounding techniques", resp.Data.Title)
	assert.False(t, resp.Data.CreatedAt.IsZero())
}

func TestKnowledgeGetMissing(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "GET", "/api/knowledge/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKnowledgeCreateInvalid(t *testing.T) {
	router, _ := setupRouter(t)

	// Title is required by the binding
	w := doJSON(t, router, "POST", "/api/admin/knowledge", models.KnowledgeItemRequest{
		Category: "anxiety",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKnowledgeUpdate(t *testing.T) {
	router, repoManager := setupRouter(t)

	item := &models.KnowledgeItem{Title: "Old title", Command: "sleep", Category: "sleep"}
	require.NoError(t, repoManager.KnowledgeItem.Create(item))

	w := doJSON(t, router, "PUT", fmt.Sprintf("/api/admin/knowledge/%d", item.ID), models.KnowledgeItemRequest{
		Category: "sleep",
		Title:    "Sleep hygiene",
		Command:  "sleep",
	})
	require.Equal(t, http.StatusOK, w.Code)

	updated, err := repoManager.KnowledgeItem.GetByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sleep hygiene", updated.Title)
}

func TestUserStateRoundTrip(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "PUT", "/api/users/123/state", models.UserStateRequest{
		CurrentContext: "faq",
		LastCommand:    "/start",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/users/123/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.UserState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(123), resp.Data.UserID)
	assert.Equal(t, "faq", resp.Data.CurrentContext)

	// Overwrite keeps a single row per user
	w = doJSON(t, router, "PUT", "/api/users/123/state", models.UserStateRequest{
		CurrentContext: "consultation",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/users/123/state", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "consultation", resp.Data.CurrentContext)
}

func TestUserStateMissing(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "GET", "/api/users/999/state", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogAction(t *testing.T) {
	router, repoManager := setupRouter(t)

	content := "/help"
	w := doJSON(t, router, "POST", "/api/actions", models.UserActionRequest{
		UserID:     42,
		ActionType: models.ActionCommand,
		Content:    &content,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	actions, err := repoManager.UserAction.GetByUser(42, 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionCommand, actions[0].ActionType)
}

func TestLogActionInvalidType(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/actions", models.UserActionRequest{
		UserID:     42,
		ActionType: "login",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateFeedbackDefaultsDates(t *testing.T) {
	router, repoManager := setupRouter(t)

	before := time.Now().Add(-time.Second)

	w := doJSON(t, router, "POST", "/api/feedback", models.ExerciseFeedbackRequest{
		UserID:       7,
		ExerciseID:   "ex1",
		FeedbackText: "good",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	feedback, err := repoManager.ExerciseFeedback.GetByUser(7)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.False(t, feedback[0].FeedbackDate.Before(before))
	assert.False(t, feedback[0].ExerciseDate.Before(before))
}

func TestListFeedbackByExercise(t *testing.T) {
	router, repoManager := setupRouter(t)

	require.NoError(t, repoManager.ExerciseFeedback.Create(&models.ExerciseFeedback{
		UserID: 1, ExerciseID: "breathing", ExerciseDate: time.Now(), FeedbackText: "calming",
	}))
	require.NoError(t, repoManager.ExerciseFeedback.Create(&models.ExerciseFeedback{
		UserID: 2, ExerciseID: "grounding", ExerciseDate: time.Now(), FeedbackText: "helped",
	}))

	w := doJSON(t, router, "GET", "/api/admin/feedback?exercise_id=breathing", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.ExerciseFeedback `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "breathing", resp.Data[0].ExerciseID)
}

func TestEngagementReport(t *testing.T) {
	router, repoManager := setupRouter(t)

	content := "/start"
	require.NoError(t, repoManager.UserAction.Log(&models.UserAction{
		UserID: 1, ActionType: models.ActionCommand, Content: &content,
	}))
	require.NoError(t, repoManager.UserAction.Log(&models.UserAction{
		UserID: 2, ActionType: models.ActionMessage,
	}))

	w := doJSON(t, router, "GET", "/api/admin/reports/engagement", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data analytics.EngagementStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.TotalActions)
	assert.Equal(t, int64(2), resp.Data.ActiveUsers)
	assert.Equal(t, int64(1), resp.Data.CommandUsage["/start"])
}

func TestEngagementReportBadRange(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "GET", "/api/admin/reports/engagement?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserReport(t *testing.T) {
	router, repoManager := setupRouter(t)

	require.NoError(t, repoManager.UserAction.Log(&models.UserAction{
		UserID: 1, ActionType: models.ActionMessage,
	}))
	require.NoError(t, repoManager.UserAction.Log(&models.UserAction{
		UserID: 2, ActionType: models.ActionMessage,
	}))

	w := doJSON(t, router, "GET", "/api/admin/reports/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data analytics.UserStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.TotalUnique)
	assert.Equal(t, int64(2), resp.Data.NewUsers)
	assert.Equal(t, int64(0), resp.Data.ReturningUsers)
}

func TestExerciseReport(t *testing.T) {
	router, repoManager := setupRouter(t)

	content := "breathing"
	require.NoError(t, repoManager.UserAction.Log(&models.UserAction{
		UserID: 1, ActionType: models.ActionExerciseStart, Content: &content,
	}))

	w := doJSON(t, router, "GET", "/api/admin/reports/exercises", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data analytics.ExerciseStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.TotalStarted)
}
