package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nkorzh/psyassist/backend/internal/models"
)

// KnowledgeItemRepositoryImpl implements KnowledgeItemRepository
type KnowledgeItemRepositoryImpl struct {
	db *gorm.DB
}

func NewKnowledgeItemRepository(db *gorm.DB) models.KnowledgeItemRepository {
	return &KnowledgeItemRepositoryImpl{db: db}
}

func (r *KnowledgeItemRepositoryImpl) Create(item *models.KnowledgeItem) error {
	return r.db.Create(item).Error
}

func (r *KnowledgeItemRepositoryImpl) GetByID(id uint) (*models.KnowledgeItem, error) {
	var item models.KnowledgeItem
	err := r.db.First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *KnowledgeItemRepositoryImpl) GetByCommand(command string) (*models.KnowledgeItem, error) {
	var item models.KnowledgeItem
	err := r.db.Where("command = ?", command).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *KnowledgeItemRepositoryImpl) GetByCategory(category string) ([]models.KnowledgeItem, error) {
	var items []models.KnowledgeItem
	err := r.db.Where("category = ?", category).
		Order("title").
		Find(&items).Error
	return items, err
}

func (r *KnowledgeItemRepositoryImpl) GetAll() ([]models.KnowledgeItem, error) {
	var items []models.KnowledgeItem
	err := r.db.Order("category, title").Find(&items).Error
	return items, err
}

func (r *KnowledgeItemRepositoryImpl) Update(item *models.KnowledgeItem) error {
	return r.db.Save(item).Error
}

func (r *KnowledgeItemRepositoryImpl) Categories() ([]string, error) {
	var categories []string
	err := r.db.Model(&models.KnowledgeItem{}).
		Distinct("category").
		Where("category <> ''").
		Order("category").
		Pluck("category", &categories).Error
	return categories, err
}

// UserStateRepositoryImpl implements UserStateRepository
type UserStateRepositoryImpl struct {
	db *gorm.DB
}

func NewUserStateRepository(db *gorm.DB) models.UserStateRepository {
	return &UserStateRepositoryImpl{db: db}
}

func (r *UserStateRepositoryImpl) Get(userID int64) (*models.UserState, error) {
	var state models.UserState
	err := r.db.First(&state, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Set writes the current state for a user as a single atomic upsert, so
// concurrent writers cannot produce a second row for the same user.
func (r *UserStateRepositoryImpl) Set(state *models.UserState) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_context", "last_command", "updated_at"}),
	}).Create(state).Error
}

func (r *UserStateRepositoryImpl) TouchCommand(userID int64, command string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_command", "updated_at"}),
	}).Create(&models.UserState{
		UserID:      userID,
		LastCommand: command,
	}).Error
}

// UserActionRepositoryImpl implements UserActionRepository
type UserActionRepositoryImpl struct {
	db *gorm.DB
}

func NewUserActionRepository(db *gorm.DB) models.UserActionRepository {
	return &UserActionRepositoryImpl{db: db}
}

// Log appends one entry to the action log. The log is append-only;
// nothing in this layer updates or deletes rows.
func (r *UserActionRepositoryImpl) Log(action *models.UserAction) error {
	return r.db.Create(action).Error
}

func (r *UserActionRepositoryImpl) GetRecent(limit int) ([]models.UserAction, error) {
	var actions []models.UserAction
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error
	return actions, err
}

func (r *UserActionRepositoryImpl) GetByUser(userID int64, limit int) ([]models.UserAction, error) {
	var actions []models.UserAction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&actions).Error
	return actions, err
}

func (r *UserActionRepositoryImpl) CountByType(actionType string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserAction{}).
		Where("action_type = ? AND created_at BETWEEN ? AND ?", actionType, from, to).
		Count(&count).Error
	return count, err
}

// ExerciseFeedbackRepositoryImpl implements ExerciseFeedbackRepository
type ExerciseFeedbackRepositoryImpl struct {
	db *gorm.DB
}

func NewExerciseFeedbackRepository(db *gorm.DB) models.ExerciseFeedbackRepository {
	return &ExerciseFeedbackRepositoryImpl{db: db}
}

func (r *ExerciseFeedbackRepositoryImpl) Create(feedback *models.ExerciseFeedback) error {
	return r.db.Create(feedback).Error
}

func (r *ExerciseFeedbackRepositoryImpl) GetRecent(limit int) ([]models.ExerciseFeedback, error) {
	var feedback []models.ExerciseFeedback
	err := r.db.Order("feedback_date DESC").
		Limit(limit).
		Find(&feedback).Error
	return feedback, err
}

func (r *ExerciseFeedbackRepositoryImpl) GetByUser(userID int64) ([]models.ExerciseFeedback, error) {
	var feedback []models.ExerciseFeedback
	err := r.db.Where("user_id = ?", userID).
		Order("feedback_date DESC").
		Find(&feedback).Error
	return feedback, err
}

func (r *ExerciseFeedbackRepositoryImpl) GetByExercise(exerciseID string) ([]models.ExerciseFeedback, error) {
	var feedback []models.ExerciseFeedback
	err := r.db.Where("exercise_id = ?", exerciseID).
		Order("feedback_date DESC").
		Find(&feedback).Error
	return feedback, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	KnowledgeItem    models.KnowledgeItemRepository
	UserState        models.UserStateRepository
	UserAction       models.UserActionRepository
	ExerciseFeedback models.ExerciseFeedbackRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		KnowledgeItem:    NewKnowledgeItemRepository(db),
		UserState:        NewUserStateRepository(db),
		UserAction:       NewUserActionRepository(db),
		ExerciseFeedback: NewExerciseFeedbackRepository(db),
	}
}
