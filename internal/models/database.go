package models

// GORM models for the bot persistence schema

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Action types recorded in the user_actions log
const (
	ActionMessage              = "message"
	ActionCommand              = "command"
	ActionKnowledgeView        = "knowledge_view"
	ActionConsultationStart    = "consultation_start"
	ActionConsultationComplete = "consultation_complete"
	ActionExerciseStart        = "exercise_start"
	ActionExerciseComplete     = "exercise_complete"
)

// KnowledgeItem represents a knowledge base article served by bot command
type KnowledgeItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Category  string    `json:"category" gorm:"size:50"`
	Title     string    `json:"title" gorm:"size:200"`
	Content   string    `json:"content" gorm:"type:text"`
	Command   string    `json:"command" gorm:"size:50"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserState holds the bot's current conversational state for one user.
// Exactly one row per user, overwritten in place on every context change.
type UserState struct {
	UserID         int64     `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	CurrentContext string    `json:"current_context" gorm:"size:50"`
	LastCommand    string    `json:"last_command" gorm:"size:50"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserAction is one entry in the append-only action log. Rows are never
// updated or deleted; user_id is a by-value reference with no FK.
type UserAction struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     int64     `json:"user_id"`
	ActionType string    `json:"action_type" gorm:"size:50"`
	Content    *string   `json:"content,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExerciseFeedback stores user feedback on a completed exercise.
// exercise_id ties back to the exercise by value only.
type ExerciseFeedback struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       int64     `json:"user_id"`
	ExerciseID   string    `json:"exercise_id" gorm:"size:50"`
	ExerciseDate time.Time `json:"exercise_date"`
	FeedbackDate time.Time `json:"feedback_date" gorm:"autoCreateTime"`
	FeedbackText string    `json:"feedback_text" gorm:"type:text"`
	Context      string    `json:"context" gorm:"type:text"`
}

// Database interfaces for repository pattern
type KnowledgeItemRepository interface {
	Create(item *KnowledgeItem) error
	GetByID(id uint) (*KnowledgeItem, error)
	GetByCommand(command string) (*KnowledgeItem, error)
	GetByCategory(category string) ([]KnowledgeItem, error)
	GetAll() ([]KnowledgeItem, error)
	Update(item *KnowledgeItem) error
	Categories() ([]string, error)
}

type UserStateRepository interface {
	Get(userID int64) (*UserState, error)
	Set(state *UserState) error
	TouchCommand(userID int64, command string) error
}

type UserActionRepository interface {
	Log(action *UserAction) error
	GetRecent(limit int) ([]UserAction, error)
	GetByUser(userID int64, limit int) ([]UserAction, error)
	CountByType(actionType string, from, to time.Time) (int64, error)
}

type ExerciseFeedbackRepository interface {
	Create(feedback *ExerciseFeedback) error
	GetRecent(limit int) ([]ExerciseFeedback, error)
	GetByUser(userID int64) ([]ExerciseFeedback, error)
	GetByExercise(exerciseID string) ([]ExerciseFeedback, error)
}

// TableName methods for custom table names
func (KnowledgeItem) TableName() string    { return "knowledge_items" }
func (UserState) TableName() string        { return "user_states" }
func (UserAction) TableName() string       { return "user_actions" }
func (ExerciseFeedback) TableName() string { return "exercise_feedback" }

// Model validation methods
func (ki *KnowledgeItem) Validate() error {
	if ki.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(ki.Title) > 200 {
		return fmt.Errorf("title exceeds 200 characters")
	}
	if len(ki.Category) > 50 {
		return fmt.Errorf("category exceeds 50 characters")
	}
	if len(ki.Command) > 50 {
		return fmt.Errorf("command exceeds 50 characters")
	}
	return nil
}

func (ua *UserAction) Validate() error {
	if ua.UserID == 0 {
		return fmt.Errorf("user ID is required")
	}
	validTypes := map[string]bool{
		ActionMessage:              true,
		ActionCommand:              true,
		ActionKnowledgeView:        true,
		ActionConsultationStart:    true,
		ActionConsultationComplete: true,
		ActionExerciseStart:        true,
		ActionExerciseComplete:     true,
	}
	if !validTypes[ua.ActionType] {
		return fmt.Errorf("invalid action type: %s", ua.ActionType)
	}
	return nil
}

func (ef *ExerciseFeedback) Validate() error {
	if ef.UserID == 0 {
		return fmt.Errorf("user ID is required")
	}
	if ef.ExerciseID == "" {
		return fmt.Errorf("exercise ID is required")
	}
	if len(ef.ExerciseID) > 50 {
		return fmt.Errorf("exercise ID exceeds 50 characters")
	}
	return nil
}

// GORM hooks
func (ki *KnowledgeItem) BeforeCreate(tx *gorm.DB) error {
	return ki.Validate()
}

func (ki *KnowledgeItem) BeforeUpdate(tx *gorm.DB) error {
	return ki.Validate()
}

func (ua *UserAction) BeforeCreate(tx *gorm.DB) error {
	return ua.Validate()
}

func (ef *ExerciseFeedback) BeforeCreate(tx *gorm.DB) error {
	return ef.Validate()
}
