package models

type KnowledgeItemRequest struct {
	Category string `json:"category"`
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	Command  string `json:"command"`
}

type UserStateRequest struct {
	CurrentContext string `json:"current_context" binding:"required"`
	LastCommand    string `json:"last_command"`
}

type UserActionRequest struct {
	UserID     int64   `json:"user_id" binding:"required"`
	ActionType string  `json:"action_type" binding:"required"`
	Content    *string `json:"content,omitempty"`
}

type ExerciseFeedbackRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	ExerciseID   string `json:"exercise_id" binding:"required"`
	ExerciseDate string `json:"exercise_date"`
	FeedbackText string `json:"feedback_text" binding:"required"`
	Context      string `json:"context"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
