package analytics

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nkorzh/psyassist/backend/internal/models"
)

// Service computes engagement and exercise statistics over the action
// log and feedback tables. All queries are read-only and date-ranged.
type Service struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewService(db *gorm.DB, logger *logrus.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// EngagementStats summarizes user activity in a date range
type EngagementStats struct {
	TotalActions      int64             `json:"total_actions"`
	ActiveUsers       int64             `json:"active_users"`
	CommandUsage      map[string]int64  `json:"command_usage"`
	PeakHours         map[int]int64     `json:"peak_hours"`
	ConsultationStats ConsultationStats `json:"consultation_stats"`
}

type ConsultationStats struct {
	Total          int64   `json:"total"`
	Completed      int64   `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// ExerciseStats summarizes exercise activity and feedback in a date range
type ExerciseStats struct {
	TotalStarted   int64                     `json:"total_started"`
	TotalCompleted int64                     `json:"total_completed"`
	CompletionRate float64                   `json:"completion_rate"`
	FeedbackCount  int64                     `json:"feedback_count"`
	ExerciseDetail map[string]ExerciseDetail `json:"exercise_details"`
}

type ExerciseDetail struct {
	Started        int64   `json:"started"`
	Completed      int64   `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
	Feedback       int64   `json:"feedback"`
}

// UserStats summarizes the user base seen in the action log for a range
type UserStats struct {
	TotalUnique    int64 `json:"total_unique"`
	NewUsers       int64 `json:"new_users"`
	ReturningUsers int64 `json:"returning_users"`
	ActiveUsers    int64 `json:"active_users"`
}

// activeUserThreshold is the minimum number of actions in the range for
// a user to count as active.
const activeUserThreshold = 3

type contentCount struct {
	Content string
	Count   int64
}

// GetEngagementStats returns engagement statistics for the date range
func (s *Service) GetEngagementStats(from, to time.Time) (*EngagementStats, error) {
	stats := &EngagementStats{
		CommandUsage: make(map[string]int64),
		PeakHours:    make(map[int]int64),
	}

	err := s.db.Model(&models.UserAction{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Count(&stats.TotalActions).Error
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.UserAction{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Distinct("user_id").
		Count(&stats.ActiveUsers).Error
	if err != nil {
		return nil, err
	}

	var commands []contentCount
	err = s.db.Model(&models.UserAction{}).
		Select("content, count(id) as count").
		Where("action_type = ? AND created_at BETWEEN ? AND ? AND content IS NOT NULL", models.ActionCommand, from, to).
		Group("content").
		Scan(&commands).Error
	if err != nil {
		return nil, err
	}
	for _, c := range commands {
		if c.Content != "" {
			stats.CommandUsage[c.Content] = c.Count
		}
	}

	peakHours, err := s.peakHours(from, to)
	if err != nil {
		return nil, err
	}
	stats.PeakHours = peakHours

	consultation, err := s.consultationStats(from, to)
	if err != nil {
		return nil, err
	}
	stats.ConsultationStats = *consultation

	return stats, nil
}

// peakHours buckets action timestamps by hour of day. Bucketing happens
// in Go so the query stays portable across database engines.
func (s *Service) peakHours(from, to time.Time) (map[int]int64, error) {
	var timestamps []time.Time
	err := s.db.Model(&models.UserAction{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Pluck("created_at", &timestamps).Error
	if err != nil {
		return nil, err
	}

	hours := make(map[int]int64)
	for _, ts := range timestamps {
		hours[ts.Hour()]++
	}
	return hours, nil
}

func (s *Service) consultationStats(from, to time.Time) (*ConsultationStats, error) {
	stats := &ConsultationStats{}

	err := s.db.Model(&models.UserAction{}).
		Where("action_type = ? AND created_at BETWEEN ? AND ?", models.ActionConsultationStart, from, to).
		Count(&stats.Total).Error
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.UserAction{}).
		Where("action_type = ? AND created_at BETWEEN ? AND ?", models.ActionConsultationComplete, from, to).
		Count(&stats.Completed).Error
	if err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// GetUserStats returns user-base statistics for the date range: how many
// distinct users acted, how many of them were seen for the first time, how
// many came back after earlier activity, and how many were active enough
// to cross the action threshold.
func (s *Service) GetUserStats(from, to time.Time) (*UserStats, error) {
	stats := &UserStats{}

	err := s.db.Model(&models.UserAction{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Distinct("user_id").
		Count(&stats.TotalUnique).Error
	if err != nil {
		return nil, err
	}

	// New users: first-ever action falls inside the range.
	firstActions := s.db.Model(&models.UserAction{}).
		Select("user_id, min(created_at) as first_action").
		Group("user_id")
	err = s.db.Table("(?) as first_actions", firstActions).
		Where("first_action BETWEEN ? AND ?", from, to).
		Count(&stats.NewUsers).Error
	if err != nil {
		return nil, err
	}

	// Returning users: active in the range with at least one action before it.
	priorUsers := s.db.Model(&models.UserAction{}).
		Distinct("user_id").
		Where("created_at < ?", from)
	err = s.db.Model(&models.UserAction{}).
		Where("created_at BETWEEN ? AND ?", from, to).
		Where("user_id IN (?)", priorUsers).
		Distinct("user_id").
		Count(&stats.ReturningUsers).Error
	if err != nil {
		return nil, err
	}

	activeUsers := s.db.Model(&models.UserAction{}).
		Select("user_id").
		Where("created_at BETWEEN ? AND ?", from, to).
		Group("user_id").
		Having("count(id) >= ?", activeUserThreshold)
	err = s.db.Table("(?) as active_users", activeUsers).
		Count(&stats.ActiveUsers).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// GetExerciseStats returns exercise statistics for the date range
func (s *Service) GetExerciseStats(from, to time.Time) (*ExerciseStats, error) {
	stats := &ExerciseStats{
		ExerciseDetail: make(map[string]ExerciseDetail),
	}

	err := s.db.Model(&models.UserAction{}).
		Where("action_type = ? AND created_at BETWEEN ? AND ?", models.ActionExerciseStart, from, to).
		Count(&stats.TotalStarted).Error
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&models.UserAction{}).
		Where("action_type = ? AND created_at BETWEEN ? AND ?", models.ActionExerciseComplete, from, to).
		Count(&stats.TotalCompleted).Error
	if err != nil {
		return nil, err
	}

	if stats.TotalStarted > 0 {
		stats.CompletionRate = float64(stats.TotalCompleted) / float64(stats.TotalStarted) * 100
	}

	err = s.db.Model(&models.ExerciseFeedback{}).
		Where("feedback_date BETWEEN ? AND ?", from, to).
		Count(&stats.FeedbackCount).Error
	if err != nil {
		return nil, err
	}

	if err := s.exerciseDetails(stats, from, to); err != nil {
		s.logger.WithError(err).Error("Failed to collect exercise details")
		return stats, nil
	}

	return stats, nil
}

func (s *Service) exerciseDetails(stats *ExerciseStats, from, to time.Time) error {
	var starts []contentCount
	err := s.db.Model(&models.UserAction{}).
		Select("content, count(id) as count").
		Where("action_type = ? AND created_at BETWEEN ? AND ? AND content IS NOT NULL", models.ActionExerciseStart, from, to).
		Group("content").
		Scan(&starts).Error
	if err != nil {
		return err
	}

	var completes []contentCount
	err = s.db.Model(&models.UserAction{}).
		Select("content, count(id) as count").
		Where("action_type = ? AND created_at BETWEEN ? AND ? AND content IS NOT NULL", models.ActionExerciseComplete, from, to).
		Group("content").
		Scan(&completes).Error
	if err != nil {
		return err
	}

	type exerciseCount struct {
		ExerciseID string
		Count      int64
	}
	var feedbacks []exerciseCount
	err = s.db.Model(&models.ExerciseFeedback{}).
		Select("exercise_id, count(id) as count").
		Where("feedback_date BETWEEN ? AND ?", from, to).
		Group("exercise_id").
		Scan(&feedbacks).Error
	if err != nil {
		return err
	}

	for _, sc := range starts {
		if sc.Content == "" {
			continue
		}
		stats.ExerciseDetail[sc.Content] = ExerciseDetail{Started: sc.Count}
	}
	// Completions and feedback outside the range of logged starts still
	// get an entry, with Started left at zero.
	for _, cc := range completes {
		detail := stats.ExerciseDetail[cc.Content]
		detail.Completed = cc.Count
		if detail.Started > 0 {
			detail.CompletionRate = float64(cc.Count) / float64(detail.Started) * 100
		}
		stats.ExerciseDetail[cc.Content] = detail
	}
	for _, fc := range feedbacks {
		detail := stats.ExerciseDetail[fc.ExerciseID]
		detail.Feedback = fc.Count
		stats.ExerciseDetail[fc.ExerciseID] = detail
	}

	return nil
}
