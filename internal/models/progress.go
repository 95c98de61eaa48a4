package models

import "time"

// Progress statuses shared by unit, lesson and generic progress.
const (
	ProgressNotStarted = "NOT_STARTED"
	ProgressInProgress = "IN_PROGRESS"
	ProgressCompleted  = "COMPLETED"
)

// Generic progress types.
const (
	ProgressTypeCourse     = "COURSE"
	ProgressTypeLesson     = "LESSON"
	ProgressTypeAssignment = "ASSIGNMENT"
)

// UnitProgress tracks one learner through one unit.
type UnitProgress struct {
	BaseModel
	Audit

	UserID      string     `gorm:"size:36;not null;uniqueIndex:idx_unit_progress_user_unit" json:"user_id"`
	UnitID      string     `gorm:"size:36;not null;uniqueIndex:idx_unit_progress_user_unit" json:"unit_id"`
	OrderIndex  int        `gorm:"not null;default:0" json:"order_index"`
	Progress    float64    `gorm:"not null;default:0" json:"progress"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// LessonProgress tracks one learner through one lesson.
type LessonProgress struct {
	BaseModel

	UserID      string     `gorm:"size:36;not null;uniqueIndex:idx_lesson_progress_user_lesson" json:"user_id"`
	LessonID    string     `gorm:"size:36;not null;uniqueIndex:idx_lesson_progress_user_lesson" json:"lesson_id"`
	UnitID      string     `gorm:"size:36;not null;index" json:"unit_id"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	Score       *float64   `json:"score,omitempty"`
	TimeSpent   int        `gorm:"not null;default:0" json:"time_spent"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress is a free-form activity record for courses, lessons or assignments.
type Progress struct {
	BaseModel
	SoftDelete

	UserID          string     `gorm:"size:36;not null;index" json:"user_id"`
	Type            string     `gorm:"size:16;not null" json:"type"`
	CourseID        *string    `gorm:"size:36;index" json:"course_id,omitempty"`
	LessonID        *string    `gorm:"size:36;index" json:"lesson_id,omitempty"`
	AssignmentID    *string    `gorm:"size:36;index" json:"assignment_id,omitempty"`
	ProgressPercent float64    `gorm:"not null;default:0" json:"progress_percent"`
	TimeSpent       int        `gorm:"not null;default:0" json:"time_spent"`
	Score           *float64   `json:"score,omitempty"`
	Status          string     `gorm:"size:16;not null" json:"status"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
