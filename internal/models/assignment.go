package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission statuses.
const (
	SubmissionSubmitted = "SUBMITTED"
	SubmissionLate      = "LATE"
	SubmissionGraded    = "GRADED"
)

// Assignment is homework attached to a lesson or class.
type Assignment struct {
	BaseModel
	Audit
	SoftDelete

	Title       string                      `gorm:"not null" json:"title"`
	Description string                      `json:"description,omitempty"`
	Type        string                      `gorm:"size:16;not null" json:"type"`
	LessonID    *string                     `gorm:"size:36;index" json:"lesson_id,omitempty"`
	ClassID     *string                     `gorm:"size:36;index" json:"class_id,omitempty"`
	DueDate     *time.Time                  `json:"due_date,omitempty"`
	AllowLate   bool                        `gorm:"not null;default:false" json:"allow_late"`
	MaxScore    float64                     `gorm:"not null;default:10" json:"max_score"`
	Attachments datatypes.JSONSlice[string] `json:"attachments,omitempty"`
	IsPublished bool                        `gorm:"not null;default:false" json:"is_published"`
}

// Submission is a student's answer to an assignment.
type Submission struct {
	BaseModel

	AssignmentID string                      `gorm:"size:36;not null;uniqueIndex:idx_submissions_assignment_student" json:"assignment_id"`
	StudentID    string                      `gorm:"size:36;not null;uniqueIndex:idx_submissions_assignment_student" json:"student_id"`
	Answers      datatypes.JSONMap           `json:"answers"`
	Attachments  datatypes.JSONSlice[string] `json:"attachments,omitempty"`
	SubmittedAt  time.Time                   `json:"submitted_at"`
	Status       string                      `gorm:"size:16;not null;index" json:"status"`
	Score        *float64                    `json:"score,omitempty"`
	Feedback     string                      `json:"feedback,omitempty"`
	GradedBy     *string                     `gorm:"size:36" json:"graded_by,omitempty"`
	GradedAt     *time.Time                  `json:"graded_at,omitempty"`
}
