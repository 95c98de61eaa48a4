package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// SubmissionInput is a student's answer set.
type SubmissionInput struct {
	AssignmentID string         `json:"assignment_id" validate:"required,uuid"`
	StudentID    string         `json:"-"`
	Answers      map[string]any `json:"answers" validate:"required"`
	Attachments  []string       `json:"attachments" validate:"omitempty,dive,url"`
}

// GradeInput scores a submission.
type GradeInput struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// SubmissionService stores and grades assignment submissions.
type SubmissionService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(db *gorm.DB, aside *cache.Aside) (*SubmissionService, error) {
	if db == nil {
		return nil, errors.New("submission service: db is required")
	}
	return &SubmissionService{db: db, cache: aside, now: time.Now}, nil
}

// Submit records a student's answers. Past the due date the submission is
// rejected unless the assignment allows late work, in which case it is
// marked LATE. Resubmitting replaces an ungraded submission.
func (s *SubmissionService) Submit(ctx context.Context, outer *database.Tx, input SubmissionInput) (*models.Submission, error) {
	assignmentID, err := parseID(input.AssignmentID, "assignment")
	if err != nil {
		return nil, err
	}
	studentID, err := parseID(input.StudentID, "student")
	if err != nil {
		return nil, err
	}

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Submission, error) {
		assignment, err := findActive[models.Assignment](tx.DB(), assignmentID, "assignment")
		if err != nil {
			return nil, err
		}
		if _, err := findActive[models.User](tx.DB(), studentID, "student"); err != nil {
			return nil, err
		}

		var existing models.Submission
		err = tx.DB().Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("submission service: load existing: %w", err)
		}
		if found && existing.Status == models.SubmissionGraded {
			return nil, apperrors.NewConflict("Submission has already been graded.")
		}

		now := s.now().UTC()
		status := models.SubmissionSubmitted
		if assignment.DueDate != nil && now.After(*assignment.DueDate) {
			if !assignment.AllowLate {
				return nil, apperrors.NewBadRequest("Submission date is after the due date.")
			}
			status = models.SubmissionLate
		}
		if len(input.Answers) == 0 {
			return nil, apperrors.NewBadRequest("Student answers are required.")
		}

		rec := &existing
		if !found {
			rec = &models.Submission{AssignmentID: assignmentID, StudentID: studentID}
		}
		rec.Answers = datatypes.JSONMap(input.Answers)
		rec.Attachments = datatypes.JSONSlice[string](input.Attachments)
		rec.SubmittedAt = now
		rec.Status = status
		if err := tx.DB().Save(rec).Error; err != nil {
			return nil, fmt.Errorf("submission service: save: %w", conflictOnUnique(err, "Submission already exists."))
		}
		s.cache.Invalidate(tx, collectionSubmissions)
		return rec, nil
	})
}

// Get returns a submission. Students may only see their own.
func (s *SubmissionService) Get(ctx context.Context, rawID string, actor Actor) (*models.Submission, error) {
	rec, err := s.load(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(rec.StudentID) {
		return nil, apperrors.NewForbidden("You are not allowed to view this submission.")
	}
	return rec, nil
}

func (s *SubmissionService) load(ctx context.Context, rawID string) (*models.Submission, error) {
	id, err := parseID(rawID, "submission")
	if err != nil {
		return nil, err
	}
	item, err := cache.CachedItem(ensureContext(ctx), s.cache, collectionSubmissions, id, func(ctx context.Context) (models.Submission, error) {
		rec, err := findByID[models.Submission](s.db.WithContext(ctx), id, "submission")
		if err != nil {
			return models.Submission{}, err
		}
		return *rec, nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByAssignment pages the submissions to one assignment.
func (s *SubmissionService) ListByAssignment(ctx context.Context, rawAssignmentID string, q cache.Query) (cache.Page[models.Submission], error) {
	assignmentID, err := parseID(rawAssignmentID, "assignment")
	if err != nil {
		return cache.Page[models.Submission]{}, err
	}
	return listCached[models.Submission](ensureContext(ctx), s.db, s.cache, collectionSubmissions, "assignment",
		[]cache.Filter{cache.F("assignment", assignmentID)}, q,
		[]string{"submitted_at", "created_at", "score"},
		func(db *gorm.DB) *gorm.DB {
			return db.Where("assignment_id = ?", assignmentID)
		})
}

// ListByStudent pages a student's submissions.
func (s *SubmissionService) ListByStudent(ctx context.Context, rawStudentID string, actor Actor, q cache.Query) (cache.Page[models.Submission], error) {
	studentID, err := parseID(rawStudentID, "student")
	if err != nil {
		return cache.Page[models.Submission]{}, err
	}
	if !actor.CanAccess(studentID) {
		return cache.Page[models.Submission]{}, apperrors.NewForbidden("You are not allowed to view these submissions.")
	}
	return listCached[models.Submission](ensureContext(ctx), s.db, s.cache, collectionSubmissions, "student",
		[]cache.Filter{cache.F("student", studentID)}, q,
		[]string{"submitted_at", "created_at", "score"},
		func(db *gorm.DB) *gorm.DB {
			return db.Where("student_id = ?", studentID)
		})
}

// Grade scores a submission. The score may not exceed the assignment's max
// score.
func (s *SubmissionService) Grade(ctx context.Context, outer *database.Tx, rawID string, input GradeInput, graderID string) (*models.Submission, error) {
	id, err := parseID(rawID, "submission")
	if err != nil {
		return nil, err
	}
	grader, err := parseID(graderID, "grader")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Submission, error) {
		rec, err := findByID[models.Submission](tx.DB(), id, "submission")
		if err != nil {
			return nil, err
		}
		assignment, err := findByID[models.Assignment](tx.DB(), rec.AssignmentID, "assignment")
		if err != nil {
			return nil, err
		}
		if input.Score < 0 || input.Score > assignment.MaxScore {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("Score must be between 0 and %g.", assignment.MaxScore))
		}
		now := s.now().UTC()
		score := input.Score
		updates := map[string]any{
			"status":    models.SubmissionGraded,
			"score":     score,
			"feedback":  input.Feedback,
			"graded_by": grader,
			"graded_at": now,
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("submission service: grade: %w", err)
		}
		rec.Status, rec.Score, rec.Feedback, rec.GradedBy, rec.GradedAt = models.SubmissionGraded, &score, input.Feedback, &grader, &now
		s.cache.Invalidate(tx, collectionSubmissions)
		return rec, nil
	})
}

// Delete removes a submission that has not been graded.
func (s *SubmissionService) Delete(ctx context.Context, outer *database.Tx, rawID string, actor Actor) error {
	id, err := parseID(rawID, "submission")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		rec, err := findByID[models.Submission](tx.DB(), id, "submission")
		if err != nil {
			return err
		}
		if !actor.CanAccess(rec.StudentID) {
			return apperrors.NewForbidden("You are not allowed to delete this submission.")
		}
		if rec.Status == models.SubmissionGraded && !actor.IsStaff() {
			return apperrors.NewBadRequest("Graded submissions cannot be deleted.")
		}
		if err := tx.DB().Delete(rec).Error; err != nil {
			return fmt.Errorf("submission service: delete: %w", err)
		}
		s.cache.Invalidate(tx, collectionSubmissions)
		return nil
	})
}
