package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// LessonProgressInput records a learner's state in one lesson.
type LessonProgressInput struct {
	UserID    string   `json:"user_id"`
	LessonID  string   `json:"lesson_id" validate:"required"`
	Status    string   `json:"status" validate:"required"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0"`
	TimeSpent int      `json:"time_spent" validate:"gte=0"`
}

// ProgressInput records a free-form activity.
type ProgressInput struct {
	UserID          string   `json:"user_id"`
	Type            string   `json:"type" validate:"required"`
	CourseID        *string  `json:"course_id"`
	LessonID        *string  `json:"lesson_id"`
	AssignmentID    *string  `json:"assignment_id"`
	ProgressPercent float64  `json:"progress_percent" validate:"gte=0,lte=100"`
	TimeSpent       int      `json:"time_spent" validate:"gte=0"`
	Score           *float64 `json:"score"`
}

// ProgressService tracks unit, lesson and generic learner progress.
type ProgressService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewProgressService constructs a ProgressService.
func NewProgressService(db *gorm.DB, aside *cache.Aside) (*ProgressService, error) {
	if db == nil {
		return nil, errors.New("progress service: db is required")
	}
	return &ProgressService{db: db, cache: aside, now: time.Now}, nil
}

// StartUnit opens unit progress for a learner. Starting an already started
// unit returns the existing record.
func (s *ProgressService) StartUnit(ctx context.Context, outer *database.Tx, rawUserID, rawUnitID string) (*models.UnitProgress, error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return nil, err
	}
	unitID, err := parseID(rawUnitID, "unit")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.UnitProgress, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		unit, err := findActive[models.Unit](tx.DB(), unitID, "unit")
		if err != nil {
			return nil, err
		}
		return s.unitProgress(tx, userID, unit)
	})
}

// unitProgress loads or creates the unit progress row.
func (s *ProgressService) unitProgress(tx *database.Tx, userID string, unit *models.Unit) (*models.UnitProgress, error) {
	var rec models.UnitProgress
	err := tx.DB().Where("user_id = ? AND unit_id = ?", userID, unit.ID).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("progress service: load unit progress: %w", err)
	}
	rec = models.UnitProgress{
		Audit:      models.Audit{CreatedBy: &userID},
		UserID:     userID,
		UnitID:     unit.ID,
		OrderIndex: unit.OrderIndex,
		Status:     models.ProgressInProgress,
	}
	if err := tx.DB().Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("progress service: create unit progress: %w", conflictOnUnique(err, "Unit progress already exists."))
	}
	s.cache.Invalidate(tx, collectionUnitProgress, collectionUnits)
	return &rec, nil
}

// GetUnitProgress returns a learner's progress in one unit.
func (s *ProgressService) GetUnitProgress(ctx context.Context, rawUserID, rawUnitID string) (*models.UnitProgress, error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return nil, err
	}
	unitID, err := parseID(rawUnitID, "unit")
	if err != nil {
		return nil, err
	}
	var rec models.UnitProgress
	err = s.db.WithContext(ensureContext(ctx)).Where("user_id = ? AND unit_id = ?", userID, unitID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("unit progress")
	}
	if err != nil {
		return nil, fmt.Errorf("progress service: get unit progress: %w", err)
	}
	return &rec, nil
}

// ListUnitProgress pages a learner's unit progress.
func (s *ProgressService) ListUnitProgress(ctx context.Context, rawUserID string, q cache.Query) (cache.Page[models.UnitProgress], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.UnitProgress]{}, err
	}
	return listCached[models.UnitProgress](ensureContext(ctx), s.db, s.cache, collectionUnitProgress, "by-user",
		[]cache.Filter{cache.F("user_id", userID)}, q,
		[]string{"order_index", "created_at", "updated_at", "progress"},
		func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", userID) })
}

// RecordLesson upserts lesson progress and recomputes the unit percentage
// in the same transaction.
func (s *ProgressService) RecordLesson(ctx context.Context, outer *database.Tx, input LessonProgressInput) (*models.LessonProgress, error) {
	userID, err := parseID(input.UserID, "user")
	if err != nil {
		return nil, err
	}
	lessonID, err := parseID(input.LessonID, "lesson")
	if err != nil {
		return nil, err
	}
	status := strings.ToUpper(strings.TrimSpace(input.Status))

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.LessonProgress, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		lesson, err := findActive[models.Lesson](tx.DB(), lessonID, "lesson")
		if err != nil {
			return nil, err
		}
		unit, err := findActive[models.Unit](tx.DB(), lesson.UnitID, "unit")
		if err != nil {
			return nil, err
		}
		if !validProgressStatus(status) {
			return nil, apperrors.NewBadRequest("Unsupported progress status.")
		}
		if input.TimeSpent < 0 || (input.Score != nil && *input.Score < 0) {
			return nil, apperrors.NewBadRequest("Score and time spent cannot be negative.")
		}

		now := s.now().UTC()
		var rec models.LessonProgress
		err = tx.DB().Where("user_id = ? AND lesson_id = ?", userID, lessonID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = models.LessonProgress{
				UserID:    userID,
				LessonID:  lessonID,
				UnitID:    lesson.UnitID,
				Status:    status,
				Score:     input.Score,
				TimeSpent: input.TimeSpent,
			}
			if status == models.ProgressCompleted {
				rec.CompletedAt = &now
			}
			if err := tx.DB().Create(&rec).Error; err != nil {
				return nil, fmt.Errorf("progress service: create lesson progress: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("progress service: load lesson progress: %w", err)
		default:
			// completion is sticky
			if rec.Status == models.ProgressCompleted {
				status = models.ProgressCompleted
			}
			updates := map[string]any{
				"status":     status,
				"time_spent": rec.TimeSpent + input.TimeSpent,
			}
			if input.Score != nil {
				updates["score"] = *input.Score
			}
			if status == models.ProgressCompleted && rec.CompletedAt == nil {
				updates["completed_at"] = now
			}
			if err := tx.DB().Model(&rec).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("progress service: update lesson progress: %w", err)
			}
			if err := tx.DB().First(&rec, "id = ?", rec.ID).Error; err != nil {
				return nil, fmt.Errorf("progress service: reload lesson progress: %w", err)
			}
		}

		if err := s.recomputeUnit(tx, userID, unit, now); err != nil {
			return nil, err
		}
		s.cache.Invalidate(tx, collectionLessonProgress)
		return &rec, nil
	})
}

// recomputeUnit sets the unit percentage to completed linked lessons over
// linked lessons.
func (s *ProgressService) recomputeUnit(tx *database.Tx, userID string, unit *models.Unit, now time.Time) error {
	up, err := s.unitProgress(tx, userID, unit)
	if err != nil {
		return err
	}

	percent := 0.0
	if total := len(unit.Lessons); total > 0 {
		var completed int64
		if err := tx.DB().Model(&models.LessonProgress{}).
			Where("user_id = ? AND status = ? AND lesson_id IN ?", userID, models.ProgressCompleted, []string(unit.Lessons)).
			Count(&completed).Error; err != nil {
			return fmt.Errorf("progress service: count completed lessons: %w", err)
		}
		percent = math.Round(float64(completed)*10000/float64(total)) / 100
	}

	updates := map[string]any{"progress": percent, "updated_by": userID}
	if percent >= 100 {
		updates["status"] = models.ProgressCompleted
		if up.CompletedAt == nil {
			updates["completed_at"] = now
		}
	} else {
		updates["status"] = models.ProgressInProgress
		updates["completed_at"] = nil
	}
	if err := tx.DB().Model(up).Updates(updates).Error; err != nil {
		return fmt.Errorf("progress service: update unit progress: %w", err)
	}
	s.cache.Invalidate(tx, collectionUnitProgress)
	return nil
}

// ListLessonProgress pages a learner's lesson progress, optionally within
// one unit.
func (s *ProgressService) ListLessonProgress(ctx context.Context, rawUserID, rawUnitID string, q cache.Query) (cache.Page[models.LessonProgress], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.LessonProgress]{}, err
	}
	unitID := strings.TrimSpace(rawUnitID)
	if unitID != "" {
		if unitID, err = parseID(unitID, "unit"); err != nil {
			return cache.Page[models.LessonProgress]{}, err
		}
	}
	return listCached[models.LessonProgress](ensureContext(ctx), s.db, s.cache, collectionLessonProgress, "by-user",
		[]cache.Filter{cache.F("user_id", userID), cache.F("unit_id", unitID)}, q, nil,
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("user_id = ?", userID)
			if unitID != "" {
				db = db.Where("unit_id = ?", unitID)
			}
			return db
		})
}

// Record stores a generic activity record.
func (s *ProgressService) Record(ctx context.Context, outer *database.Tx, input ProgressInput) (*models.Progress, error) {
	userID, err := parseID(input.UserID, "user")
	if err != nil {
		return nil, err
	}
	kind := strings.ToUpper(strings.TrimSpace(input.Type))

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Progress, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		if input.LessonID != nil {
			if _, err := findActive[models.Lesson](tx.DB(), *input.LessonID, "lesson"); err != nil {
				return nil, err
			}
		}
		if input.AssignmentID != nil {
			if _, err := findActive[models.Assignment](tx.DB(), *input.AssignmentID, "assignment"); err != nil {
				return nil, err
			}
		}
		switch kind {
		case models.ProgressTypeCourse, models.ProgressTypeLesson, models.ProgressTypeAssignment:
		default:
			return nil, apperrors.NewBadRequest("Unsupported progress type.")
		}
		if input.ProgressPercent < 0 || input.ProgressPercent > 100 {
			return nil, apperrors.NewBadRequest("Progress must be between 0 and 100.")
		}

		now := s.now().UTC()
		rec := &models.Progress{
			UserID:          userID,
			Type:            kind,
			CourseID:        input.CourseID,
			LessonID:        input.LessonID,
			AssignmentID:    input.AssignmentID,
			ProgressPercent: input.ProgressPercent,
			TimeSpent:       input.TimeSpent,
			Score:           input.Score,
			Status:          models.ProgressInProgress,
			LastActivityAt:  &now,
		}
		if input.ProgressPercent >= 100 {
			rec.Status = models.ProgressCompleted
			rec.CompletedAt = &now
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("progress service: record: %w", err)
		}
		s.cache.Invalidate(tx, collectionProgresses)
		return rec, nil
	})
}

// ListProgress pages a learner's active activity records.
func (s *ProgressService) ListProgress(ctx context.Context, rawUserID, kind string, q cache.Query) (cache.Page[models.Progress], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.Progress]{}, err
	}
	kind = strings.ToUpper(strings.TrimSpace(kind))
	return listCached[models.Progress](ensureContext(ctx), s.db, s.cache, collectionProgresses, "by-user",
		[]cache.Filter{cache.F("user_id", userID), cache.F("type", kind)}, q,
		[]string{"created_at", "updated_at", "progress_percent"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("user_id = ? AND is_active = ?", userID, true)
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			return db
		})
}

// SetProgressActive deletes or restores an activity record.
func (s *ProgressService) SetProgressActive(ctx context.Context, outer *database.Tx, rawID string, active bool) error {
	id, err := parseID(rawID, "progress")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Progress{}, id, active, "", "progress"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionProgresses)
		return nil
	})
}

func validProgressStatus(status string) bool {
	switch status {
	case models.ProgressNotStarted, models.ProgressInProgress, models.ProgressCompleted:
		return true
	}
	return false
}
