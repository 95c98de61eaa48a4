package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const defaultMaxScore = 10

var assignmentTypes = map[string]struct{}{
	"QUIZ":     {},
	"ESSAY":    {},
	"SPEAKING": {},
	"PROJECT":  {},
}

// AssignmentInput creates homework.
type AssignmentInput struct {
	Title       string     `json:"title" validate:"required,max=191"`
	Description string     `json:"description"`
	Type        string     `json:"type" validate:"required"`
	LessonID    *string    `json:"lesson_id" validate:"omitempty,uuid"`
	ClassID     *string    `json:"class_id" validate:"omitempty,uuid"`
	DueDate     *time.Time `json:"due_date"`
	AllowLate   bool       `json:"allow_late"`
	MaxScore    float64    `json:"max_score" validate:"omitempty,gt=0"`
	Attachments []string   `json:"attachments" validate:"omitempty,dive,url"`
	IsPublished bool       `json:"is_published"`
}

// AssignmentUpdate enumerates mutable assignment attributes.
type AssignmentUpdate struct {
	Title       *string    `json:"title" validate:"omitempty,max=191"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	AllowLate   *bool      `json:"allow_late"`
	MaxScore    *float64   `json:"max_score" validate:"omitempty,gt=0"`
	Attachments *[]string  `json:"attachments"`
	IsPublished *bool      `json:"is_published"`
}

// AssignmentFilter narrows assignment listings.
type AssignmentFilter struct {
	LessonID string `form:"lesson_id"`
	ClassID  string `form:"class_id"`
}

// AssignmentService manages homework definitions.
type AssignmentService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(db *gorm.DB, aside *cache.Aside) (*AssignmentService, error) {
	if db == nil {
		return nil, errors.New("assignment service: db is required")
	}
	return &AssignmentService{db: db, cache: aside}, nil
}

// Create adds an assignment attached to an optional lesson and class.
func (s *AssignmentService) Create(ctx context.Context, outer *database.Tx, input AssignmentInput, actorID string) (*models.Assignment, error) {
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	lessonID, err := optionalID(input.LessonID, "lesson")
	if err != nil {
		return nil, err
	}
	classID, err := optionalID(input.ClassID, "class")
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	kind := strings.ToUpper(strings.TrimSpace(input.Type))

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Assignment, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		if lessonID != nil {
			if _, err := findActive[models.Lesson](tx.DB(), *lessonID, "lesson"); err != nil {
				return nil, err
			}
		}
		if classID != nil {
			if _, err := findActive[models.Class](tx.DB(), *classID, "class"); err != nil {
				return nil, err
			}
		}
		if title == "" {
			return nil, apperrors.NewBadRequest("Assignment title is required.")
		}
		if _, ok := assignmentTypes[kind]; !ok {
			return nil, apperrors.NewBadRequest("Invalid assignment type.")
		}
		if input.MaxScore < 0 {
			return nil, apperrors.NewBadRequest("Max score must be positive.")
		}
		maxScore := input.MaxScore
		if maxScore == 0 {
			maxScore = defaultMaxScore
		}
		rec := &models.Assignment{
			Audit:       models.Audit{CreatedBy: &creatorID},
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			Type:        kind,
			LessonID:    lessonID,
			ClassID:     classID,
			DueDate:     input.DueDate,
			AllowLate:   input.AllowLate,
			MaxScore:    maxScore,
			Attachments: datatypes.JSONSlice[string](input.Attachments),
			IsPublished: input.IsPublished,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("assignment service: create: %w", err)
		}
		s.cache.Invalidate(tx, collectionAssignments)
		return rec, nil
	})
}

// Get returns an active assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	return getCached[models.Assignment](ensureContext(ctx), s.db, s.cache, collectionAssignments, id, "assignment")
}

// List pages active assignments.
func (s *AssignmentService) List(ctx context.Context, filter AssignmentFilter, q cache.Query) (cache.Page[models.Assignment], error) {
	lessonID, err := optionalFilterID(filter.LessonID, "lesson")
	if err != nil {
		return cache.Page[models.Assignment]{}, err
	}
	classID, err := optionalFilterID(filter.ClassID, "class")
	if err != nil {
		return cache.Page[models.Assignment]{}, err
	}
	return listCached[models.Assignment](ensureContext(ctx), s.db, s.cache, collectionAssignments, "list",
		[]cache.Filter{cache.F("lesson", lessonID), cache.F("class", classID)}, q,
		[]string{"created_at", "due_date", "title"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if lessonID != "" {
				db = db.Where("lesson_id = ?", lessonID)
			}
			if classID != "" {
				db = db.Where("class_id = ?", classID)
			}
			return db
		})
}

// Update changes assignment attributes.
func (s *AssignmentService) Update(ctx context.Context, outer *database.Tx, rawID string, input AssignmentUpdate, actorID string) (*models.Assignment, error) {
	id, err := parseID(rawID, "assignment")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Assignment, error) {
		rec, err := findActive[models.Assignment](tx.DB(), id, "assignment")
		if err != nil {
			return nil, err
		}
		updates := map[string]any{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return nil, apperrors.NewBadRequest("Assignment title cannot be empty.")
			}
			updates["title"] = title
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if input.DueDate != nil {
			updates["due_date"] = *input.DueDate
		}
		if input.AllowLate != nil {
			updates["allow_late"] = *input.AllowLate
		}
		if input.MaxScore != nil {
			if *input.MaxScore <= 0 {
				return nil, apperrors.NewBadRequest("Max score must be positive.")
			}
			updates["max_score"] = *input.MaxScore
		}
		if input.Attachments != nil {
			updates["attachments"] = datatypes.JSONSlice[string](*input.Attachments)
		}
		if input.IsPublished != nil {
			updates["is_published"] = *input.IsPublished
		}
		if len(updates) == 0 {
			return rec, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("assignment service: update: %w", err)
		}
		s.cache.Invalidate(tx, collectionAssignments)
		return findByID[models.Assignment](tx.DB(), id, "assignment")
	})
}

// SetActive deletes or restores an assignment.
func (s *AssignmentService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "assignment")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Assignment{}, id, active, actorID, "assignment"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionAssignments)
		return nil
	})
}

func optionalID(raw *string, label string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	id, err := parseID(*raw, label)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalFilterID(raw, label string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return parseID(raw, label)
}
