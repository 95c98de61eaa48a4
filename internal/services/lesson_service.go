package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// LessonInput creates a lesson inside a unit.
type LessonInput struct {
	Title       string         `json:"title" validate:"required,max=191"`
	Slug        string         `json:"slug" validate:"omitempty,max=191"`
	Description string         `json:"description"`
	Type        string         `json:"type" validate:"required"`
	Level       string         `json:"level" validate:"omitempty,cefr"`
	OrderIndex  int            `json:"order_index" validate:"gte=0"`
	UnitID      string         `json:"unit_id" validate:"required"`
	Topic       string         `json:"topic"`
	Flow        datatypes.JSON `json:"flow"`
}

// LessonUpdate enumerates mutable lesson attributes. Changing UnitID moves
// the lesson between units.
type LessonUpdate struct {
	Title       *string         `json:"title" validate:"omitempty,max=191"`
	Slug        *string         `json:"slug" validate:"omitempty,max=191"`
	Description *string         `json:"description"`
	Type        *string         `json:"type"`
	Level       *string         `json:"level" validate:"omitempty,cefr"`
	OrderIndex  *int            `json:"order_index" validate:"omitempty,gte=0"`
	UnitID      *string         `json:"unit_id"`
	Topic       *string         `json:"topic"`
	Flow        *datatypes.JSON `json:"flow"`
}

// LessonFilter narrows lesson listings.
type LessonFilter struct {
	UnitID string `form:"unit_id"`
	Type   string `form:"type"`
	Level  string `form:"level"`
	Search string `form:"search"`
}

// LessonService manages lessons and keeps Unit.Lessons in step with each
// lesson's status inside the same transaction.
type LessonService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewLessonService constructs a LessonService.
func NewLessonService(db *gorm.DB, aside *cache.Aside) (*LessonService, error) {
	if db == nil {
		return nil, errors.New("lesson service: db is required")
	}
	return &LessonService{db: db, cache: aside}, nil
}

// Create persists the lesson and appends it to its unit.
func (s *LessonService) Create(ctx context.Context, outer *database.Tx, input LessonInput, actorID string) (*models.Lesson, error) {
	ctx = ensureContext(ctx)
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	unitID, err := parseID(input.UnitID, "unit")
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	lessonSlug := makeSlug(input.Slug, title)
	kind := strings.ToUpper(strings.TrimSpace(input.Type))

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.Lesson, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		if _, err := findActive[models.Unit](tx.DB(), unitID, "unit"); err != nil {
			return nil, err
		}
		if err := uniqueSlug(tx.DB(), &models.Lesson{}, "", lessonSlug, "Lesson"); err != nil {
			return nil, err
		}
		if title == "" || lessonSlug == "" {
			return nil, apperrors.NewBadRequest("Lesson title is required.")
		}
		if !validLessonType(kind) {
			return nil, apperrors.NewBadRequest("Unsupported lesson type.")
		}

		lesson := &models.Lesson{
			Audit:       models.Audit{CreatedBy: &creatorID},
			Title:       title,
			Slug:        lessonSlug,
			Description: strings.TrimSpace(input.Description),
			Type:        kind,
			Level:       strings.ToUpper(strings.TrimSpace(input.Level)),
			OrderIndex:  input.OrderIndex,
			UnitID:      unitID,
			Topic:       strings.TrimSpace(input.Topic),
			Flow:        input.Flow,
		}
		if err := tx.DB().Create(lesson).Error; err != nil {
			return nil, fmt.Errorf("lesson service: create: %w", conflictOnUnique(err, "Lesson slug already exists."))
		}
		if err := s.attach(tx, unitID, lesson.ID); err != nil {
			return nil, err
		}

		s.cache.Invalidate(tx, collectionLessons, collectionUnits)
		return lesson, nil
	})
}

// Get returns an active lesson.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	return getCached[models.Lesson](ensureContext(ctx), s.db, s.cache, collectionLessons, id, "lesson")
}

// List pages active lessons.
func (s *LessonService) List(ctx context.Context, filter LessonFilter, q cache.Query) (cache.Page[models.Lesson], error) {
	unitID := strings.TrimSpace(filter.UnitID)
	if unitID != "" {
		if _, err := parseID(unitID, "unit"); err != nil {
			return cache.Page[models.Lesson]{}, err
		}
	}
	kind := strings.ToUpper(strings.TrimSpace(filter.Type))
	level := strings.ToUpper(strings.TrimSpace(filter.Level))
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	return listCached[models.Lesson](ensureContext(ctx), s.db, s.cache, collectionLessons, "list",
		[]cache.Filter{cache.F("unit_id", unitID), cache.F("type", kind), cache.F("level", level), cache.F("search", search)}, q,
		[]string{"created_at", "order_index", "title"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if unitID != "" {
				db = db.Where("unit_id = ?", unitID)
			}
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			if level != "" {
				db = db.Where("level = ?", level)
			}
			if search != "" {
				db = db.Where("LOWER(title) LIKE ?", "%"+search+"%")
			}
			return db
		})
}

// ListByUnit returns the active lessons of an active unit in order_index
// order.
func (s *LessonService) ListByUnit(ctx context.Context, rawUnitID string) ([]models.Lesson, error) {
	ctx = ensureContext(ctx)
	unitID, err := parseID(rawUnitID, "unit")
	if err != nil {
		return nil, err
	}
	return cache.CachedItem(ctx, s.cache, collectionLessons, "unit="+unitID, func(ctx context.Context) ([]models.Lesson, error) {
		db := s.db.WithContext(ctx)
		if _, err := findActive[models.Unit](db, unitID, "unit"); err != nil {
			return nil, err
		}
		var lessons []models.Lesson
		if err := db.Where("unit_id = ? AND is_active = ?", unitID, true).
			Order("order_index asc, created_at asc").
			Find(&lessons).Error; err != nil {
			return nil, fmt.Errorf("lesson service: list by unit: %w", err)
		}
		return lessons, nil
	})
}

// Update changes lesson attributes. A new UnitID detaches the lesson from
// its old unit and attaches it to the new one.
func (s *LessonService) Update(ctx context.Context, outer *database.Tx, rawID string, input LessonUpdate, actorID string) (*models.Lesson, error) {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "lesson")
	if err != nil {
		return nil, err
	}
	var newUnitID string
	if input.UnitID != nil {
		if newUnitID, err = parseID(*input.UnitID, "unit"); err != nil {
			return nil, err
		}
	}

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.Lesson, error) {
		lesson, err := findActive[models.Lesson](tx.DB(), id, "lesson")
		if err != nil {
			return nil, err
		}
		moving := newUnitID != "" && newUnitID != lesson.UnitID
		if moving {
			if _, err := findActive[models.Unit](tx.DB(), newUnitID, "unit"); err != nil {
				return nil, err
			}
		}

		updates := map[string]any{}
		if input.Slug != nil {
			lessonSlug := makeSlug(*input.Slug, "")
			if err := uniqueSlug(tx.DB(), &models.Lesson{}, lesson.ID, lessonSlug, "Lesson"); err != nil {
				return nil, err
			}
			if lessonSlug == "" {
				return nil, apperrors.NewBadRequest("Slug cannot be empty.")
			}
			updates["slug"] = lessonSlug
		}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return nil, apperrors.NewBadRequest("Lesson title cannot be empty.")
			}
			updates["title"] = title
		}
		if input.Type != nil {
			kind := strings.ToUpper(strings.TrimSpace(*input.Type))
			if !validLessonType(kind) {
				return nil, apperrors.NewBadRequest("Unsupported lesson type.")
			}
			updates["type"] = kind
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if input.Level != nil {
			updates["level"] = strings.ToUpper(strings.TrimSpace(*input.Level))
		}
		if input.OrderIndex != nil {
			if *input.OrderIndex < 0 {
				return nil, apperrors.NewBadRequest("Order index cannot be negative.")
			}
			updates["order_index"] = *input.OrderIndex
		}
		if input.Topic != nil {
			updates["topic"] = strings.TrimSpace(*input.Topic)
		}
		if input.Flow != nil {
			updates["flow"] = *input.Flow
		}
		if moving {
			updates["unit_id"] = newUnitID
		}
		if len(updates) == 0 {
			return lesson, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}

		if err := tx.DB().Model(lesson).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("lesson service: update: %w", conflictOnUnique(err, "Lesson slug already exists."))
		}
		if moving {
			if err := s.detach(tx, lesson.UnitID, lesson.ID); err != nil {
				return nil, err
			}
			if err := s.attach(tx, newUnitID, lesson.ID); err != nil {
				return nil, err
			}
			s.cache.Invalidate(tx, collectionUnits)
		}
		s.cache.Invalidate(tx, collectionLessons)
		return findByID[models.Lesson](tx.DB(), id, "lesson")
	})
}

// Delete deactivates the lesson and removes it from its unit.
func (s *LessonService) Delete(ctx context.Context, outer *database.Tx, rawID, actorID string) error {
	return s.setStatus(ctx, outer, rawID, false, actorID)
}

// Restore reactivates the lesson and appends it to its unit again. The unit
// must be active.
func (s *LessonService) Restore(ctx context.Context, outer *database.Tx, rawID, actorID string) error {
	return s.setStatus(ctx, outer, rawID, true, actorID)
}

func (s *LessonService) setStatus(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "lesson")
	if err != nil {
		return err
	}
	return database.Run(ctx, s.db, outer, func(tx *database.Tx) error {
		lesson, err := findByID[models.Lesson](tx.DB(), id, "lesson")
		if err != nil {
			return err
		}
		if err := setActive(tx, &models.Lesson{}, id, active, actorID, "lesson"); err != nil {
			return err
		}
		if active {
			err = s.attach(tx, lesson.UnitID, id)
		} else {
			err = s.detach(tx, lesson.UnitID, id)
		}
		if err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionLessons, collectionUnits)
		return nil
	})
}

// attach appends lessonID to an active unit unless already present.
func (s *LessonService) attach(tx *database.Tx, unitID, lessonID string) error {
	unit, err := lockUnit(tx, unitID, true)
	if err != nil {
		return err
	}
	if unit.HasLesson(lessonID) {
		return nil
	}
	lessons := append(datatypes.JSONSlice[string]{}, unit.Lessons...)
	lessons = append(lessons, lessonID)
	return saveUnitLessons(tx, unit, lessons)
}

// detach removes every occurrence of lessonID from the unit. The unit may be
// inactive but must exist.
func (s *LessonService) detach(tx *database.Tx, unitID, lessonID string) error {
	unit, err := lockUnit(tx, unitID, false)
	if err != nil {
		return err
	}
	lessons := make(datatypes.JSONSlice[string], 0, len(unit.Lessons))
	for _, l := range unit.Lessons {
		if l != lessonID {
			lessons = append(lessons, l)
		}
	}
	if len(lessons) == len(unit.Lessons) {
		return nil
	}
	return saveUnitLessons(tx, unit, lessons)
}

func lockUnit(tx *database.Tx, unitID string, requireActive bool) (*models.Unit, error) {
	db := lockForUpdate(tx.DB())
	if requireActive {
		db = db.Where("is_active = ?", true)
	}
	var unit models.Unit
	err := db.Where("id = ?", unitID).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("unit")
	}
	if err != nil {
		return nil, fmt.Errorf("lesson service: load unit: %w", err)
	}
	return &unit, nil
}

func saveUnitLessons(tx *database.Tx, unit *models.Unit, lessons datatypes.JSONSlice[string]) error {
	if err := tx.DB().Model(unit).Update("lessons", lessons).Error; err != nil {
		return fmt.Errorf("lesson service: update unit lessons: %w", err)
	}
	unit.Lessons = lessons
	return nil
}

func validLessonType(kind string) bool {
	switch kind {
	case models.LessonVocabulary, models.LessonGrammar, models.LessonListening, models.LessonReading,
		models.LessonSpeaking, models.LessonWriting, models.LessonReview:
		return true
	}
	return false
}
