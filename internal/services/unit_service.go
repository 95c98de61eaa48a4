package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// UnitInput creates a unit.
type UnitInput struct {
	Name        string `json:"name" validate:"required,max=191"`
	Slug        string `json:"slug" validate:"omitempty,max=191"`
	Description string `json:"description"`
	Level       string `json:"level" validate:"omitempty,cefr"`
	OrderIndex  int    `json:"order_index" validate:"gte=0"`
}

// UnitUpdate enumerates mutable unit attributes.
type UnitUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=191"`
	Slug        *string `json:"slug" validate:"omitempty,max=191"`
	Description *string `json:"description"`
	Level       *string `json:"level" validate:"omitempty,cefr"`
	OrderIndex  *int    `json:"order_index" validate:"omitempty,gte=0"`
}

// UnitFilter narrows unit listings.
type UnitFilter struct {
	Level  string `form:"level"`
	Search string `form:"search"`
}

// UnitService manages units. Lesson membership is maintained by
// LessonService.
type UnitService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewUnitService constructs a UnitService.
func NewUnitService(db *gorm.DB, aside *cache.Aside) (*UnitService, error) {
	if db == nil {
		return nil, errors.New("unit service: db is required")
	}
	return &UnitService{db: db, cache: aside}, nil
}

// Create adds a unit. The slug is derived from the name when not given.
func (s *UnitService) Create(ctx context.Context, outer *database.Tx, input UnitInput, actorID string) (*models.Unit, error) {
	ctx = ensureContext(ctx)
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	unitSlug := makeSlug(input.Slug, name)

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.Unit, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		if err := uniqueSlug(tx.DB(), &models.Unit{}, "", unitSlug, "Unit"); err != nil {
			return nil, err
		}
		if name == "" || unitSlug == "" {
			return nil, apperrors.NewBadRequest("Unit name is required.")
		}
		if input.OrderIndex < 0 {
			return nil, apperrors.NewBadRequest("Order index cannot be negative.")
		}

		unit := &models.Unit{
			Audit:       models.Audit{CreatedBy: &creatorID},
			Name:        name,
			Slug:        unitSlug,
			Description: strings.TrimSpace(input.Description),
			Level:       strings.ToUpper(strings.TrimSpace(input.Level)),
			OrderIndex:  input.OrderIndex,
			Lessons:     []string{},
		}
		if err := tx.DB().Create(unit).Error; err != nil {
			return nil, fmt.Errorf("unit service: create: %w", conflictOnUnique(err, "Unit slug already exists."))
		}
		s.cache.Invalidate(tx, collectionUnits)
		return unit, nil
	})
}

// Get returns an active unit.
func (s *UnitService) Get(ctx context.Context, id string) (*models.Unit, error) {
	return getCached[models.Unit](ensureContext(ctx), s.db, s.cache, collectionUnits, id, "unit")
}

// GetBySlug returns an active unit by slug.
func (s *UnitService) GetBySlug(ctx context.Context, unitSlug string) (*models.Unit, error) {
	var unit models.Unit
	err := s.db.WithContext(ensureContext(ctx)).
		Where("slug = ? AND is_active = ?", strings.TrimSpace(unitSlug), true).
		First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("unit")
	}
	if err != nil {
		return nil, fmt.Errorf("unit service: get by slug: %w", err)
	}
	return &unit, nil
}

// List pages active units.
func (s *UnitService) List(ctx context.Context, filter UnitFilter, q cache.Query) (cache.Page[models.Unit], error) {
	level := strings.ToUpper(strings.TrimSpace(filter.Level))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	return listCached[models.Unit](ensureContext(ctx), s.db, s.cache, collectionUnits, "list",
		[]cache.Filter{cache.F("level", level), cache.F("search", search)}, q,
		[]string{"order_index", "created_at", "name"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if level != "" {
				db = db.Where("level = ?", level)
			}
			if search != "" {
				db = db.Where("LOWER(name) LIKE ?", "%"+search+"%")
			}
			return db
		})
}

// ListByUser pages the active units a user has progress in.
func (s *UnitService) ListByUser(ctx context.Context, userID string, q cache.Query) (cache.Page[models.Unit], error) {
	id, err := parseID(userID, "user")
	if err != nil {
		return cache.Page[models.Unit]{}, err
	}
	return listCached[models.Unit](ensureContext(ctx), s.db, s.cache, collectionUnits, "by-user",
		[]cache.Filter{cache.F("user_id", id)}, q,
		[]string{"order_index", "created_at", "name"},
		func(db *gorm.DB) *gorm.DB {
			return db.Where("is_active = ? AND id IN (?)", true,
				db.Session(&gorm.Session{NewDB: true}).Model(&models.UnitProgress{}).Select("unit_id").Where("user_id = ?", id))
		})
}

// Update changes unit attributes. Lessons are never edited here.
func (s *UnitService) Update(ctx context.Context, outer *database.Tx, rawID string, input UnitUpdate, actorID string) (*models.Unit, error) {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "unit")
	if err != nil {
		return nil, err
	}
	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.Unit, error) {
		unit, err := findActive[models.Unit](tx.DB(), id, "unit")
		if err != nil {
			return nil, err
		}

		updates := map[string]any{}
		if input.Slug != nil {
			unitSlug := makeSlug(*input.Slug, "")
			if err := uniqueSlug(tx.DB(), &models.Unit{}, unit.ID, unitSlug, "Unit"); err != nil {
				return nil, err
			}
			if unitSlug == "" {
				return nil, apperrors.NewBadRequest("Slug cannot be empty.")
			}
			updates["slug"] = unitSlug
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return nil, apperrors.NewBadRequest("Unit name cannot be empty.")
			}
			updates["name"] = name
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
		if len(updates) == 0 {
			return unit, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(unit).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("unit service: update: %w", conflictOnUnique(err, "Unit slug already exists."))
		}
		s.cache.Invalidate(tx, collectionUnits)
		return findByID[models.Unit](tx.DB(), id, "unit")
	})
}

// Delete deactivates a unit. Its lessons keep their link.
func (s *UnitService) Delete(ctx context.Context, outer *database.Tx, rawID, actorID string) error {
	return s.setStatus(ctx, outer, rawID, false, actorID)
}

// Restore reactivates a unit.
func (s *UnitService) Restore(ctx context.Context, outer *database.Tx, rawID, actorID string) error {
	return s.setStatus(ctx, outer, rawID, true, actorID)
}

func (s *UnitService) setStatus(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "unit")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Unit{}, id, active, actorID, "unit"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionUnits, collectionLessons)
		return nil
	})
}

// makeSlug slugifies explicit, falling back to fallback.
func makeSlug(explicit, fallback string) string {
	source := strings.TrimSpace(explicit)
	if source == "" {
		source = strings.TrimSpace(fallback)
	}
	if source == "" {
		return ""
	}
	return slug.Make(source)
}

// uniqueSlug reports Conflict when another record of model holds value.
func uniqueSlug(db *gorm.DB, model any, selfID, value, label string) error {
	if value == "" {
		return nil
	}
	query, args := "slug = ?", []any{value}
	if selfID != "" {
		query, args = "slug = ? AND id <> ?", []any{value, selfID}
	}
	taken, err := exists(db, model, query, args...)
	if err != nil {
		return fmt.Errorf("check %s slug: %w", strings.ToLower(label), err)
	}
	if taken {
		return apperrors.NewConflict(label + " slug already exists.")
	}
	return nil
}
