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

// PackageInput creates a purchasable package.
type PackageInput struct {
	Name         string   `json:"name" validate:"required,max=128"`
	Type         string   `json:"type" validate:"required"`
	Description  string   `json:"description"`
	Price        int64    `json:"price" validate:"gte=0"`
	Currency     string   `json:"currency" validate:"omitempty,len=3"`
	DurationDays int      `json:"duration_days" validate:"gte=0"`
	Features     []string `json:"features"`
}

// PackageUpdate enumerates mutable package attributes. Type is fixed.
type PackageUpdate struct {
	Name         *string   `json:"name" validate:"omitempty,max=128"`
	Description  *string   `json:"description"`
	Price        *int64    `json:"price" validate:"omitempty,gte=0"`
	DurationDays *int      `json:"duration_days" validate:"omitempty,gte=0"`
	Features     *[]string `json:"features"`
}

// PackageService manages the account package catalog.
type PackageService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewPackageService constructs a PackageService.
func NewPackageService(db *gorm.DB, aside *cache.Aside) (*PackageService, error) {
	if db == nil {
		return nil, errors.New("package service: db is required")
	}
	return &PackageService{db: db, cache: aside}, nil
}

// Create adds a package. Type must be a known account package and unique.
func (s *PackageService) Create(ctx context.Context, outer *database.Tx, input PackageInput, actorID string) (*models.Package, error) {
	kind := normalisePackage(input.Type)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Package, error) {
		taken, err := exists(tx.DB(), &models.Package{}, "type = ?", kind)
		if err != nil {
			return nil, fmt.Errorf("package service: check type: %w", err)
		}
		if taken {
			return nil, apperrors.NewConflict("Package type already exists.")
		}
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("Package name is required.")
		}
		if !validPackage(kind) {
			return nil, apperrors.NewBadRequest("Unsupported account package.")
		}
		if input.Price < 0 || input.DurationDays < 0 {
			return nil, apperrors.NewBadRequest("Price and duration cannot be negative.")
		}
		currency := strings.ToUpper(strings.TrimSpace(input.Currency))
		if currency == "" {
			currency = "VND"
		}
		duration := input.DurationDays
		if duration == 0 {
			duration = 30
		}
		rec := &models.Package{
			Audit:        models.Audit{CreatedBy: models.StringPtr(actorID)},
			Name:         name,
			Type:         kind,
			Description:  strings.TrimSpace(input.Description),
			Price:        input.Price,
			Currency:     currency,
			DurationDays: duration,
			Features:     datatypes.JSONSlice[string](input.Features),
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("package service: create: %w", conflictOnUnique(err, "Package type already exists."))
		}
		s.cache.Invalidate(tx, collectionPackages)
		return rec, nil
	})
}

// Get returns an active package.
func (s *PackageService) Get(ctx context.Context, id string) (*models.Package, error) {
	return getCached[models.Package](ensureContext(ctx), s.db, s.cache, collectionPackages, id, "package")
}

// List pages active packages, cheapest first by default.
func (s *PackageService) List(ctx context.Context, q cache.Query) (cache.Page[models.Package], error) {
	if q.Sort == "" {
		q.Sort, q.Order = "price", "asc"
	}
	return listCached[models.Package](ensureContext(ctx), s.db, s.cache, collectionPackages, "list", nil, q,
		[]string{"price", "created_at", "name"},
		func(db *gorm.DB) *gorm.DB { return db.Where("is_active = ?", true) })
}

// Update changes package attributes.
func (s *PackageService) Update(ctx context.Context, outer *database.Tx, rawID string, input PackageUpdate, actorID string) (*models.Package, error) {
	id, err := parseID(rawID, "package")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Package, error) {
		rec, err := findActive[models.Package](tx.DB(), id, "package")
		if err != nil {
			return nil, err
		}
		updates := map[string]any{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return nil, apperrors.NewBadRequest("Package name cannot be empty.")
			}
			updates["name"] = name
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if input.Price != nil {
			if *input.Price < 0 {
				return nil, apperrors.NewBadRequest("Price cannot be negative.")
			}
			updates["price"] = *input.Price
		}
		if input.DurationDays != nil {
			if *input.DurationDays <= 0 {
				return nil, apperrors.NewBadRequest("Duration must be positive.")
			}
			updates["duration_days"] = *input.DurationDays
		}
		if input.Features != nil {
			updates["features"] = datatypes.JSONSlice[string](*input.Features)
		}
		if len(updates) == 0 {
			return rec, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("package service: update: %w", err)
		}
		s.cache.Invalidate(tx, collectionPackages)
		return findByID[models.Package](tx.DB(), id, "package")
	})
}

// SetActive deletes or restores a package.
func (s *PackageService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "package")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Package{}, id, active, actorID, "package"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionPackages)
		return nil
	})
}
