package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

var badgeTypes = map[string]struct{}{
	"ACHIEVEMENT": {},
	"PROGRESS":    {},
	"COMPETITION": {},
	"SPECIAL":     {},
}

// BadgeInput defines a badge.
type BadgeInput struct {
	Name          string `json:"name" validate:"required,max=191"`
	Description   string `json:"description"`
	IconURL       string `json:"icon_url" validate:"omitempty,url"`
	Type          string `json:"type" validate:"required"`
	Level         int    `json:"level" validate:"gte=0"`
	Criteria      string `json:"criteria"`
	TriggerEvent  string `json:"trigger_event"`
	RequiredValue int    `json:"required_value" validate:"gte=0"`
}

// AwardInput grants a badge to a user.
type AwardInput struct {
	UserID  string `json:"user_id" validate:"required,uuid"`
	BadgeID string `json:"badge_id" validate:"required,uuid"`
	Reason  string `json:"reason"`
	Note    string `json:"note"`
}

// BadgeService manages the badge catalog and awards.
type BadgeService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewBadgeService constructs a BadgeService.
func NewBadgeService(db *gorm.DB, aside *cache.Aside) (*BadgeService, error) {
	if db == nil {
		return nil, errors.New("badge service: db is required")
	}
	return &BadgeService{db: db, cache: aside, now: time.Now}, nil
}

// Create adds a badge. Names are unique.
func (s *BadgeService) Create(ctx context.Context, outer *database.Tx, input BadgeInput, actorID string) (*models.Badge, error) {
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	kind := strings.ToUpper(strings.TrimSpace(input.Type))

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Badge, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		taken, err := exists(tx.DB(), &models.Badge{}, "LOWER(name) = ?", strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("badge service: check name: %w", err)
		}
		if taken {
			return nil, apperrors.NewConflict("Badge name already exists.")
		}
		if name == "" {
			return nil, apperrors.NewBadRequest("Badge name is required.")
		}
		if _, ok := badgeTypes[kind]; !ok {
			return nil, apperrors.NewBadRequest("Invalid badge type.")
		}
		level := input.Level
		if level <= 0 {
			level = 1
		}
		rec := &models.Badge{
			Audit:         models.Audit{CreatedBy: &creatorID},
			Name:          name,
			Description:   strings.TrimSpace(input.Description),
			IconURL:       strings.TrimSpace(input.IconURL),
			Type:          kind,
			Level:         level,
			Criteria:      strings.TrimSpace(input.Criteria),
			TriggerEvent:  strings.TrimSpace(input.TriggerEvent),
			RequiredValue: input.RequiredValue,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("badge service: create: %w", conflictOnUnique(err, "Badge name already exists."))
		}
		s.cache.Invalidate(tx, collectionBadges)
		return rec, nil
	})
}

// Get returns an active badge.
func (s *BadgeService) Get(ctx context.Context, id string) (*models.Badge, error) {
	return getCached[models.Badge](ensureContext(ctx), s.db, s.cache, collectionBadges, id, "badge")
}

// List pages active badges, optionally of one type.
func (s *BadgeService) List(ctx context.Context, kind string, q cache.Query) (cache.Page[models.Badge], error) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	return listCached[models.Badge](ensureContext(ctx), s.db, s.cache, collectionBadges, "list",
		[]cache.Filter{cache.F("type", kind)}, q, []string{"created_at", "name", "level"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			return db
		})
}

// SetActive deletes or restores a badge.
func (s *BadgeService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "badge")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Badge{}, id, active, actorID, "badge"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionBadges, collectionUserBadges)
		return nil
	})
}

// Award grants a badge. A user holds each badge at most once; awarding a
// revoked badge again is a BadRequest, restore it instead.
func (s *BadgeService) Award(ctx context.Context, outer *database.Tx, input AwardInput, actorID string) (*models.UserBadge, error) {
	userID, err := parseID(input.UserID, "user")
	if err != nil {
		return nil, err
	}
	badgeID, err := parseID(input.BadgeID, "badge")
	if err != nil {
		return nil, err
	}
	var awardedBy *string
	if actorID != "" {
		id, err := parseID(actorID, "awarder")
		if err != nil {
			return nil, err
		}
		awardedBy = &id
	}

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.UserBadge, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		if _, err := findActive[models.Badge](tx.DB(), badgeID, "badge"); err != nil {
			return nil, err
		}
		var existing models.UserBadge
		err := tx.DB().Where("user_id = ? AND badge_id = ?", userID, badgeID).First(&existing).Error
		switch {
		case err == nil && !existing.IsRevoked:
			return nil, apperrors.NewConflict("User already holds this badge.")
		case err == nil:
			return nil, apperrors.NewBadRequest("Badge was revoked; restore it instead.")
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, fmt.Errorf("badge service: load award: %w", err)
		}

		rec := &models.UserBadge{
			UserID:    userID,
			BadgeID:   badgeID,
			AwardedAt: s.now().UTC(),
			AwardedBy: awardedBy,
			Reason:    strings.TrimSpace(input.Reason),
			Note:      strings.TrimSpace(input.Note),
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("badge service: award: %w", conflictOnUnique(err, "User already holds this badge."))
		}
		s.cache.Invalidate(tx, collectionUserBadges)
		return rec, nil
	})
}

// Revoke withdraws an award.
func (s *BadgeService) Revoke(ctx context.Context, outer *database.Tx, rawID string) error {
	return s.setRevoked(ctx, outer, rawID, true)
}

// Restore reinstates a revoked award.
func (s *BadgeService) Restore(ctx context.Context, outer *database.Tx, rawID string) error {
	return s.setRevoked(ctx, outer, rawID, false)
}

func (s *BadgeService) setRevoked(ctx context.Context, outer *database.Tx, rawID string, revoked bool) error {
	id, err := parseID(rawID, "award")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		updates := map[string]any{"is_revoked": revoked, "revoked_at": nil}
		if revoked {
			updates["revoked_at"] = s.now().UTC()
		}
		res := tx.DB().Model(&models.UserBadge{}).
			Where("id = ? AND is_revoked = ?", id, !revoked).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("badge service: update award: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("award")
		}
		s.cache.Invalidate(tx, collectionUserBadges)
		return nil
	})
}

// ListByUser pages the badges a user holds. Revoked awards are included only
// when includeRevoked is set.
func (s *BadgeService) ListByUser(ctx context.Context, rawUserID string, includeRevoked bool, q cache.Query) (cache.Page[models.UserBadge], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.UserBadge]{}, err
	}
	revoked := "false"
	if includeRevoked {
		revoked = "true"
	}
	return listCached[models.UserBadge](ensureContext(ctx), s.db, s.cache, collectionUserBadges, "user",
		[]cache.Filter{cache.F("user", userID), cache.F("revoked", revoked)}, q,
		[]string{"awarded_at", "created_at"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("user_id = ?", userID)
			if !includeRevoked {
				db = db.Where("is_revoked = ?", false)
			}
			return db
		})
}
