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

// CompetitionInput creates a contest.
type CompetitionInput struct {
	Name            string    `json:"name" validate:"required,max=191"`
	Description     string    `json:"description"`
	Type            string    `json:"type" validate:"required"`
	Subject         string    `json:"subject"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required"`
	MaxParticipants int       `json:"max_participants" validate:"gte=0"`
	Prize           string    `json:"prize"`
	BadgeID         *string   `json:"badge_id" validate:"omitempty,uuid"`
	IsPublished     bool      `json:"is_published"`
}

// CompetitionFilter narrows competition listings. Status is derived from the
// schedule: UPCOMING, ONGOING or ENDED.
type CompetitionFilter struct {
	Type   string `form:"type"`
	Status string `form:"status"`
}

// CompetitionService manages contests and their participants.
type CompetitionService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewCompetitionService constructs a CompetitionService.
func NewCompetitionService(db *gorm.DB, aside *cache.Aside) (*CompetitionService, error) {
	if db == nil {
		return nil, errors.New("competition service: db is required")
	}
	return &CompetitionService{db: db, cache: aside, now: time.Now}, nil
}

// Create adds a competition. MaxParticipants of zero means no cap.
func (s *CompetitionService) Create(ctx context.Context, outer *database.Tx, input CompetitionInput, actorID string) (*models.Competition, error) {
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	badgeID, err := optionalID(input.BadgeID, "badge")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Competition, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		if badgeID != nil {
			if _, err := findActive[models.Badge](tx.DB(), *badgeID, "badge"); err != nil {
				return nil, err
			}
		}
		if name == "" {
			return nil, apperrors.NewBadRequest("Competition name is required.")
		}
		if !input.EndTime.After(input.StartTime) {
			return nil, apperrors.NewBadRequest("End time must be after start time.")
		}
		if input.MaxParticipants < 0 {
			return nil, apperrors.NewBadRequest("Max participants cannot be negative.")
		}
		rec := &models.Competition{
			Audit:           models.Audit{CreatedBy: &creatorID},
			Name:            name,
			Description:     strings.TrimSpace(input.Description),
			Type:            strings.ToUpper(strings.TrimSpace(input.Type)),
			Subject:         strings.TrimSpace(input.Subject),
			StartTime:       input.StartTime.UTC(),
			EndTime:         input.EndTime.UTC(),
			MaxParticipants: input.MaxParticipants,
			Prize:           strings.TrimSpace(input.Prize),
			BadgeID:         badgeID,
			IsPublished:     input.IsPublished,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("competition service: create: %w", err)
		}
		s.cache.Invalidate(tx, collectionCompetitions)
		return rec, nil
	})
}

// Get returns an active competition.
func (s *CompetitionService) Get(ctx context.Context, id string) (*models.Competition, error) {
	return getCached[models.Competition](ensureContext(ctx), s.db, s.cache, collectionCompetitions, id, "competition")
}

// List pages active competitions.
func (s *CompetitionService) List(ctx context.Context, filter CompetitionFilter, q cache.Query) (cache.Page[models.Competition], error) {
	kind := strings.ToUpper(strings.TrimSpace(filter.Type))
	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	now := s.now().UTC()
	switch status {
	case "", models.CompetitionUpcoming, models.CompetitionOngoing, models.CompetitionEnded:
	default:
		return cache.Page[models.Competition]{}, apperrors.NewBadRequest("Invalid competition status.")
	}
	// Status depends on the clock, so the key carries the minute it was
	// evaluated at.
	filters := []cache.Filter{cache.F("type", kind), cache.F("status", status)}
	if status != "" {
		filters = append(filters, cache.F("at", now.Truncate(time.Minute).Format(time.RFC3339)))
	}
	return listCached[models.Competition](ensureContext(ctx), s.db, s.cache, collectionCompetitions, "list",
		filters, q, []string{"start_time", "created_at", "name"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			switch status {
			case models.CompetitionUpcoming:
				db = db.Where("start_time > ?", now)
			case models.CompetitionOngoing:
				db = db.Where("start_time <= ? AND end_time > ?", now, now)
			case models.CompetitionEnded:
				db = db.Where("end_time <= ?", now)
			}
			return db
		})
}

// Join registers a user for a competition that has not ended. The
// participant cap is enforced under the competition row.
func (s *CompetitionService) Join(ctx context.Context, outer *database.Tx, rawID, rawUserID string) (*models.CompetitionParticipant, error) {
	id, err := parseID(rawID, "competition")
	if err != nil {
		return nil, err
	}
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.CompetitionParticipant, error) {
		comp, err := findActive[models.Competition](lockForUpdate(tx.DB()), id, "competition")
		if err != nil {
			return nil, err
		}
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		joined, err := exists(tx.DB(), &models.CompetitionParticipant{}, "competition_id = ? AND user_id = ?", id, userID)
		if err != nil {
			return nil, fmt.Errorf("competition service: check participant: %w", err)
		}
		if joined {
			return nil, apperrors.NewConflict("You have already joined this competition.")
		}
		now := s.now().UTC()
		if comp.Status(now) == models.CompetitionEnded {
			return nil, apperrors.NewBadRequest("Competition has ended.")
		}
		if comp.MaxParticipants > 0 && comp.TotalParticipants >= comp.MaxParticipants {
			return nil, apperrors.NewBadRequest("Competition is full.")
		}

		rec := &models.CompetitionParticipant{CompetitionID: id, UserID: userID, JoinedAt: now}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("competition service: join: %w", conflictOnUnique(err, "You have already joined this competition."))
		}
		res := tx.DB().Model(&models.Competition{}).
			Where("id = ? AND (max_participants = 0 OR total_participants < max_participants)", id).
			UpdateColumn("total_participants", gorm.Expr("total_participants + 1"))
		if res.Error != nil {
			return nil, fmt.Errorf("competition service: count participant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, apperrors.NewBadRequest("Competition is full.")
		}
		s.cache.Invalidate(tx, collectionCompetitions)
		return rec, nil
	})
}

// Participants pages the users who joined a competition.
func (s *CompetitionService) Participants(ctx context.Context, rawID string, q cache.Query) (cache.Page[models.CompetitionParticipant], error) {
	id, err := parseID(rawID, "competition")
	if err != nil {
		return cache.Page[models.CompetitionParticipant]{}, err
	}
	return listCached[models.CompetitionParticipant](ensureContext(ctx), s.db, s.cache, collectionCompetitions, "participants",
		[]cache.Filter{cache.F("competition", id)}, q, []string{"joined_at", "score"},
		func(db *gorm.DB) *gorm.DB {
			return db.Where("competition_id = ?", id)
		})
}

// SetActive deletes or restores a competition.
func (s *CompetitionService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "competition")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Competition{}, id, active, actorID, "competition"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionCompetitions)
		return nil
	})
}
