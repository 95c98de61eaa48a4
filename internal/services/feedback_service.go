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

// FeedbackInput submits product feedback.
type FeedbackInput struct {
	UserID    string  `json:"-"`
	Type      string  `json:"type"`
	Title     string  `json:"title" validate:"required,max=191"`
	Content   string  `json:"content" validate:"required"`
	Rating    *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	RelatedID *string `json:"related_id" validate:"omitempty,uuid"`
}

// FeedbackService stores user feedback.
type FeedbackService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewFeedbackService constructs a FeedbackService.
func NewFeedbackService(db *gorm.DB, aside *cache.Aside) (*FeedbackService, error) {
	if db == nil {
		return nil, errors.New("feedback service: db is required")
	}
	return &FeedbackService{db: db, cache: aside, now: time.Now}, nil
}

// Submit stores feedback. Type defaults to GENERAL.
func (s *FeedbackService) Submit(ctx context.Context, outer *database.Tx, input FeedbackInput) (*models.Feedback, error) {
	userID, err := parseID(input.UserID, "user")
	if err != nil {
		return nil, err
	}
	relatedID, err := optionalID(input.RelatedID, "related")
	if err != nil {
		return nil, err
	}
	kind := strings.ToUpper(strings.TrimSpace(input.Type))
	if kind == "" {
		kind = models.FeedbackGeneral
	}
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Feedback, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		switch kind {
		case models.FeedbackGeneral, models.FeedbackBug, models.FeedbackContent, models.FeedbackFeature:
		default:
			return nil, apperrors.NewBadRequest("Invalid feedback type.")
		}
		if title == "" || content == "" {
			return nil, apperrors.NewBadRequest("Title and content are required.")
		}
		if input.Rating != nil && (*input.Rating < 1 || *input.Rating > 5) {
			return nil, apperrors.NewBadRequest("Rating must be between 1 and 5.")
		}
		rec := &models.Feedback{
			UserID:    userID,
			Type:      kind,
			Title:     title,
			Content:   content,
			Rating:    input.Rating,
			RelatedID: relatedID,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("feedback service: submit: %w", err)
		}
		s.cache.Invalidate(tx, collectionFeedbacks)
		return rec, nil
	})
}

// List pages feedback, optionally filtered by resolution state.
func (s *FeedbackService) List(ctx context.Context, kind string, resolved *bool, q cache.Query) (cache.Page[models.Feedback], error) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	state := ""
	if resolved != nil {
		state = fmt.Sprint(*resolved)
	}
	return listCached[models.Feedback](ensureContext(ctx), s.db, s.cache, collectionFeedbacks, "list",
		[]cache.Filter{cache.F("type", kind), cache.F("resolved", state)}, q,
		[]string{"created_at", "rating"},
		func(db *gorm.DB) *gorm.DB {
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			if resolved != nil {
				db = db.Where("is_resolved = ?", *resolved)
			}
			return db
		})
}

// Resolve marks feedback as handled. Resolving twice is NotFound.
func (s *FeedbackService) Resolve(ctx context.Context, outer *database.Tx, rawID, resolverID string) error {
	id, err := parseID(rawID, "feedback")
	if err != nil {
		return err
	}
	resolver, err := parseID(resolverID, "resolver")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		res := tx.DB().Model(&models.Feedback{}).
			Where("id = ? AND is_resolved = ?", id, false).
			Updates(map[string]any{"is_resolved": true, "resolved_by": resolver, "resolved_at": s.now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("feedback service: resolve: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("feedback")
		}
		s.cache.Invalidate(tx, collectionFeedbacks)
		return nil
	})
}
