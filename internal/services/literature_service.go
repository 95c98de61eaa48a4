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

// LiteratureInput creates reading content.
type LiteratureInput struct {
	Title             string   `json:"title" validate:"required,max=191"`
	Type              string   `json:"type" validate:"required,max=16"`
	Level             string   `json:"level" validate:"omitempty,cefr"`
	Topic             string   `json:"topic"`
	ContentEnglish    string   `json:"content_english" validate:"required"`
	ContentVietnamese string   `json:"content_vietnamese"`
	Vocabulary        []string `json:"vocabulary"`
	GrammarPoints     []string `json:"grammar_points"`
	AudioURL          string   `json:"audio_url" validate:"omitempty,url"`
	ImageURL          string   `json:"image_url" validate:"omitempty,url"`
	IsPublished       bool     `json:"is_published"`
}

// LiteratureUpdate enumerates mutable literature attributes.
type LiteratureUpdate struct {
	Title             *string   `json:"title" validate:"omitempty,max=191"`
	Level             *string   `json:"level" validate:"omitempty,cefr"`
	Topic             *string   `json:"topic"`
	ContentEnglish    *string   `json:"content_english"`
	ContentVietnamese *string   `json:"content_vietnamese"`
	Vocabulary        *[]string `json:"vocabulary"`
	GrammarPoints     *[]string `json:"grammar_points"`
	AudioURL          *string   `json:"audio_url" validate:"omitempty,url"`
	ImageURL          *string   `json:"image_url" validate:"omitempty,url"`
}

// LiteratureFilter narrows literature listings. Unpublished items are only
// listed when IncludeDrafts is set.
type LiteratureFilter struct {
	Type          string `form:"type"`
	Level         string `form:"level"`
	Topic         string `form:"topic"`
	IncludeDrafts bool   `form:"-"`
}

// LiteratureService manages reading content.
type LiteratureService struct {
	db    *gorm.DB
	cache *cache.Aside
}

// NewLiteratureService constructs a LiteratureService.
func NewLiteratureService(db *gorm.DB, aside *cache.Aside) (*LiteratureService, error) {
	if db == nil {
		return nil, errors.New("literature service: db is required")
	}
	return &LiteratureService{db: db, cache: aside}, nil
}

// Create adds a literature item. Titles are unique.
func (s *LiteratureService) Create(ctx context.Context, outer *database.Tx, input LiteratureInput, actorID string) (*models.Literature, error) {
	creatorID, err := parseID(actorID, "creator")
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Literature, error) {
		if _, err := findActive[models.User](tx.DB(), creatorID, "creator"); err != nil {
			return nil, err
		}
		if err := s.uniqueTitle(tx.DB(), "", title); err != nil {
			return nil, err
		}
		if title == "" || strings.TrimSpace(input.ContentEnglish) == "" {
			return nil, apperrors.NewBadRequest("Title and English content are required.")
		}
		rec := &models.Literature{
			Audit:             models.Audit{CreatedBy: &creatorID},
			Title:             title,
			Type:              strings.ToUpper(strings.TrimSpace(input.Type)),
			Level:             strings.ToUpper(strings.TrimSpace(input.Level)),
			Topic:             strings.TrimSpace(input.Topic),
			ContentEnglish:    input.ContentEnglish,
			ContentVietnamese: input.ContentVietnamese,
			Vocabulary:        datatypes.JSONSlice[string](input.Vocabulary),
			GrammarPoints:     datatypes.JSONSlice[string](input.GrammarPoints),
			AudioURL:          strings.TrimSpace(input.AudioURL),
			ImageURL:          strings.TrimSpace(input.ImageURL),
			IsPublished:       input.IsPublished,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("literature service: create: %w", conflictOnUnique(err, "Literature title already exists."))
		}
		s.cache.Invalidate(tx, collectionLiteratures)
		return rec, nil
	})
}

func (s *LiteratureService) uniqueTitle(db *gorm.DB, selfID, title string) error {
	if title == "" {
		return nil
	}
	query, args := "LOWER(title) = ?", []any{strings.ToLower(title)}
	if selfID != "" {
		query, args = "LOWER(title) = ? AND id <> ?", []any{strings.ToLower(title), selfID}
	}
	taken, err := exists(db, &models.Literature{}, query, args...)
	if err != nil {
		return fmt.Errorf("literature service: check title: %w", err)
	}
	if taken {
		return apperrors.NewConflict("Literature title already exists.")
	}
	return nil
}

// Get returns an active literature item.
func (s *LiteratureService) Get(ctx context.Context, id string) (*models.Literature, error) {
	return getCached[models.Literature](ensureContext(ctx), s.db, s.cache, collectionLiteratures, id, "literature")
}

// List pages active literature.
func (s *LiteratureService) List(ctx context.Context, filter LiteratureFilter, q cache.Query) (cache.Page[models.Literature], error) {
	kind := strings.ToUpper(strings.TrimSpace(filter.Type))
	level := strings.ToUpper(strings.TrimSpace(filter.Level))
	topic := strings.TrimSpace(filter.Topic)
	drafts := "false"
	if filter.IncludeDrafts {
		drafts = "true"
	}
	return listCached[models.Literature](ensureContext(ctx), s.db, s.cache, collectionLiteratures, "list",
		[]cache.Filter{cache.F("type", kind), cache.F("level", level), cache.F("topic", topic), cache.F("drafts", drafts)}, q,
		[]string{"created_at", "title", "level"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if !filter.IncludeDrafts {
				db = db.Where("is_published = ?", true)
			}
			if kind != "" {
				db = db.Where("type = ?", kind)
			}
			if level != "" {
				db = db.Where("level = ?", level)
			}
			if topic != "" {
				db = db.Where("topic = ?", topic)
			}
			return db
		})
}

// Update changes literature attributes.
func (s *LiteratureService) Update(ctx context.Context, outer *database.Tx, rawID string, input LiteratureUpdate, actorID string) (*models.Literature, error) {
	id, err := parseID(rawID, "literature")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Literature, error) {
		rec, err := findActive[models.Literature](tx.DB(), id, "literature")
		if err != nil {
			return nil, err
		}
		updates := map[string]any{}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if err := s.uniqueTitle(tx.DB(), rec.ID, title); err != nil {
				return nil, err
			}
			if title == "" {
				return nil, apperrors.NewBadRequest("Title cannot be empty.")
			}
			updates["title"] = title
		}
		if input.ContentEnglish != nil {
			if strings.TrimSpace(*input.ContentEnglish) == "" {
				return nil, apperrors.NewBadRequest("English content cannot be empty.")
			}
			updates["content_english"] = *input.ContentEnglish
		}
		if input.ContentVietnamese != nil {
			updates["content_vietnamese"] = *input.ContentVietnamese
		}
		if input.Level != nil {
			updates["level"] = strings.ToUpper(strings.TrimSpace(*input.Level))
		}
		if input.Topic != nil {
			updates["topic"] = strings.TrimSpace(*input.Topic)
		}
		if input.Vocabulary != nil {
			updates["vocabulary"] = datatypes.JSONSlice[string](*input.Vocabulary)
		}
		if input.GrammarPoints != nil {
			updates["grammar_points"] = datatypes.JSONSlice[string](*input.GrammarPoints)
		}
		if input.AudioURL != nil {
			updates["audio_url"] = strings.TrimSpace(*input.AudioURL)
		}
		if input.ImageURL != nil {
			updates["image_url"] = strings.TrimSpace(*input.ImageURL)
		}
		if len(updates) == 0 {
			return rec, nil
		}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("literature service: update: %w", conflictOnUnique(err, "Literature title already exists."))
		}
		s.cache.Invalidate(tx, collectionLiteratures)
		return findByID[models.Literature](tx.DB(), id, "literature")
	})
}

// SetPublished toggles visibility to learners.
func (s *LiteratureService) SetPublished(ctx context.Context, outer *database.Tx, rawID string, published bool, actorID string) (*models.Literature, error) {
	id, err := parseID(rawID, "literature")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Literature, error) {
		rec, err := findActive[models.Literature](tx.DB(), id, "literature")
		if err != nil {
			return nil, err
		}
		if rec.IsPublished == published {
			return rec, nil
		}
		updates := map[string]any{"is_published": published}
		if actorID != "" {
			updates["updated_by"] = actorID
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("literature service: publish: %w", err)
		}
		rec.IsPublished = published
		s.cache.Invalidate(tx, collectionLiteratures)
		return rec, nil
	})
}

// SetActive deletes or restores a literature item.
func (s *LiteratureService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actorID string) error {
	id, err := parseID(rawID, "literature")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.Literature{}, id, active, actorID, "literature"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionLiteratures)
		return nil
	})
}
