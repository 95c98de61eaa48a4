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
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const (
	inviteCodeLength   = 8
	inviteCodeAttempts = 5

	defaultInviteUses = 100
)

// CreateInvitationInput describes a new invitation code.
type CreateInvitationInput struct {
	CreatedBy   string     `json:"created_by"`
	Event       string     `json:"event"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	UsesLeft    int        `json:"uses_left"`
	StartedAt   *time.Time `json:"started_at"`
	ExpiredAt   *time.Time `json:"expired_at"`
}

// InvitationService manages invitation codes and their redemption history.
type InvitationService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(db *gorm.DB, aside *cache.Aside) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	return &InvitationService{db: db, cache: aside, now: time.Now}, nil
}

// Create issues a new code. The creator must exist and must not be a
// student.
func (s *InvitationService) Create(ctx context.Context, outer *database.Tx, input CreateInvitationInput) (*models.InvitationCode, error) {
	ctx = ensureContext(ctx)

	creatorID, err := parseID(input.CreatedBy, "creator")
	if err != nil {
		return nil, err
	}

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.InvitationCode, error) {
		creator, err := findActive[models.User](tx.DB(), creatorID, "creator")
		if err != nil {
			return nil, err
		}
		if creator.IsStudent() {
			return nil, apperrors.NewBadRequest("Students cannot create invitation codes.")
		}

		kind := strings.ToUpper(strings.TrimSpace(input.Type))
		if kind == "" {
			kind = models.InvitationGroupJoin
		}
		if kind != models.InvitationGroupJoin && kind != models.InvitationReferral {
			return nil, apperrors.NewBadRequest("Unsupported invitation type.")
		}
		uses := input.UsesLeft
		if uses <= 0 {
			uses = defaultInviteUses
		}
		started := s.now().UTC()
		if input.StartedAt != nil {
			started = input.StartedAt.UTC()
		}
		if input.ExpiredAt != nil && !input.ExpiredAt.After(started) {
			return nil, apperrors.NewBadRequest("Expiry must be after the start time.")
		}

		code, err := s.uniqueCode(tx.DB())
		if err != nil {
			return nil, err
		}

		rec := &models.InvitationCode{
			Code:        code,
			CreatedBy:   creator.ID,
			Event:       strings.TrimSpace(input.Event),
			Description: strings.TrimSpace(input.Description),
			Type:        kind,
			UsesLeft:    uses,
			StartedAt:   started,
			ExpiredAt:   input.ExpiredAt,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("invitation service: create: %w", conflictOnUnique(err, "Invitation code already exists."))
		}

		s.cache.Invalidate(tx, collectionInvitationCodes)
		return rec, nil
	})
}

func (s *InvitationService) uniqueCode(db *gorm.DB) (string, error) {
	for i := 0; i < inviteCodeAttempts; i++ {
		code, err := crypto.GenerateCode(inviteCodeLength)
		if err != nil {
			return "", fmt.Errorf("invitation service: generate code: %w", err)
		}
		taken, err := exists(db, &models.InvitationCode{}, "code = ?", code)
		if err != nil {
			return "", fmt.Errorf("invitation service: check code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", errors.New("invitation service: could not allocate a unique code")
}

// GetByCode returns an invitation code regardless of its status.
func (s *InvitationService) GetByCode(ctx context.Context, code string) (*models.InvitationCode, error) {
	ctx = ensureContext(ctx)
	code = normaliseCode(code)
	if code == "" {
		return nil, apperrors.NewBadRequest("Invitation code is required.")
	}

	var rec models.InvitationCode
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("Invalid invite code.")
		}
		return nil, fmt.Errorf("invitation service: get by code: %w", err)
	}
	return &rec, nil
}

// ListByCreator pages the codes created by a user.
func (s *InvitationService) ListByCreator(ctx context.Context, creatorID string, q cache.Query) (cache.Page[models.InvitationCode], error) {
	ctx = ensureContext(ctx)
	id, err := parseID(creatorID, "creator")
	if err != nil {
		return cache.Page[models.InvitationCode]{}, err
	}
	return listCached[models.InvitationCode](ctx, s.db, s.cache, collectionInvitationCodes, "by-creator",
		[]cache.Filter{cache.F("created_by", id)}, q, nil,
		func(db *gorm.DB) *gorm.DB { return db.Where("created_by = ?", id) })
}

// Deactivate disables a code. Only its creator or an administrator may do so.
func (s *InvitationService) Deactivate(ctx context.Context, outer *database.Tx, rawID string, actor Actor) error {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "invitation code")
	if err != nil {
		return err
	}
	return database.Run(ctx, s.db, outer, func(tx *database.Tx) error {
		rec, err := findActive[models.InvitationCode](tx.DB(), id, "invitation code")
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && rec.CreatedBy != actor.UserID {
			return apperrors.NewForbidden("Only the creator can deactivate this code.")
		}
		if err := setActive(tx, &models.InvitationCode{}, id, false, "", "invitation code"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionInvitationCodes)
		return nil
	})
}

// ListHistory pages the redemptions of codes owned by inviterID.
func (s *InvitationService) ListHistory(ctx context.Context, inviterID string, q cache.Query) (cache.Page[models.HistoryInvitation], error) {
	ctx = ensureContext(ctx)
	id, err := parseID(inviterID, "inviter")
	if err != nil {
		return cache.Page[models.HistoryInvitation]{}, err
	}
	return listCached[models.HistoryInvitation](ctx, s.db, s.cache, collectionHistoryInvitations, "by-inviter",
		[]cache.Filter{cache.F("user_id", id)}, q, []string{"invited_at", "created_at"},
		func(db *gorm.DB) *gorm.DB { return db.Where("user_id = ?", id) })
}

// resolve finds the code and its creator inside tx. Both must exist.
func (s *InvitationService) resolve(tx *database.Tx, code string) (*models.InvitationCode, *models.User, error) {
	var rec models.InvitationCode
	if err := tx.DB().Where("code = ?", normaliseCode(code)).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NewNotFound("Invalid invite code.")
		}
		return nil, nil, fmt.Errorf("invitation service: resolve code: %w", err)
	}
	inviter, err := findActive[models.User](tx.DB(), rec.CreatedBy, "inviter")
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.NewNotFound("Inviter does not exist.")
		}
		return nil, nil, err
	}
	return &rec, inviter, nil
}

// redeem consumes one use of rec for inviteeID and records an ACCEPTED
// history entry in the same transaction.
func (s *InvitationService) redeem(tx *database.Tx, rec *models.InvitationCode, inviterID, inviteeID string) error {
	now := s.now().UTC()
	if !rec.Usable(now) {
		return apperrors.NewBadRequest("Invite code is expired or exhausted.")
	}

	res := tx.DB().Model(&models.InvitationCode{}).
		Where("id = ? AND uses_left > 0", rec.ID).
		Updates(map[string]any{
			"uses_left":  gorm.Expr("uses_left - 1"),
			"total_uses": gorm.Expr("total_uses + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("invitation service: consume code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NewBadRequest("Invite code is expired or exhausted.")
	}

	history := &models.HistoryInvitation{
		UserID:    inviterID,
		InviteeID: inviteeID,
		Code:      rec.Code,
		InvitedAt: now,
		Status:    models.HistoryInvitationAccepted,
	}
	if err := tx.DB().Create(history).Error; err != nil {
		return fmt.Errorf("invitation service: record history: %w", err)
	}

	s.cache.Invalidate(tx, collectionInvitationCodes, collectionHistoryInvitations)
	return nil
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
