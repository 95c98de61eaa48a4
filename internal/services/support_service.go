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

// SupportInput opens a help desk ticket.
type SupportInput struct {
	UserID      string   `json:"-"`
	Subject     string   `json:"subject" validate:"required,max=191"`
	Message     string   `json:"message" validate:"required"`
	Attachments []string `json:"attachments" validate:"omitempty,dive,url"`
}

// SupportFilter narrows ticket listings.
type SupportFilter struct {
	UserID     string `form:"user_id"`
	AssignedTo string `form:"assigned_to"`
	Status     string `form:"status"`
}

// Ticket status transitions. A closed ticket is final.
var supportTransitions = map[string][]string{
	models.SupportOpen:       {models.SupportInProgress, models.SupportResolved, models.SupportClosed},
	models.SupportInProgress: {models.SupportResolved, models.SupportClosed},
	models.SupportResolved:   {models.SupportInProgress, models.SupportClosed},
}

// SupportService manages help desk tickets.
type SupportService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewSupportService constructs a SupportService.
func NewSupportService(db *gorm.DB, aside *cache.Aside) (*SupportService, error) {
	if db == nil {
		return nil, errors.New("support service: db is required")
	}
	return &SupportService{db: db, cache: aside, now: time.Now}, nil
}

// Open creates an OPEN ticket.
func (s *SupportService) Open(ctx context.Context, outer *database.Tx, input SupportInput) (*models.Support, error) {
	userID, err := parseID(input.UserID, "user")
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Subject)
	message := strings.TrimSpace(input.Message)
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Support, error) {
		if _, err := findActive[models.User](tx.DB(), userID, "user"); err != nil {
			return nil, err
		}
		if subject == "" || message == "" {
			return nil, apperrors.NewBadRequest("Subject and message are required.")
		}
		rec := &models.Support{
			UserID:      userID,
			Subject:     subject,
			Message:     message,
			Attachments: datatypes.JSONSlice[string](input.Attachments),
			Status:      models.SupportOpen,
		}
		if err := tx.DB().Create(rec).Error; err != nil {
			return nil, fmt.Errorf("support service: open: %w", err)
		}
		s.cache.Invalidate(tx, collectionSupports)
		return rec, nil
	})
}

// Get returns a ticket visible to actor.
func (s *SupportService) Get(ctx context.Context, rawID string, actor Actor) (*models.Support, error) {
	id, err := parseID(rawID, "ticket")
	if err != nil {
		return nil, err
	}
	rec, err := findByID[models.Support](s.db.WithContext(ensureContext(ctx)), id, "ticket")
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(rec.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return rec, nil
}

// List pages tickets. Non-staff actors only see their own.
func (s *SupportService) List(ctx context.Context, filter SupportFilter, actor Actor, q cache.Query) (cache.Page[models.Support], error) {
	userID, err := optionalFilterID(filter.UserID, "user")
	if err != nil {
		return cache.Page[models.Support]{}, err
	}
	assignee, err := optionalFilterID(filter.AssignedTo, "assignee")
	if err != nil {
		return cache.Page[models.Support]{}, err
	}
	if !actor.IsStaff() {
		userID = actor.UserID
	}
	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	return listCached[models.Support](ensureContext(ctx), s.db, s.cache, collectionSupports, "list",
		[]cache.Filter{cache.F("user", userID), cache.F("assignee", assignee), cache.F("status", status)}, q,
		[]string{"created_at", "updated_at", "status"},
		func(db *gorm.DB) *gorm.DB {
			if userID != "" {
				db = db.Where("user_id = ?", userID)
			}
			if assignee != "" {
				db = db.Where("assigned_to = ?", assignee)
			}
			if status != "" {
				db = db.Where("status = ?", status)
			}
			return db
		})
}

// Assign hands a ticket to a staff member and moves it to IN_PROGRESS.
func (s *SupportService) Assign(ctx context.Context, outer *database.Tx, rawID, rawAssigneeID string) (*models.Support, error) {
	assigneeID, err := parseID(rawAssigneeID, "assignee")
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, outer, rawID, func(tx *database.Tx, rec *models.Support) (map[string]any, error) {
		assignee, err := findActive[models.User](tx.DB(), assigneeID, "assignee")
		if err != nil {
			return nil, err
		}
		if assignee.Role != models.RoleAdmin && assignee.Role != models.RoleTeacher {
			return nil, apperrors.NewBadRequest("Tickets can only be assigned to staff.")
		}
		updates := map[string]any{"assigned_to": assigneeID}
		if rec.Status == models.SupportOpen {
			updates["status"] = models.SupportInProgress
		}
		return updates, nil
	})
}

// Respond stores the staff response to a ticket.
func (s *SupportService) Respond(ctx context.Context, outer *database.Tx, rawID, response string) (*models.Support, error) {
	response = strings.TrimSpace(response)
	return s.transition(ctx, outer, rawID, func(_ *database.Tx, rec *models.Support) (map[string]any, error) {
		if response == "" {
			return nil, apperrors.NewBadRequest("Response cannot be empty.")
		}
		updates := map[string]any{"response": response}
		if rec.Status == models.SupportOpen {
			updates["status"] = models.SupportInProgress
		}
		return updates, nil
	})
}

// Resolve marks a ticket RESOLVED.
func (s *SupportService) Resolve(ctx context.Context, outer *database.Tx, rawID string) (*models.Support, error) {
	return s.moveTo(ctx, outer, rawID, models.SupportResolved)
}

// Close marks a ticket CLOSED.
func (s *SupportService) Close(ctx context.Context, outer *database.Tx, rawID string) (*models.Support, error) {
	return s.moveTo(ctx, outer, rawID, models.SupportClosed)
}

func (s *SupportService) moveTo(ctx context.Context, outer *database.Tx, rawID, status string) (*models.Support, error) {
	return s.transition(ctx, outer, rawID, func(_ *database.Tx, rec *models.Support) (map[string]any, error) {
		if !canMoveSupport(rec.Status, status) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("Cannot move ticket from %s to %s.", rec.Status, status))
		}
		updates := map[string]any{"status": status}
		if status == models.SupportResolved {
			updates["resolved_at"] = s.now().UTC()
		}
		return updates, nil
	})
}

func (s *SupportService) transition(ctx context.Context, outer *database.Tx, rawID string, change func(*database.Tx, *models.Support) (map[string]any, error)) (*models.Support, error) {
	id, err := parseID(rawID, "ticket")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Support, error) {
		rec, err := findByID[models.Support](tx.DB(), id, "ticket")
		if err != nil {
			return nil, err
		}
		if rec.Status == models.SupportClosed {
			return nil, apperrors.NewBadRequest("Ticket is closed.")
		}
		updates, err := change(tx, rec)
		if err != nil {
			return nil, err
		}
		if err := tx.DB().Model(rec).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("support service: update: %w", err)
		}
		s.cache.Invalidate(tx, collectionSupports)
		return findByID[models.Support](tx.DB(), id, "ticket")
	})
}

func canMoveSupport(from, to string) bool {
	for _, next := range supportTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
