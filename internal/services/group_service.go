package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// GroupInput creates a chat group. The owner joins automatically.
type GroupInput struct {
	Name        string   `json:"name" validate:"required,max=191"`
	Description string   `json:"description"`
	ClassID     *string  `json:"class_id" validate:"omitempty,uuid"`
	MemberIDs   []string `json:"member_ids" validate:"omitempty,dive,uuid"`
}

// GroupUpdate enumerates mutable group attributes.
type GroupUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=191"`
	Description *string `json:"description"`
}

// GroupService manages chat groups and their membership.
type GroupService struct {
	db    *gorm.DB
	cache *cache.Aside
	now   func() time.Time
}

// NewGroupService constructs a GroupService.
func NewGroupService(db *gorm.DB, aside *cache.Aside) (*GroupService, error) {
	if db == nil {
		return nil, errors.New("group service: db is required")
	}
	return &GroupService{db: db, cache: aside, now: time.Now}, nil
}

// Create adds a group owned by ownerID with the requested members.
func (s *GroupService) Create(ctx context.Context, outer *database.Tx, input GroupInput, rawOwnerID string) (*models.Group, error) {
	ownerID, err := parseID(rawOwnerID, "owner")
	if err != nil {
		return nil, err
	}
	memberIDs, err := parseIDs(input.MemberIDs, "member")
	if err != nil {
		return nil, err
	}
	var classID *string
	if input.ClassID != nil && strings.TrimSpace(*input.ClassID) != "" {
		id, err := parseID(*input.ClassID, "class")
		if err != nil {
			return nil, err
		}
		classID = &id
	}
	name := strings.TrimSpace(input.Name)

	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Group, error) {
		if _, err := findActive[models.User](tx.DB(), ownerID, "owner"); err != nil {
			return nil, err
		}
		if classID != nil {
			if _, err := findActive[models.Class](tx.DB(), *classID, "class"); err != nil {
				return nil, err
			}
		}
		if err := requireActiveUsers(tx.DB(), memberIDs); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, apperrors.NewBadRequest("Group name is required.")
		}

		now := s.now().UTC()
		group := &models.Group{
			Audit:       models.Audit{CreatedBy: &ownerID},
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			OwnerID:     ownerID,
			ClassID:     classID,
		}
		group.Members = append(group.Members, models.GroupMember{UserID: ownerID, Role: models.GroupRoleOwner, JoinedAt: now})
		for _, id := range memberIDs {
			if id == ownerID {
				continue
			}
			group.Members = append(group.Members, models.GroupMember{UserID: id, Role: models.GroupRoleMember, JoinedAt: now})
		}
		if err := tx.DB().Create(group).Error; err != nil {
			return nil, fmt.Errorf("group service: create: %w", err)
		}
		s.cache.Invalidate(tx, collectionGroups)
		return group, nil
	})
}

// Get returns an active group with its members.
func (s *GroupService) Get(ctx context.Context, rawID string) (*models.Group, error) {
	id, err := parseID(rawID, "group")
	if err != nil {
		return nil, err
	}
	var group models.Group
	err = s.db.WithContext(ensureContext(ctx)).
		Preload("Members").
		Where("id = ? AND is_active = ?", id, true).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("group")
		}
		return nil, fmt.Errorf("group service: get: %w", err)
	}
	return &group, nil
}

// ListForUser pages the active groups userID belongs to.
func (s *GroupService) ListForUser(ctx context.Context, rawUserID string, q cache.Query) (cache.Page[models.Group], error) {
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return cache.Page[models.Group]{}, err
	}
	return listCached[models.Group](ensureContext(ctx), s.db, s.cache, collectionGroups, "member",
		[]cache.Filter{cache.F("user", userID)}, q, []string{"created_at", "name"},
		func(db *gorm.DB) *gorm.DB {
			members := db.Session(&gorm.Session{NewDB: true}).
				Model(&models.GroupMember{}).
				Select("group_id").
				Where("user_id = ?", userID)
			return db.Where("is_active = ? AND id IN (?)", true, members)
		})
}

// Update renames or describes a group. Only the owner or an admin may.
func (s *GroupService) Update(ctx context.Context, outer *database.Tx, rawID string, input GroupUpdate, actor Actor) (*models.Group, error) {
	id, err := parseID(rawID, "group")
	if err != nil {
		return nil, err
	}
	return database.Do(ensureContext(ctx), s.db, outer, func(tx *database.Tx) (*models.Group, error) {
		group, err := s.managed(tx.DB(), id, actor)
		if err != nil {
			return nil, err
		}
		updates := map[string]any{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return nil, apperrors.NewBadRequest("Group name cannot be empty.")
			}
			updates["name"] = name
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if len(updates) == 0 {
			return group, nil
		}
		updates["updated_by"] = actor.UserID
		if err := tx.DB().Model(group).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("group service: update: %w", err)
		}
		s.cache.Invalidate(tx, collectionGroups)
		return findByID[models.Group](tx.DB(), id, "group")
	})
}

// AddMembers joins users to a group. Existing members are left untouched.
func (s *GroupService) AddMembers(ctx context.Context, outer *database.Tx, rawID string, rawUserIDs []string, actor Actor) error {
	id, err := parseID(rawID, "group")
	if err != nil {
		return err
	}
	userIDs, err := parseIDs(rawUserIDs, "member")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		if _, err := s.managed(tx.DB(), id, actor); err != nil {
			return err
		}
		if err := requireActiveUsers(tx.DB(), userIDs); err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return apperrors.NewBadRequest("At least one member is required.")
		}
		now := s.now().UTC()
		rows := make([]models.GroupMember, 0, len(userIDs))
		for _, userID := range userIDs {
			rows = append(rows, models.GroupMember{GroupID: id, UserID: userID, Role: models.GroupRoleMember, JoinedAt: now})
		}
		if err := tx.DB().Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("group service: add members: %w", err)
		}
		s.cache.Invalidate(tx, collectionGroups)
		return nil
	})
}

// RemoveMember drops a member. Members may leave on their own; the owner
// cannot be removed.
func (s *GroupService) RemoveMember(ctx context.Context, outer *database.Tx, rawID, rawUserID string, actor Actor) error {
	id, err := parseID(rawID, "group")
	if err != nil {
		return err
	}
	userID, err := parseID(rawUserID, "member")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		group, err := findActive[models.Group](tx.DB(), id, "group")
		if err != nil {
			return err
		}
		if actor.UserID != userID && actor.UserID != group.OwnerID && !actor.IsAdmin() {
			return apperrors.ErrForbidden
		}
		if userID == group.OwnerID {
			return apperrors.NewBadRequest("The group owner cannot be removed.")
		}
		res := tx.DB().Where("group_id = ? AND user_id = ?", id, userID).Delete(&models.GroupMember{})
		if res.Error != nil {
			return fmt.Errorf("group service: remove member: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("member")
		}
		s.cache.Invalidate(tx, collectionGroups)
		return nil
	})
}

// SetActive deletes or restores a group. Only the owner or an admin may.
func (s *GroupService) SetActive(ctx context.Context, outer *database.Tx, rawID string, active bool, actor Actor) error {
	id, err := parseID(rawID, "group")
	if err != nil {
		return err
	}
	return database.Run(ensureContext(ctx), s.db, outer, func(tx *database.Tx) error {
		group, err := findByID[models.Group](tx.DB(), id, "group")
		if err != nil {
			return err
		}
		if group.OwnerID != actor.UserID && !actor.IsAdmin() {
			return apperrors.ErrForbidden
		}
		if err := setActive(tx, &models.Group{}, id, active, actor.UserID, "group"); err != nil {
			return err
		}
		s.cache.Invalidate(tx, collectionGroups, collectionGroupMessages)
		return nil
	})
}

// IsMember reports whether userID belongs to the active group.
func (s *GroupService) IsMember(ctx context.Context, rawGroupID, rawUserID string) (bool, error) {
	groupID, err := parseID(rawGroupID, "group")
	if err != nil {
		return false, err
	}
	userID, err := parseID(rawUserID, "user")
	if err != nil {
		return false, err
	}
	db := s.db.WithContext(ensureContext(ctx))
	if _, err := findActive[models.Group](db, groupID, "group"); err != nil {
		return false, err
	}
	return isGroupMember(db, groupID, userID)
}

func (s *GroupService) managed(db *gorm.DB, id string, actor Actor) (*models.Group, error) {
	group, err := findActive[models.Group](db, id, "group")
	if err != nil {
		return nil, err
	}
	if group.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return group, nil
}

func isGroupMember(db *gorm.DB, groupID, userID string) (bool, error) {
	member, err := exists(db, &models.GroupMember{}, "group_id = ? AND user_id = ?", groupID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

// requireActiveUsers returns NotFound when any id has no active user.
func requireActiveUsers(db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var count int64
	if err := db.Model(&models.User{}).Where("id IN ? AND is_active = ?", ids, true).Count(&count).Error; err != nil {
		return fmt.Errorf("check users: %w", err)
	}
	if int(count) != len(ids) {
		return notFound("member")
	}
	return nil
}

// parseIDs validates and de-duplicates a list of ids.
func parseIDs(raw []string, label string) ([]string, error) {
	values := normaliseIDs(raw)
	out := make([]string, 0, len(values))
	for _, value := range values {
		id, err := parseID(value, label)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
