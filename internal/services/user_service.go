package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

const minPasswordLength = 6

// CreateUserInput describes the fields accepted when an administrator creates a user.
type CreateUserInput struct {
	Username       string     `json:"username" validate:"required,username"`
	Email          string     `json:"email" validate:"required,email"`
	Password       string     `json:"password" validate:"required,min=6"`
	Fullname       string     `json:"fullname" validate:"max=128"`
	Phone          string     `json:"phone" validate:"omitempty,max=32"`
	Role           string     `json:"role"`
	AccountPackage string     `json:"account_package"`
	Birthday       *time.Time `json:"birthday"`
	SchoolID       *string    `json:"school_id"`
	ClassID        *string    `json:"class_id"`
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	Username       *string    `json:"username" validate:"omitempty,username"`
	Email          *string    `json:"email" validate:"omitempty,email"`
	Fullname       *string    `json:"fullname" validate:"omitempty,max=128"`
	Phone          *string    `json:"phone" validate:"omitempty,max=32"`
	Avatar         *string    `json:"avatar"`
	Birthday       *time.Time `json:"birthday"`
	Role           *string    `json:"role"`
	AccountPackage *string    `json:"account_package"`
	SchoolID       *string    `json:"school_id"`
	ClassID        *string    `json:"class_id"`
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role   string `form:"role"`
	Search string `form:"search"`
}

// UserService manages the user lifecycle.
type UserService struct {
	db          *gorm.DB
	cache       *cache.Aside
	invitations *InvitationService
	tokens      *auth.TokenService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, aside *cache.Aside, invitations *InvitationService, tokens *auth.TokenService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("user service: invitation service is required")
	}
	if tokens == nil {
		return nil, errors.New("user service: token service is required")
	}
	return &UserService{db: db, cache: aside, invitations: invitations, tokens: tokens}, nil
}

// Create provisions a verified user. Teachers and parents on a paid package
// receive a GROUP_JOIN invitation code in the same transaction.
func (s *UserService) Create(ctx context.Context, outer *database.Tx, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	role := normaliseRole(input.Role)
	pkg := normalisePackage(input.AccountPackage)

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.User, error) {
		if err := checkPlacement(tx.DB(), input.SchoolID, input.ClassID); err != nil {
			return nil, err
		}
		if err := checkUserUnique(tx.DB(), "", email, username); err != nil {
			return nil, err
		}
		if err := validateUserRules(username, email, input.Password, role, pkg); err != nil {
			return nil, err
		}

		hashed, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}

		user := &models.User{
			Username:       username,
			Email:          email,
			Password:       hashed,
			Fullname:       strings.TrimSpace(input.Fullname),
			Phone:          strings.TrimSpace(input.Phone),
			Birthday:       input.Birthday,
			Role:           role,
			AccountPackage: pkg,
			IsVerify:       true,
			SchoolID:       trimPtr(input.SchoolID),
			ClassID:        trimPtr(input.ClassID),
			Provider:       models.ProviderLocal,
		}
		if err := tx.DB().Create(user).Error; err != nil {
			return nil, fmt.Errorf("user service: create: %w", conflictOnUnique(err, "Email or username already exists."))
		}

		if err := s.grantInvitation(ctx, tx, user); err != nil {
			return nil, err
		}

		s.cache.Invalidate(tx, collectionUsers)
		return user, nil
	})
}

// grantInvitation issues the default GROUP_JOIN code for paid teachers and parents.
func (s *UserService) grantInvitation(ctx context.Context, tx *database.Tx, user *models.User) error {
	if user.IsStudent() || user.Role == models.RoleAdmin || user.AccountPackage == models.PackageFree {
		return nil
	}
	_, err := s.invitations.Create(ctx, tx, CreateInvitationInput{
		CreatedBy:   user.ID,
		Event:       "Invitation code for student registration",
		Description: "Invitation code created by " + user.Username,
		Type:        models.InvitationGroupJoin,
		UsesLeft:    defaultInviteUses,
	})
	if err != nil {
		return fmt.Errorf("user service: create invitation code: %w", err)
	}
	return nil
}

// Get returns an active user.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return getCached[models.User](ensureContext(ctx), s.db, s.cache, collectionUsers, id, "user")
}

// List pages active users.
func (s *UserService) List(ctx context.Context, filter UserFilter, q cache.Query) (cache.Page[models.User], error) {
	role := ""
	if filter.Role != "" {
		role = normaliseRole(filter.Role)
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	return listCached[models.User](ensureContext(ctx), s.db, s.cache, collectionUsers, "list",
		[]cache.Filter{cache.F("role", role), cache.F("search", search)}, q,
		[]string{"created_at", "username", "email", "fullname"},
		func(db *gorm.DB) *gorm.DB {
			db = db.Where("is_active = ?", true)
			if role != "" {
				db = db.Where("role = ?", role)
			}
			if search != "" {
				like := "%" + search + "%"
				db = db.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(fullname) LIKE ?", like, like, like)
			}
			return db
		})
}

// Update changes profile fields. Only administrators may change role or
// package or edit other users.
func (s *UserService) Update(ctx context.Context, outer *database.Tx, rawID string, input UpdateUserInput, actor Actor) (*models.User, error) {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "user")
	if err != nil {
		return nil, err
	}

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.User, error) {
		user, err := findActive[models.User](tx.DB(), id, "user")
		if err != nil {
			return nil, err
		}
		if !actor.IsAdmin() && actor.UserID != user.ID {
			return nil, apperrors.NewForbidden("You can only update your own profile.")
		}
		if (input.Role != nil || input.AccountPackage != nil) && !actor.IsAdmin() {
			return nil, apperrors.NewForbidden("Only administrators can change roles or packages.")
		}
		if err := checkPlacement(tx.DB(), input.SchoolID, input.ClassID); err != nil {
			return nil, err
		}

		updates := map[string]any{}
		var email, username string
		if input.Email != nil {
			email = strings.ToLower(strings.TrimSpace(*input.Email))
			updates["email"] = email
		}
		if input.Username != nil {
			username = strings.TrimSpace(*input.Username)
			updates["username"] = username
		}
		if err := checkUserUnique(tx.DB(), user.ID, email, username); err != nil {
			return nil, err
		}

		if input.Email != nil && email == "" {
			return nil, apperrors.NewBadRequest("Email cannot be empty.")
		}
		if input.Username != nil && username == "" {
			return nil, apperrors.NewBadRequest("Username cannot be empty.")
		}

		if input.Fullname != nil {
			updates["fullname"] = strings.TrimSpace(*input.Fullname)
		}
		if input.Phone != nil {
			updates["phone"] = strings.TrimSpace(*input.Phone)
		}
		if input.Avatar != nil {
			updates["avatar"] = strings.TrimSpace(*input.Avatar)
		}
		if input.Birthday != nil {
			updates["birthday"] = input.Birthday
		}
		if input.Role != nil {
			role := normaliseRole(*input.Role)
			if !validRole(role) {
				return nil, apperrors.NewBadRequest("Unsupported role.")
			}
			updates["role"] = role
		}
		if input.AccountPackage != nil {
			pkg := normalisePackage(*input.AccountPackage)
			if !validPackage(pkg) {
				return nil, apperrors.NewBadRequest("Unsupported account package.")
			}
			updates["account_package"] = pkg
		}
		if input.SchoolID != nil {
			updates["school_id"] = models.StringPtr(strings.TrimSpace(*input.SchoolID))
		}
		if input.ClassID != nil {
			updates["class_id"] = models.StringPtr(strings.TrimSpace(*input.ClassID))
		}

		if len(updates) > 0 {
			if err := tx.DB().Model(user).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("user service: update: %w", conflictOnUnique(err, "Email or username already exists."))
			}
			s.cache.Invalidate(tx, collectionUsers)
		}
		return findByID[models.User](tx.DB(), user.ID, "user")
	})
}

// Delete deactivates a user and revokes every token they hold.
func (s *UserService) Delete(ctx context.Context, outer *database.Tx, rawID string) error {
	return s.setStatus(ctx, outer, rawID, false)
}

// Restore reactivates a user.
func (s *UserService) Restore(ctx context.Context, outer *database.Tx, rawID string) error {
	return s.setStatus(ctx, outer, rawID, true)
}

func (s *UserService) setStatus(ctx context.Context, outer *database.Tx, rawID string, active bool) error {
	ctx = ensureContext(ctx)
	id, err := parseID(rawID, "user")
	if err != nil {
		return err
	}
	return database.Run(ctx, s.db, outer, func(tx *database.Tx) error {
		if err := setActive(tx, &models.User{}, id, active, "", "user"); err != nil {
			return err
		}
		if !active {
			if err := s.tokens.RevokeAll(ctx, tx, id); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
		}
		s.cache.Invalidate(tx, collectionUsers)
		return nil
	})
}

// checkPlacement verifies referenced school and class exist.
func checkPlacement(db *gorm.DB, schoolID, classID *string) error {
	if schoolID != nil && strings.TrimSpace(*schoolID) != "" {
		if _, err := findActive[models.School](db, strings.TrimSpace(*schoolID), "school"); err != nil {
			return err
		}
	}
	if classID != nil && strings.TrimSpace(*classID) != "" {
		if _, err := findActive[models.Class](db, strings.TrimSpace(*classID), "class"); err != nil {
			return err
		}
	}
	return nil
}

// checkUserUnique reports Conflict when another user holds email or username.
func checkUserUnique(db *gorm.DB, selfID, email, username string) error {
	if email == "" && username == "" {
		return nil
	}
	scope := db.Model(&models.User{})
	switch {
	case email != "" && username != "":
		scope = scope.Where("email = ? OR username = ?", email, username)
	case email != "":
		scope = scope.Where("email = ?", email)
	default:
		scope = scope.Where("username = ?", username)
	}
	if selfID != "" {
		scope = scope.Where("id <> ?", selfID)
	}
	var count int64
	if err := scope.Count(&count).Error; err != nil {
		return fmt.Errorf("check user uniqueness: %w", err)
	}
	if count > 0 {
		return apperrors.NewConflict("Email or username already exists.")
	}
	return nil
}

func validateUserRules(username, email, password, role, pkg string) error {
	if username == "" || email == "" {
		return apperrors.NewBadRequest("Username and email are required.")
	}
	if len(password) < minPasswordLength {
		return apperrors.NewBadRequest(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}
	if !validRole(role) {
		return apperrors.NewBadRequest("Unsupported role.")
	}
	if !validPackage(pkg) {
		return apperrors.NewBadRequest("Unsupported account package.")
	}
	return nil
}

func normaliseRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return models.RoleStudent
	}
	return role
}

func validRole(role string) bool {
	switch role {
	case models.RoleStudent, models.RoleTeacher, models.RoleParent, models.RoleAdmin:
		return true
	}
	return false
}

func normalisePackage(pkg string) string {
	pkg = strings.ToUpper(strings.TrimSpace(pkg))
	if pkg == "" {
		return models.PackageFree
	}
	return pkg
}

func validPackage(pkg string) bool {
	switch pkg {
	case models.PackageFree, models.PackageBasic, models.PackageStandard, models.PackagePremium:
		return true
	}
	return false
}
