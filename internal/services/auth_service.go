package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/auth/providers"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/queue"
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

const (
	verificationCodeDigits = 6
	defaultCodeTTL         = 15 * time.Minute
)

// ErrInvalidProviderCredential is returned when an external sign-in
// credential does not verify.
var ErrInvalidProviderCredential = apperrors.New("INVALID_PROVIDER_CREDENTIAL", "Sign-in credential is invalid or expired", 401)

// RegisterInput is a self-service registration.
type RegisterInput struct {
	Username   string `json:"username" validate:"required,username"`
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6"`
	Fullname   string `json:"fullname" validate:"max=128"`
	Phone      string `json:"phone" validate:"omitempty,max=32"`
	Role       string `json:"role" validate:"omitempty,oneof=STUDENT TEACHER PARENT"`
	InviteCode string `json:"invite_code" validate:"omitempty,max=32"`
}

// LoginInput is a password login. Identifier is an email or a username.
type LoginInput struct {
	Identifier string `json:"email" validate:"required"`
	Password   string `json:"password" validate:"required"`
	DeviceID   string `json:"device_id" validate:"required,max=128"`
}

// LoginResult is returned by every successful sign-in.
type LoginResult struct {
	User *models.User `json:"user"`
	auth.TokenPair
}

// AuthOption customises AuthService.
type AuthOption func(*AuthService)

// WithAuthClock injects a clock for tests.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeTTL sets how long verification and reset codes stay valid.
func WithCodeTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithProviders enables external sign-in.
func WithProviders(r *providers.Registry) AuthOption {
	return func(s *AuthService) {
		s.providers = r
	}
}

// AuthService implements registration, login, password recovery and logout.
type AuthService struct {
	db          *gorm.DB
	cache       *cache.Aside
	tokens      *auth.TokenService
	invitations *InvitationService
	jobs        queue.Enqueuer
	providers   *providers.Registry
	now         func() time.Time
	codeTTL     time.Duration
	log         *zap.Logger
}

// NewAuthService constructs an AuthService. jobs may be nil, in which case
// no emails are queued.
func NewAuthService(db *gorm.DB, aside *cache.Aside, tokens *auth.TokenService, invitations *InvitationService, jobs queue.Enqueuer, opts ...AuthOption) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if tokens == nil {
		return nil, errors.New("auth service: token service is required")
	}
	if invitations == nil {
		return nil, errors.New("auth service: invitation service is required")
	}
	s := &AuthService{
		db:          db,
		cache:       aside,
		tokens:      tokens,
		invitations: invitations,
		jobs:        jobs,
		now:         time.Now,
		codeTTL:     defaultCodeTTL,
		log:         logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an unverified account. A student may present an invite
// code; its creator becomes the user's inviter and an ACCEPTED history
// entry is written in the same transaction. The verification email is queued
// only after commit.
func (s *AuthService) Register(ctx context.Context, outer *database.Tx, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	role := normaliseRole(input.Role)
	inviteCode := strings.TrimSpace(input.InviteCode)

	return database.Do(ctx, s.db, outer, func(tx *database.Tx) (*models.User, error) {
		var (
			code    *models.InvitationCode
			inviter *models.User
			err     error
		)
		if inviteCode != "" {
			code, inviter, err = s.invitations.resolve(tx, inviteCode)
			if err != nil {
				return nil, err
			}
		}

		if err := checkUserUnique(tx.DB(), "", email, username); err != nil {
			return nil, err
		}

		if err := validateUserRules(username, email, input.Password, role, models.PackageFree); err != nil {
			return nil, err
		}
		if role == models.RoleAdmin {
			return nil, apperrors.NewBadRequest("Administrator accounts cannot self-register.")
		}
		if code != nil && role != models.RoleStudent {
			return nil, apperrors.NewBadRequest("Invite codes can only be used by students.")
		}

		hashed, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("auth service: hash password: %w", err)
		}
		verifyCode, err := crypto.GenerateNumericCode(verificationCodeDigits)
		if err != nil {
			return nil, fmt.Errorf("auth service: generate code: %w", err)
		}
		expires := s.now().UTC().Add(s.codeTTL)

		user := &models.User{
			Username:       username,
			Email:          email,
			Password:       hashed,
			Fullname:       strings.TrimSpace(input.Fullname),
			Phone:          strings.TrimSpace(input.Phone),
			Role:           role,
			AccountPackage: models.PackageFree,
			CodeVerify:     verifyCode,
			CodeExpiresAt:  &expires,
			Provider:       models.ProviderLocal,
		}
		if inviter != nil {
			user.InvitedBy = &inviter.ID
		}
		if err := tx.DB().Create(user).Error; err != nil {
			return nil, fmt.Errorf("auth service: create user: %w", conflictOnUnique(err, "Email or username already exists."))
		}

		if code != nil {
			if err := s.invitations.redeem(tx, code, inviter.ID, user.ID); err != nil {
				return nil, err
			}
		}

		s.cache.Invalidate(tx, collectionUsers)
		s.enqueueAfterCommit(tx, queue.JobVerifyEmail, user, verifyCode)
		return user, nil
	})
}

// Login verifies a password and issues a token pair bound to the device.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)
	identifier := strings.TrimSpace(input.Identifier)
	deviceID := strings.TrimSpace(input.DeviceID)
	if identifier == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("Email and password are required.")
	}
	if deviceID == "" {
		return nil, apperrors.NewBadRequest("Device id is required.")
	}

	result, err := database.Do(ctx, s.db, nil, func(tx *database.Tx) (*LoginResult, error) {
		var user models.User
		err := tx.DB().
			Where("(email = ? OR username = ?) AND is_active = ?", strings.ToLower(identifier), identifier, true).
			First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("User not found.")
		}
		if err != nil {
			return nil, fmt.Errorf("auth service: find user: %w", err)
		}
		if !user.IsVerify {
			return nil, apperrors.NewBadRequest("User not verified.")
		}
		if !crypto.VerifyPassword(user.Password, input.Password) {
			return nil, apperrors.NewBadRequest("Invalid password.")
		}

		return s.signIn(ctx, tx, &user, deviceID)
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()
	s.log.Info("login successful", zap.String("user_id", result.User.ID), zap.String("device_id", deviceID))
	return result, nil
}

func (s *AuthService) signIn(ctx context.Context, tx *database.Tx, user *models.User, deviceID string) (*LoginResult, error) {
	pair, err := s.tokens.Issue(ctx, tx, user, deviceID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := tx.DB().Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("auth service: record login: %w", err)
	}
	user.LastLoginAt = &now
	return &LoginResult{User: user, TokenPair: pair}, nil
}

// Refresh rotates the token pair of the device the refresh token was issued to.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperrors.NewBadRequest("Refresh token is required.")
	}
	pair, user, err := s.tokens.Refresh(ensureContext(ctx), refreshToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("refresh", "failure").Inc()
		return nil, err
	}
	return &LoginResult{User: user, TokenPair: pair}, nil
}

// VerifyEmail marks the account verified when the code matches.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, apperrors.NewBadRequest("Email and code are required.")
	}

	return database.Do(ctx, s.db, nil, func(tx *database.Tx) (*models.User, error) {
		user, err := s.userByCode(tx, email, code)
		if err != nil {
			return nil, err
		}
		if err := tx.DB().Model(user).Updates(map[string]any{
			"is_verify":       true,
			"code_verify":     "",
			"code_expires_at": nil,
		}).Error; err != nil {
			return nil, fmt.Errorf("auth service: verify email: %w", err)
		}
		user.IsVerify = true
		s.cache.Invalidate(tx, collectionUsers)
		return user, nil
	})
}

// ResendVerification issues a new verification code.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	return s.issueCode(ctx, email, queue.JobVerifyEmail, func(u *models.User) error {
		if u.IsVerify {
			return apperrors.NewBadRequest("User already verified.")
		}
		return nil
	})
}

// ForgotPassword issues a password reset code.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.issueCode(ctx, email, queue.JobResetPassword, nil)
}

func (s *AuthService) issueCode(ctx context.Context, email, job string, check func(*models.User) error) error {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperrors.NewBadRequest("Email is required.")
	}

	return database.Run(ctx, s.db, nil, func(tx *database.Tx) error {
		user, err := s.userByEmail(tx, email)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(user); err != nil {
				return err
			}
		}
		code, err := crypto.GenerateNumericCode(verificationCodeDigits)
		if err != nil {
			return fmt.Errorf("auth service: generate code: %w", err)
		}
		expires := s.now().UTC().Add(s.codeTTL)
		if err := tx.DB().Model(user).Updates(map[string]any{
			"code_verify":     code,
			"code_expires_at": expires,
		}).Error; err != nil {
			return fmt.Errorf("auth service: store code: %w", err)
		}
		s.enqueueAfterCommit(tx, job, user, code)
		return nil
	})
}

// ResetPassword sets a new password using an emailed code. Every device is
// signed out.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, password string) error {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperrors.NewBadRequest("Email and code are required.")
	}

	return database.Run(ctx, s.db, nil, func(tx *database.Tx) error {
		user, err := s.userByCode(tx, email, code)
		if err != nil {
			return err
		}
		if len(password) < minPasswordLength {
			return apperrors.NewBadRequest(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		}
		hashed, err := crypto.HashPassword(password)
		if err != nil {
			return fmt.Errorf("auth service: hash password: %w", err)
		}
		if err := tx.DB().Model(user).Updates(map[string]any{
			"password":        hashed,
			"code_verify":     "",
			"code_expires_at": nil,
		}).Error; err != nil {
			return fmt.Errorf("auth service: reset password: %w", err)
		}
		if err := s.tokens.RevokeAll(ctx, tx, user.ID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		s.enqueueAfterCommit(tx, queue.JobPasswordChanged, user, "")
		return nil
	})
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	ctx = ensureContext(ctx)
	return database.Run(ctx, s.db, nil, func(tx *database.Tx) error {
		user, err := findActive[models.User](tx.DB(), userID, "user")
		if err != nil {
			return err
		}
		if !crypto.VerifyPassword(user.Password, oldPassword) {
			return apperrors.NewBadRequest("Invalid old password.")
		}
		if len(newPassword) < minPasswordLength {
			return apperrors.NewBadRequest(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		}
		if oldPassword == newPassword {
			return apperrors.NewBadRequest("New password must differ from the old one.")
		}
		hashed, err := crypto.HashPassword(newPassword)
		if err != nil {
			return fmt.Errorf("auth service: hash password: %w", err)
		}
		if err := tx.DB().Model(user).Update("password", hashed).Error; err != nil {
			return fmt.Errorf("auth service: change password: %w", err)
		}
		s.enqueueAfterCommit(tx, queue.JobPasswordChanged, user, "")
		return nil
	})
}

// LogoutAll revokes every device of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.tokens.RevokeAll(ensureContext(ctx), nil, userID)
}

// LogoutDevice revokes one device.
func (s *AuthService) LogoutDevice(ctx context.Context, userID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperrors.NewBadRequest("Device id is required.")
	}
	return s.tokens.RevokeDevice(ensureContext(ctx), nil, userID, strings.TrimSpace(deviceID))
}

// LogoutOthers revokes every device except deviceID.
func (s *AuthService) LogoutOthers(ctx context.Context, userID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperrors.NewBadRequest("Device id is required.")
	}
	return s.tokens.RevokeOthers(ensureContext(ctx), nil, userID, strings.TrimSpace(deviceID))
}

// Providers lists the enabled external sign-in providers.
func (s *AuthService) Providers() []providers.Metadata {
	if s.providers == nil {
		return nil
	}
	return s.providers.Metadata()
}

// SignInWithProvider verifies an external credential and signs the matching
// user in, linking by email or creating a verified student account when
// none exists.
func (s *AuthService) SignInWithProvider(ctx context.Context, providerType, credential, deviceID string) (*LoginResult, error) {
	ctx = ensureContext(ctx)
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, apperrors.NewBadRequest("Device id is required.")
	}
	if strings.TrimSpace(credential) == "" {
		return nil, apperrors.NewBadRequest("Credential is required.")
	}
	if s.providers == nil {
		return nil, apperrors.NewBadRequest("Unsupported sign-in provider.")
	}
	verifier, ok := s.providers.Get(providerType)
	if !ok {
		return nil, apperrors.NewBadRequest("Unsupported sign-in provider.")
	}

	identity, err := verifier.Verify(ctx, credential)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(providerType, "failure").Inc()
		if errors.Is(err, providers.ErrInvalidCredential) {
			return nil, ErrInvalidProviderCredential.WithInternal(err)
		}
		return nil, apperrors.Wrap(err, "Sign-in provider unavailable")
	}
	if identity.Email == "" {
		return nil, apperrors.NewBadRequest("The provider did not share an email address.")
	}

	result, err := database.Do(ctx, s.db, nil, func(tx *database.Tx) (*LoginResult, error) {
		user, err := s.linkIdentity(tx, identity)
		if err != nil {
			return nil, err
		}
		return s.signIn(ctx, tx, user, deviceID)
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(identity.Provider, "failure").Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues(identity.Provider, "success").Inc()
	return result, nil
}

func (s *AuthService) linkIdentity(tx *database.Tx, identity *providers.Identity) (*models.User, error) {
	var user models.User
	err := tx.DB().Where("provider = ? AND provider_id = ?", identity.Provider, identity.Subject).First(&user).Error
	if err == nil {
		if !user.IsActive {
			return nil, apperrors.NewForbidden("This account has been disabled.")
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("auth service: find linked user: %w", err)
	}

	err = tx.DB().Where("email = ?", identity.Email).First(&user).Error
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, apperrors.NewForbidden("This account has been disabled.")
		}
		if !identity.EmailVerified {
			return nil, apperrors.NewConflict("An account with this email already exists.")
		}
		updates := map[string]any{"provider": identity.Provider, "provider_id": identity.Subject, "is_verify": true}
		if user.Avatar == "" && identity.AvatarURL != "" {
			updates["avatar"] = identity.AvatarURL
		}
		if err := tx.DB().Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("auth service: link identity: %w", err)
		}
		s.cache.Invalidate(tx, collectionUsers)
		return &user, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("auth service: find user by email: %w", err)
	}

	username, err := availableUsername(tx.DB(), identity.Email)
	if err != nil {
		return nil, err
	}
	password, err := crypto.HashPassword(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}
	user = models.User{
		Username:       username,
		Email:          identity.Email,
		Password:       password,
		Fullname:       identity.DisplayName,
		Avatar:         identity.AvatarURL,
		Role:           models.RoleStudent,
		AccountPackage: models.PackageFree,
		IsVerify:       true,
		Provider:       identity.Provider,
		ProviderID:     identity.Subject,
	}
	if err := tx.DB().Create(&user).Error; err != nil {
		return nil, fmt.Errorf("auth service: create user: %w", conflictOnUnique(err, "Email or username already exists."))
	}
	s.cache.Invalidate(tx, collectionUsers)
	return &user, nil
}

// availableUsername derives a username from the email local part, adding a
// numeric suffix until it is free.
func availableUsername(db *gorm.DB, email string) (string, error) {
	base := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			return r
		}
		return '_'
	}, base)
	if len(base) < 3 {
		base += "_user"
	}
	if len(base) > 24 {
		base = base[:24]
	}

	candidate := base
	for i := 1; i <= 50; i++ {
		taken, err := exists(db, &models.User{}, "username = ?", candidate)
		if err != nil {
			return "", fmt.Errorf("auth service: check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", apperrors.NewConflict("Could not derive a free username.")
}

// Profile returns the active account of userID.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return findActive[models.User](s.db.WithContext(ensureContext(ctx)), userID, "user")
}

func (s *AuthService) userByEmail(tx *database.Tx, email string) (*models.User, error) {
	var user models.User
	err := tx.DB().Where("email = ? AND is_active = ?", email, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("User not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}
	return &user, nil
}

func (s *AuthService) userByCode(tx *database.Tx, email, code string) (*models.User, error) {
	var user models.User
	err := tx.DB().Where("email = ? AND code_verify = ? AND is_active = ?", email, code, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Invalid code or email.")
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: find user by code: %w", err)
	}
	if user.CodeExpiresAt != nil && s.now().After(*user.CodeExpiresAt) {
		return nil, apperrors.NewBadRequest("Code has expired.")
	}
	return &user, nil
}

// enqueueAfterCommit queues a mail job once tx commits. Queue failures are
// logged by the transaction runner and never fail the mutation.
func (s *AuthService) enqueueAfterCommit(tx *database.Tx, job string, user *models.User, code string) {
	if s.jobs == nil {
		return
	}
	payload := queue.CodeEmailPayload{
		Email:    user.Email,
		Fullname: user.Fullname,
		Username: user.Username,
		Code:     code,
		Year:     s.now().Year(),
	}
	tx.AfterCommit(func(ctx context.Context) error {
		return s.jobs.Enqueue(ctx, job, payload)
	})
}
