package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/auth/providers"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/queue"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

type authFixture struct {
	db     *gorm.DB
	svc    *AuthService
	jobs   *recordingEnqueuer
	now    time.Time
	invite *InvitationService
}

func newAuthFixture(t *testing.T, opts ...AuthOption) *authFixture {
	t.Helper()
	db := openServiceTestDB(t)
	aside := newTestAside()
	invitations, err := NewInvitationService(db, aside)
	require.NoError(t, err)
	jobs := &recordingEnqueuer{}
	fx := &authFixture{db: db, jobs: jobs, now: time.Now().UTC(), invite: invitations}
	opts = append([]AuthOption{WithAuthClock(func() time.Time { return fx.now })}, opts...)
	svc, err := NewAuthService(db, aside, newTestTokenService(t, db), invitations, jobs, opts...)
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func studentInput(username string) RegisterInput {
	return RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Fullname: "Student " + username,
	}
}

func TestRegisterWithInviteCodeRecordsHistory(t *testing.T) {
	fx := newAuthFixture(t)
	teacher := seedUser(t, fx.db, "teacher1", withRole(models.RoleTeacher))
	seedInvitation(t, fx.db, teacher, "INVITE42", 2)

	input := studentInput("newstudent")
	input.InviteCode = "invite42"
	user, err := fx.svc.Register(context.Background(), nil, input)
	require.NoError(t, err)
	require.NotNil(t, user.InvitedBy)
	require.Equal(t, teacher.ID, *user.InvitedBy)
	require.False(t, user.IsVerify)
	require.Len(t, user.CodeVerify, verificationCodeDigits)

	var history models.HistoryInvitation
	require.NoError(t, fx.db.Where("invitee_id = ?", user.ID).First(&history).Error)
	require.Equal(t, teacher.ID, history.UserID)
	require.Equal(t, models.HistoryInvitationAccepted, history.Status)

	var code models.InvitationCode
	require.NoError(t, fx.db.Where("code = ?", "INVITE42").First(&code).Error)
	require.Equal(t, 1, code.UsesLeft)
	require.Equal(t, 1, code.TotalUses)

	jobs := fx.jobs.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, queue.JobVerifyEmail, jobs[0].name)
	payload, ok := jobs[0].payload.(queue.CodeEmailPayload)
	require.True(t, ok)
	require.Equal(t, user.CodeVerify, payload.Code)
	require.Equal(t, "newstudent@example.com", payload.Email)
}

func TestRegisterWithUnknownInviteCodeCreatesNothing(t *testing.T) {
	fx := newAuthFixture(t)

	input := studentInput("orphan")
	input.InviteCode = "NOPE1234"
	_, err := fx.svc.Register(context.Background(), nil, input)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	var count int64
	require.NoError(t, fx.db.Model(&models.User{}).Where("username = ?", "orphan").Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, fx.jobs.Jobs())
}

func TestRegisterDuplicateIsConflictWithoutEmail(t *testing.T) {
	fx := newAuthFixture(t)
	seedUser(t, fx.db, "taken")

	_, err := fx.svc.Register(context.Background(), nil, studentInput("taken"))
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrConflict))
	require.Empty(t, fx.jobs.Jobs())
}

func TestRegisterChecksNotFoundBeforeConflict(t *testing.T) {
	fx := newAuthFixture(t)
	seedUser(t, fx.db, "taken")

	input := studentInput("taken")
	input.InviteCode = "MISSING1"
	_, err := fx.svc.Register(context.Background(), nil, input)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRegisterRejectsInviteForNonStudent(t *testing.T) {
	fx := newAuthFixture(t)
	teacher := seedUser(t, fx.db, "teacher2", withRole(models.RoleTeacher))
	seedInvitation(t, fx.db, teacher, "PARENTS1", 5)

	input := studentInput("aparent")
	input.Role = models.RoleParent
	input.InviteCode = "PARENTS1"
	_, err := fx.svc.Register(context.Background(), nil, input)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	input = studentInput("anadmin")
	input.Role = models.RoleAdmin
	_, err = fx.svc.Register(context.Background(), nil, input)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestRegisterRejectsExhaustedInvite(t *testing.T) {
	fx := newAuthFixture(t)
	teacher := seedUser(t, fx.db, "teacher3", withRole(models.RoleTeacher))
	seedInvitation(t, fx.db, teacher, "ONCEONLY", 1)

	first := studentInput("first")
	first.InviteCode = "ONCEONLY"
	_, err := fx.svc.Register(context.Background(), nil, first)
	require.NoError(t, err)

	second := studentInput("second")
	second.InviteCode = "ONCEONLY"
	_, err = fx.svc.Register(context.Background(), nil, second)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	var count int64
	require.NoError(t, fx.db.Model(&models.User{}).Where("username = ?", "second").Count(&count).Error)
	require.Zero(t, count)
}

func TestVerifyEmailThenLogin(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	user, err := fx.svc.Register(ctx, nil, studentInput("verifyme"))
	require.NoError(t, err)

	_, err = fx.svc.Login(ctx, LoginInput{Identifier: "verifyme", Password: testPassword, DeviceID: "phone"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = fx.svc.VerifyEmail(ctx, user.Email, "000000x")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	verified, err := fx.svc.VerifyEmail(ctx, user.Email, user.CodeVerify)
	require.NoError(t, err)
	require.True(t, verified.IsVerify)

	result, err := fx.svc.Login(ctx, LoginInput{Identifier: "VerifyMe@example.com", Password: testPassword, DeviceID: "phone"})
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.NotNil(t, result.User.LastLoginAt)
}

func TestVerifyEmailRejectsExpiredCode(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	user, err := fx.svc.Register(ctx, nil, studentInput("slowpoke"))
	require.NoError(t, err)

	fx.now = fx.now.Add(defaultCodeTTL + time.Minute)
	_, err = fx.svc.VerifyEmail(ctx, user.Email, user.CodeVerify)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestLoginFailures(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, fx.db, "learner")

	_, err := fx.svc.Login(ctx, LoginInput{Identifier: "ghost", Password: testPassword, DeviceID: "d"})
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = fx.svc.Login(ctx, LoginInput{Identifier: "learner", Password: "wrong-pass", DeviceID: "d"})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	_, err = fx.svc.Login(ctx, LoginInput{Identifier: "learner", Password: testPassword})
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestRefreshRotatesTokens(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	seedUser(t, fx.db, "refresher")

	login, err := fx.svc.Login(ctx, LoginInput{Identifier: "refresher", Password: testPassword, DeviceID: "tablet"})
	require.NoError(t, err)

	refreshed, err := fx.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, login.User.ID, refreshed.User.ID)

	_, err = fx.svc.Refresh(ctx, "")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestForgotAndResetPasswordRevokesSessions(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	user := seedUser(t, fx.db, "forgetful")

	_, err := fx.svc.Login(ctx, LoginInput{Identifier: "forgetful", Password: testPassword, DeviceID: "laptop"})
	require.NoError(t, err)

	require.NoError(t, fx.svc.ForgotPassword(ctx, user.Email))
	var stored models.User
	require.NoError(t, fx.db.First(&stored, "id = ?", user.ID).Error)
	require.Len(t, stored.CodeVerify, verificationCodeDigits)

	err = fx.svc.ResetPassword(ctx, user.Email, stored.CodeVerify, "123")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	require.NoError(t, fx.svc.ResetPassword(ctx, user.Email, stored.CodeVerify, "new-password"))

	var tokens int64
	require.NoError(t, fx.db.Model(&models.Token{}).Where("user_id = ? AND is_revoked = ?", user.ID, false).Count(&tokens).Error)
	require.Zero(t, tokens)

	_, err = fx.svc.Login(ctx, LoginInput{Identifier: "forgetful", Password: "new-password", DeviceID: "laptop"})
	require.NoError(t, err)

	names := make([]string, 0)
	for _, job := range fx.jobs.Jobs() {
		names = append(names, job.name)
	}
	require.Equal(t, []string{queue.JobResetPassword, queue.JobPasswordChanged}, names)

	require.True(t, apperrors.Is(fx.svc.ForgotPassword(ctx, "nobody@example.com"), apperrors.ErrNotFound))
}

func TestChangePassword(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	user := seedUser(t, fx.db, "changer")

	err := fx.svc.ChangePassword(ctx, user.ID, "not-it", "another-one")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))

	require.NoError(t, fx.svc.ChangePassword(ctx, user.ID, testPassword, "another-one"))
	_, err = fx.svc.Login(ctx, LoginInput{Identifier: "changer", Password: "another-one", DeviceID: "d"})
	require.NoError(t, err)
}

func TestResendVerificationForVerifiedUser(t *testing.T) {
	fx := newAuthFixture(t)
	user := seedUser(t, fx.db, "already")

	err := fx.svc.ResendVerification(context.Background(), user.Email)
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestLogoutScopes(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	user := seedUser(t, fx.db, "multi")

	for _, device := range []string{"a", "b", "c"} {
		_, err := fx.svc.Login(ctx, LoginInput{Identifier: "multi", Password: testPassword, DeviceID: device})
		require.NoError(t, err)
	}

	require.NoError(t, fx.svc.LogoutDevice(ctx, user.ID, "a"))
	require.True(t, apperrors.Is(fx.svc.LogoutDevice(ctx, user.ID, "a"), apperrors.ErrNotFound))

	require.NoError(t, fx.svc.LogoutOthers(ctx, user.ID, "b"))
	var remaining []models.Token
	require.NoError(t, fx.db.Where("user_id = ? AND is_revoked = ?", user.ID, false).Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "b", remaining[0].DeviceID)

	require.NoError(t, fx.svc.LogoutAll(ctx, user.ID))
	require.True(t, apperrors.Is(fx.svc.LogoutAll(ctx, user.ID), apperrors.ErrNotFound))
}

type fakeVerifier struct {
	identity *providers.Identity
	err      error
}

func (f fakeVerifier) Metadata() providers.Metadata {
	return providers.Metadata{Type: "google", DisplayName: "Google"}
}

func (f fakeVerifier) Verify(context.Context, string) (*providers.Identity, error) {
	return f.identity, f.err
}

func newProviderFixture(t *testing.T, v fakeVerifier) *authFixture {
	t.Helper()
	registry := providers.NewRegistry()
	require.NoError(t, registry.Register(v))
	return newAuthFixture(t, WithProviders(registry))
}

func TestSignInWithProviderCreatesStudent(t *testing.T) {
	fx := newProviderFixture(t, fakeVerifier{identity: &providers.Identity{
		Provider:      "google",
		Subject:       "sub-1",
		Email:         "fresh.face@gmail.com",
		EmailVerified: true,
		DisplayName:   "Fresh Face",
	}})

	result, err := fx.svc.SignInWithProvider(context.Background(), "google", "id-token", "phone")
	require.NoError(t, err)
	require.Equal(t, models.RoleStudent, result.User.Role)
	require.Equal(t, "fresh.face", result.User.Username)
	require.True(t, result.User.IsVerify)
	require.NotEmpty(t, result.AccessToken)

	again, err := fx.svc.SignInWithProvider(context.Background(), "google", "id-token", "phone")
	require.NoError(t, err)
	require.Equal(t, result.User.ID, again.User.ID)
}

func TestSignInWithProviderLinksVerifiedEmail(t *testing.T) {
	fx := newProviderFixture(t, fakeVerifier{identity: &providers.Identity{
		Provider:      "google",
		Subject:       "sub-2",
		Email:         "linked@example.com",
		EmailVerified: true,
	}})
	existing := seedUser(t, fx.db, "linked", unverified())

	result, err := fx.svc.SignInWithProvider(context.Background(), "google", "id-token", "web")
	require.NoError(t, err)
	require.Equal(t, existing.ID, result.User.ID)

	var stored models.User
	require.NoError(t, fx.db.First(&stored, "id = ?", existing.ID).Error)
	require.Equal(t, "google", stored.Provider)
	require.Equal(t, "sub-2", stored.ProviderID)
	require.True(t, stored.IsVerify)
}

func TestSignInWithProviderErrors(t *testing.T) {
	fx := newProviderFixture(t, fakeVerifier{err: providers.ErrInvalidCredential})

	_, err := fx.svc.SignInWithProvider(context.Background(), "google", "bad", "web")
	require.True(t, apperrors.Is(err, ErrInvalidProviderCredential))
	require.Equal(t, 401, apperrors.FromError(err).StatusCode)

	_, err = fx.svc.SignInWithProvider(context.Background(), "myspace", "bad", "web")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}
