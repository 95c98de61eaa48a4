package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database/testutil"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/crypto"
)

const testPassword = "password123"

type enqueuedJob struct {
	name    string
	payload any
}

// recordingEnqueuer captures queued jobs instead of running them.
type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []enqueuedJob
	err  error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, enqueuedJob{name: name, payload: payload})
	return nil
}

func (r *recordingEnqueuer) Jobs() []enqueuedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]enqueuedJob(nil), r.jobs...)
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithSeedData())
}

func newTestAside() *cache.Aside {
	return cache.NewAside(cache.NewMemoryStore(time.Minute), cache.WithTTL(5*time.Minute), cache.WithInvalidation(true))
}

func newTestTokenService(t *testing.T, db *gorm.DB) *auth.TokenService {
	t.Helper()
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "happycat-test"})
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(db, jwtSvc, auth.TokenConfig{})
	require.NoError(t, err)
	return tokens
}

type userOption func(*models.User)

func withRole(role string) userOption {
	return func(u *models.User) { u.Role = role }
}

func withPackage(pkg string) userOption {
	return func(u *models.User) { u.AccountPackage = pkg }
}

func unverified() userOption {
	return func(u *models.User) { u.IsVerify = false }
}

func seedUser(t *testing.T, db *gorm.DB, username string, opts ...userOption) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword(testPassword)
	require.NoError(t, err)
	user := &models.User{
		Username:       username,
		Email:          username + "@example.com",
		Password:       hashed,
		Fullname:       username,
		Role:           models.RoleStudent,
		AccountPackage: models.PackageFree,
		IsVerify:       true,
		Provider:       models.ProviderLocal,
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedInvitation(t *testing.T, db *gorm.DB, creator *models.User, code string, usesLeft int) *models.InvitationCode {
	t.Helper()
	expires := time.Now().Add(24 * time.Hour)
	rec := &models.InvitationCode{
		CreatedBy: creator.ID,
		Code:      code,
		Type:      models.InvitationGroupJoin,
		UsesLeft:  usesLeft,
		StartedAt: time.Now().Add(-time.Hour),
		ExpiredAt: &expires,
	}
	require.NoError(t, db.Create(rec).Error)
	return rec
}
