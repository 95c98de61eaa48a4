package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database/testutil"
	"github.com/charlesng35/happycat/internal/models"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

func newTokenFixture(t *testing.T, cfg TokenConfig) (*TokenService, *gorm.DB, *models.User) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwtSvc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "happycat"})
	require.NoError(t, err)
	svc, err := NewTokenService(db, jwtSvc, cfg)
	require.NoError(t, err)

	user := &models.User{
		Username: "learner",
		Email:    "learner@example.com",
		Password: "x",
		Role:     models.RoleStudent,
		IsVerify: true,
	}
	require.NoError(t, db.Create(user).Error)
	return svc, db, user
}

func validate(t *testing.T, svc *TokenService, access string) error {
	t.Helper()
	claims, err := svc.JWT().ValidateAccessToken(access)
	require.NoError(t, err)
	_, err = svc.Validate(context.Background(), claims, access)
	return err
}

func TestIssueAndValidate(t *testing.T) {
	svc, db, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64(DefaultAccessTokenTTL.Seconds()), pair.ExpiresIn)
	require.NoError(t, validate(t, svc, pair.AccessToken))

	var count int64
	require.NoError(t, db.Model(&models.Token{}).Where("user_id = ?", user.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIssueRequiresDevice(t *testing.T) {
	svc, _, user := newTokenFixture(t, TokenConfig{})
	_, err := svc.Issue(context.Background(), nil, user, " ")
	require.True(t, apperrors.Is(err, apperrors.ErrBadRequest))
}

func TestReissueReplacesPreviousTokenForDevice(t *testing.T) {
	svc, db, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	first, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)

	require.True(t, apperrors.Is(validate(t, svc, first.AccessToken), apperrors.ErrTokenRevoked))
	require.NoError(t, validate(t, svc, second.AccessToken))

	var count int64
	require.NoError(t, db.Model(&models.Token{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestRevokeDeviceRejectsStructurallyValidToken(t *testing.T) {
	svc, _, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeDevice(ctx, nil, user.ID, "phone"))
	require.True(t, apperrors.Is(validate(t, svc, pair.AccessToken), apperrors.ErrTokenRevoked))

	err = svc.RevokeDevice(ctx, nil, user.ID, "phone")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	again, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)
	require.NoError(t, validate(t, svc, again.AccessToken))
}

func TestRevokeOthersKeepsCurrentDevice(t *testing.T) {
	svc, _, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	phone, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)
	laptop, err := svc.Issue(ctx, nil, user, "laptop")
	require.NoError(t, err)
	tablet, err := svc.Issue(ctx, nil, user, "tablet")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeOthers(ctx, nil, user.ID, "phone"))
	require.NoError(t, validate(t, svc, phone.AccessToken))
	require.Error(t, validate(t, svc, laptop.AccessToken))
	require.Error(t, validate(t, svc, tablet.AccessToken))

	err = svc.RevokeOthers(ctx, nil, user.ID, "phone")
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRevokeAll(t *testing.T) {
	svc, _, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	err := svc.RevokeAll(ctx, nil, user.ID)
	require.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	a, err := svc.Issue(ctx, nil, user, "a")
	require.NoError(t, err)
	b, err := svc.Issue(ctx, nil, user, "b")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAll(ctx, nil, user.ID))
	require.Error(t, validate(t, svc, a.AccessToken))
	require.Error(t, validate(t, svc, b.AccessToken))
}

func TestRefreshRotatesPair(t *testing.T) {
	svc, _, user := newTokenFixture(t, TokenConfig{})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)

	next, got, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEqual(t, pair.AccessToken, next.AccessToken)
	require.NoError(t, validate(t, svc, next.AccessToken))
	require.Error(t, validate(t, svc, pair.AccessToken))

	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.True(t, apperrors.Is(err, apperrors.ErrTokenRevoked))

	require.NoError(t, svc.RevokeDevice(ctx, nil, user.ID, "phone"))
	_, _, err = svc.Refresh(ctx, next.RefreshToken)
	require.True(t, apperrors.Is(err, apperrors.ErrTokenRevoked))

	_, _, err = svc.Refresh(ctx, "garbage")
	require.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))
}

func TestValidationCacheIsDroppedOnRevoke(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	svc, _, user := newTokenFixture(t, TokenConfig{Cache: NewTokenCache(store), CacheTTL: time.Minute})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)
	require.NoError(t, validate(t, svc, pair.AccessToken))
	require.Equal(t, 1, store.Len())

	require.NoError(t, svc.RevokeDevice(ctx, nil, user.ID, "phone"))
	require.Zero(t, store.Len())
	require.True(t, apperrors.Is(validate(t, svc, pair.AccessToken), apperrors.ErrTokenRevoked))
}

// racingTokenCache runs beforeSet once, ahead of the first store.
type racingTokenCache struct {
	TokenCache
	beforeSet func()
}

func (c *racingTokenCache) Set(ctx context.Context, token *models.Token, ttl time.Duration) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	return c.TokenCache.Set(ctx, token, ttl)
}

func TestValidationCacheIgnoresRevokeDuringLookup(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute)
	racing := &racingTokenCache{TokenCache: NewTokenCache(store)}
	svc, _, user := newTokenFixture(t, TokenConfig{Cache: racing, CacheTTL: time.Minute})
	ctx := context.Background()

	pair, err := svc.Issue(ctx, nil, user, "phone")
	require.NoError(t, err)

	racing.beforeSet = func() {
		require.NoError(t, svc.RevokeAll(ctx, nil, user.ID))
	}
	require.True(t, apperrors.Is(validate(t, svc, pair.AccessToken), apperrors.ErrTokenRevoked))
	require.Zero(t, store.Len())
	require.True(t, apperrors.Is(validate(t, svc, pair.AccessToken), apperrors.ErrTokenRevoked))
}

func TestPurgeRevoked(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, db, user := newTokenFixture(t, TokenConfig{Clock: func() time.Time { return now }})
	ctx := context.Background()

	_, err := svc.Issue(ctx, nil, user, "a")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, nil, user, "b")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeDevice(ctx, nil, user.ID, "a"))

	n, err := svc.PurgeRevoked(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	var remaining []models.Token
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "b", remaining[0].DeviceID)
}
