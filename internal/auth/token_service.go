package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/crypto"
	apperrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/metrics"
)

// Revocation scopes reported to metrics.
const (
	ScopeAll    = "all"
	ScopeDevice = "device"
	ScopeOthers = "others"
)

// TokenConfig describes tunable behaviour for the TokenService.
type TokenConfig struct {
	// CacheTTL enables the validation cache when positive.
	CacheTTL time.Duration
	Cache    TokenCache
	Clock    func() time.Time
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues per-device bearer credentials and keeps the server
// side record that makes them revocable.
type TokenService struct {
	db       *gorm.DB
	jwt      *JWTService
	now      func() time.Time
	cache    TokenCache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewTokenService constructs a token manager backed by the provided database and JWT service.
func NewTokenService(db *gorm.DB, jwtService *JWTService, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("token service: jwt service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	svc := &TokenService{
		db:  db,
		jwt: jwtService,
		now: clock,
		log: logger.WithModule("auth"),
	}
	if cfg.Cache != nil && cfg.CacheTTL > 0 {
		svc.cache = cfg.Cache
		svc.cacheTTL = cfg.CacheTTL
	}
	return svc, nil
}

// JWT exposes the signer used by the service.
func (s *TokenService) JWT() *JWTService {
	return s.jwt
}

// Issue signs a token pair for the device and upserts its record. A revoked
// record for the same device is reactivated with the new hashes.
func (s *TokenService) Issue(ctx context.Context, outer *database.Tx, user *models.User, deviceID string) (TokenPair, error) {
	deviceID = strings.TrimSpace(deviceID)
	if user == nil || user.ID == "" {
		return TokenPair{}, errors.New("token service: user is required")
	}
	if deviceID == "" {
		return TokenPair{}, apperrors.NewBadRequest("device id is required")
	}

	input := TokenInput{UserID: user.ID, DeviceID: deviceID, Role: user.Role}
	access, err := s.jwt.GenerateAccessToken(input)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(input)
	if err != nil {
		return TokenPair{}, fmt.Errorf("token service: generate refresh token: %w", err)
	}

	err = database.Run(ctx, s.db, outer, func(tx *database.Tx) error {
		return s.upsert(tx, user.ID, deviceID, access, refresh)
	})
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwt.AccessTTL().Seconds()),
	}, nil
}

func (s *TokenService) upsert(tx *database.Tx, userID, deviceID, access, refresh string) error {
	now := s.now()
	record := models.Token{
		UserID:      userID,
		DeviceID:    deviceID,
		TokenHash:   crypto.HashToken(access),
		RefreshHash: crypto.HashToken(refresh),
		LastSeen:    &now,
	}

	var previous string
	if s.cache != nil {
		var hashes []string
		if err := tx.DB().Model(&models.Token{}).
			Where("user_id = ? AND device_id = ?", userID, deviceID).
			Pluck("token_hash", &hashes).Error; err == nil && len(hashes) > 0 {
			previous = hashes[0]
		}
	}

	err := tx.DB().Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"token_hash":   record.TokenHash,
			"refresh_hash": record.RefreshHash,
			"is_revoked":   false,
			"revoked_at":   nil,
			"last_seen":    now,
			"updated_at":   now,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("token service: upsert token: %w", err)
	}

	if previous != "" {
		s.dropCached(tx, previous)
	}
	return nil
}

// Validate checks that the raw access token described by claims is backed by
// a live record. Revoked or replaced tokens are rejected even when the JWT
// itself is still valid.
func (s *TokenService) Validate(ctx context.Context, claims *Claims, raw string) (*models.Token, error) {
	if claims == nil || strings.TrimSpace(raw) == "" {
		return nil, apperrors.ErrUnauthorized
	}
	hash := crypto.HashToken(raw)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, hash)
		switch {
		case err == nil && cached.UserID == claims.UserID && cached.DeviceID == claims.DeviceID:
			return cached, nil
		case err != nil && !errors.Is(err, errTokenCacheMiss):
			s.log.Warn("token cache lookup failed", zap.Error(err))
		}
	}

	var record models.Token
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND token_hash = ? AND is_revoked = ?", claims.UserID, claims.DeviceID, hash, false).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Warn("token revoked or replaced",
			zap.String("user_id", claims.UserID),
			zap.String("device_id", claims.DeviceID),
		)
		return nil, apperrors.ErrTokenRevoked
	}
	if err != nil {
		return nil, fmt.Errorf("token service: find token: %w", err)
	}

	if s.cache != nil {
		if err := s.cacheLive(ctx, &record); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

// cacheLive stores record and then re-reads it. A revoke or reissue that
// committed between the first read and the store has already evicted, so the
// entry is dropped here and the token rejected.
func (s *TokenService) cacheLive(ctx context.Context, record *models.Token) error {
	if err := s.cache.Set(ctx, record, s.cacheTTL); err != nil {
		s.log.Warn("token cache store failed", zap.Error(err))
		return nil
	}

	var current models.Token
	err := s.db.WithContext(ctx).
		Select("is_revoked", "token_hash").
		Where("id = ?", record.ID).
		Take(&current).Error
	if err == nil && !current.IsRevoked && current.TokenHash == record.TokenHash {
		return nil
	}
	if derr := s.cache.Delete(ctx, record.TokenHash); derr != nil {
		s.log.Warn("token cache eviction failed", zap.Error(derr))
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("token service: recheck token: %w", err)
	}
	return apperrors.ErrTokenRevoked
}

// Refresh exchanges a refresh token for a new pair on the same device. The
// refresh token must match the device record and the record must be live.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *models.User, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, apperrors.ErrUnauthorized.WithInternal(err)
	}

	var (
		pair TokenPair
		user models.User
	)
	err = database.Run(ctx, s.db, nil, func(tx *database.Tx) error {
		var record models.Token
		err := tx.DB().
			Where("user_id = ? AND device_id = ? AND refresh_hash = ? AND is_revoked = ?",
				claims.UserID, claims.DeviceID, crypto.HashToken(refreshToken), false).
			Take(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrTokenRevoked
		}
		if err != nil {
			return fmt.Errorf("token service: find token: %w", err)
		}

		err = tx.DB().Where("id = ? AND is_active = ?", claims.UserID, true).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUnauthorized
		}
		if err != nil {
			return fmt.Errorf("token service: find user: %w", err)
		}

		pair, err = s.Issue(ctx, tx, &user, claims.DeviceID)
		return err
	})
	if err != nil {
		return TokenPair{}, nil, err
	}
	metrics.AuthAttempts.WithLabelValues("refresh", "success").Inc()
	return pair, &user, nil
}

// RevokeAll revokes every live token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, outer *database.Tx, userID string) error {
	return s.revoke(ctx, outer, ScopeAll, "No tokens found.", func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND is_revoked = ?", userID, false)
	})
}

// RevokeDevice revokes the live token of one device.
func (s *TokenService) RevokeDevice(ctx context.Context, outer *database.Tx, userID, deviceID string) error {
	return s.revoke(ctx, outer, ScopeDevice, "Token not found.", func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND device_id = ? AND is_revoked = ?", userID, deviceID, false)
	})
}

// RevokeOthers revokes every live token of the user except deviceID.
func (s *TokenService) RevokeOthers(ctx context.Context, outer *database.Tx, userID, deviceID string) error {
	return s.revoke(ctx, outer, ScopeOthers, "No tokens found.", func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? AND device_id <> ? AND is_revoked = ?", userID, deviceID, false)
	})
}

func (s *TokenService) revoke(ctx context.Context, outer *database.Tx, scope, notFound string, filter func(*gorm.DB) *gorm.DB) error {
	return database.Run(ctx, s.db, outer, func(tx *database.Tx) error {
		var hashes []string
		if s.cache != nil {
			if err := filter(tx.DB().Model(&models.Token{})).Pluck("token_hash", &hashes).Error; err != nil {
				return fmt.Errorf("token service: list tokens: %w", err)
			}
		}

		now := s.now()
		res := filter(tx.DB().Model(&models.Token{})).Updates(map[string]any{
			"is_revoked": true,
			"revoked_at": now,
		})
		if res.Error != nil {
			return fmt.Errorf("token service: revoke tokens: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFound(notFound)
		}

		metrics.TokensRevoked.WithLabelValues(scope).Add(float64(res.RowsAffected))
		s.dropCached(tx, hashes...)
		return nil
	})
}

// dropCached evicts hashes once the surrounding transaction commits.
func (s *TokenService) dropCached(tx *database.Tx, hashes ...string) {
	if s.cache == nil || len(hashes) == 0 {
		return
	}
	tx.AfterCommit(func(ctx context.Context) error {
		return s.cache.Delete(ctx, hashes...)
	})
}

// PurgeRevoked deletes revoked records older than cutoff.
func (s *TokenService) PurgeRevoked(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_revoked = ? AND revoked_at < ?", true, cutoff).
		Delete(&models.Token{})
	if res.Error != nil {
		return 0, fmt.Errorf("token service: purge revoked: %w", res.Error)
	}
	return res.RowsAffected, nil
}
