package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/models"
)

const tokenCacheKeyPrefix = "auth:tokens:"

var errTokenCacheMiss = errors.New("token cache miss")

// TokenCache keeps recently validated token records keyed by token hash so
// authenticated requests can skip the database lookup.
type TokenCache interface {
	Get(ctx context.Context, tokenHash string) (*models.Token, error)
	Set(ctx context.Context, token *models.Token, ttl time.Duration) error
	Delete(ctx context.Context, tokenHashes ...string) error
}

// NewTokenCache wraps a shared cache store. A nil store yields a nil cache.
func NewTokenCache(store cache.Store) TokenCache {
	if store == nil {
		return nil
	}
	return &tokenStoreCache{store: store}
}

type tokenStoreCache struct {
	store cache.Store
}

type cachedToken struct {
	ID       string `json:"id"`
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
}

func (c *tokenStoreCache) Get(ctx context.Context, tokenHash string) (*models.Token, error) {
	key := tokenCacheKey(tokenHash)
	if key == "" {
		return nil, errTokenCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errTokenCacheMiss
	}

	var entry cachedToken
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("token cache: decode: %w", err)
	}
	tok := &models.Token{UserID: entry.UserID, DeviceID: entry.DeviceID, TokenHash: tokenHash}
	tok.ID = entry.ID
	return tok, nil
}

func (c *tokenStoreCache) Set(ctx context.Context, token *models.Token, ttl time.Duration) error {
	if token == nil {
		return errors.New("token cache: token is nil")
	}
	key := tokenCacheKey(token.TokenHash)
	if key == "" {
		return errors.New("token cache: token hash missing")
	}

	payload, err := json.Marshal(cachedToken{ID: token.ID, UserID: token.UserID, DeviceID: token.DeviceID})
	if err != nil {
		return fmt.Errorf("token cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.store.Set(ctx, key, payload, ttl)
}

func (c *tokenStoreCache) Delete(ctx context.Context, tokenHashes ...string) error {
	keys := make([]string, 0, len(tokenHashes))
	for _, h := range tokenHashes {
		if key := tokenCacheKey(h); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

func tokenCacheKey(hash string) string {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return ""
	}
	return tokenCacheKeyPrefix + hash
}
