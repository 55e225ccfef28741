package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatdesk/chatdesk/pkg/errors"
	"github.com/chatdesk/chatdesk/pkg/i18n"
	"github.com/chatdesk/chatdesk/pkg/types"
	"github.com/chatdesk/chatdesk/pkg/utils"
)

func tokenCacheKey(tokenValue string) string {
	return fmt.Sprintf("user:token:%s", utils.MD5(tokenValue))
}

// ValidateTokenFromCache resolves an auth token to its cached identity.
func ValidateTokenFromCache(ctx context.Context, tokenValue string, cache types.Cache) (*types.UserTokenMeta, error) {
	if tokenValue == "" {
		return nil, errors.New("auth.ValidateTokenFromCache.empty_token", i18n.ERROR_UNAUTHORIZED, nil).Code(http.StatusUnauthorized)
	}

	tokenMetaStr, err := cache.Get(ctx, tokenCacheKey(tokenValue))
	if err != nil && err != redis.Nil {
		return nil, errors.New("auth.ValidateTokenFromCache.cache_get", i18n.ERROR_INTERNAL, err)
	}

	if tokenMetaStr == "" {
		return nil, errors.New("auth.ValidateTokenFromCache.token_not_found", i18n.ERROR_UNAUTHORIZED, fmt.Errorf("nil token")).Code(http.StatusUnauthorized)
	}

	var meta types.UserTokenMeta
	if err := json.Unmarshal([]byte(tokenMetaStr), &meta); err != nil {
		return nil, errors.New("auth.ValidateTokenFromCache.unmarshal", i18n.ERROR_INTERNAL, err).Code(http.StatusUnauthorized)
	}

	return &meta, nil
}

// SaveTokenToCache stores the identity behind a freshly issued token until it
// expires.
func SaveTokenToCache(ctx context.Context, tokenValue string, meta types.UserTokenMeta, cache types.Cache) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.New("auth.SaveTokenToCache.marshal", i18n.ERROR_INTERNAL, err)
	}

	ttl := time.Until(time.Unix(meta.ExpireAt, 0))
	if ttl <= 0 {
		return errors.New("auth.SaveTokenToCache.expired", i18n.ERROR_INVALIDARGUMENT, fmt.Errorf("token already expired")).Code(http.StatusBadRequest)
	}

	if err := cache.SetEx(ctx, tokenCacheKey(tokenValue), string(raw), ttl); err != nil {
		return errors.New("auth.SaveTokenToCache.cache_set", i18n.ERROR_INTERNAL, err)
	}
	return nil
}
