package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/petitionator/api/pkg/tokens"
)

const TOKEN_CACHE_TTL = time.Hour * 24

// TokenIndex caches token -> id lookups in front of the token columns in
// postgres. A miss is not an error; callers fall back to the database.
type TokenIndex struct {
	RedisClient *redis.Client
}

func tokenKey(scope tokens.Scope, token string) string {
	return "token:" + string(scope) + ":" + token
}

func (ti TokenIndex) Get(ctx context.Context, scope tokens.Scope, token string) (uint, bool, error) {
	res := ti.RedisClient.Get(ctx, tokenKey(scope, token))
	if err := res.Err(); err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}

		fmt.Fprintf(os.Stderr, "failed to get %v token from redis: %v\n", scope, err)
		return 0, false, err
	}

	id, err := strconv.ParseUint(res.Val(), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt %v token entry %q: %w", scope, res.Val(), err)
	}

	return uint(id), true, nil
}

func (ti TokenIndex) Set(ctx context.Context, scope tokens.Scope, token string, id uint) error {
	res := ti.RedisClient.SetEX(
		ctx,
		tokenKey(scope, token),
		strconv.FormatUint(uint64(id), 10),
		TOKEN_CACHE_TTL,
	)

	return res.Err()
}
