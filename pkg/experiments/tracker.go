// Package experiments counts wins for A/B tested options. Counters live in
// redis as one hash per experiment group, keyed by option.
package experiments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const FacebookSharingOptions = "facebook sharing options"

type Tracker struct {
	RedisClient *redis.Client
}

func NewTracker(r *redis.Client) *Tracker {
	return &Tracker{RedisClient: r}
}

func groupKey(group string) string {
	return "experiments:" + group
}

// Win records one win for option within group.
func (t *Tracker) Win(ctx context.Context, group, option string) error {
	return t.RedisClient.HIncrBy(ctx, groupKey(group), option, 1).Err()
}

// Results returns the win count of every option in group that won at least once.
func (t *Tracker) Results(ctx context.Context, group string) (map[string]int64, error) {
	raw, err := t.RedisClient.HGetAll(ctx, groupKey(group)).Result()
	if err != nil {
		return nil, err
	}

	results := make(map[string]int64, len(raw))
	for option, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt win count for %q/%q: %w", group, option, err)
		}
		results[option] = n
	}

	return results, nil
}
