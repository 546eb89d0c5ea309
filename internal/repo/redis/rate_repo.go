package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Submission throttle counters, one key per user per window. Counters
// expire with their window, so idle users leave nothing behind.
const (
	submitMinuteKeyPrefix = "rate:submit:min:"
	submitHourKeyPrefix   = "rate:submit:hour:"
)

type RateRepo struct {
	client *goredis.Client
}

func NewRateRepo(client *goredis.Client) *RateRepo {
	return &RateRepo{client: client}
}

// IncrSubmission counts one submission attempt against the user's window
// and returns the new count with the time left until the window resets.
// The first attempt in a window arms the expiry.
func (r *RateRepo) IncrSubmission(ctx context.Context, userID int64, window time.Duration) (int64, time.Duration, error) {
	key, err := r.submissionKey(userID, window)
	if err != nil {
		return 0, 0, err
	}

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment submission counter: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("arm submission window expiry: %w", err)
		}
	}

	ttl, err := r.windowTTL(ctx, key)
	if err != nil {
		return 0, 0, err
	}

	return count, ttl, nil
}

// SubmissionState reads the user's current count and remaining window
// without charging an attempt. A missing counter reads as zero.
func (r *RateRepo) SubmissionState(ctx context.Context, userID int64, window time.Duration) (int64, time.Duration, error) {
	key, err := r.submissionKey(userID, window)
	if err != nil {
		return 0, 0, err
	}

	count, err := r.client.Get(ctx, key).Int64()
	if err != nil && err != goredis.Nil {
		return 0, 0, fmt.Errorf("read submission counter: %w", err)
	}
	if err == goredis.Nil {
		return 0, 0, nil
	}

	ttl, err := r.windowTTL(ctx, key)
	if err != nil {
		return 0, 0, err
	}

	return count, ttl, nil
}

func (r *RateRepo) submissionKey(userID int64, window time.Duration) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return "", fmt.Errorf("invalid user id %d", userID)
	}
	if window <= 0 {
		return "", fmt.Errorf("invalid submission window %s", window)
	}

	prefix := submitMinuteKeyPrefix
	if window >= time.Hour {
		prefix = submitHourKeyPrefix
	}
	return prefix + strconv.FormatInt(userID, 10), nil
}

func (r *RateRepo) windowTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("read submission window ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl, nil
}
