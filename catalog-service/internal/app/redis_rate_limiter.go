package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounterScript counts one hit in a window bucket. The expiry only
// reclaims old buckets; window boundaries come from the bucket index.
var windowCounterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisRateLimiter is a clock-aligned fixed-window counter shared by every
// catalog replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "lms:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: trimmed, now: time.Now}
}

// windowBucket returns the index of the window holding now and the whole
// seconds until that window closes, never less than one.
func windowBucket(now time.Time, window time.Duration) (int64, int) {
	if window < time.Second {
		window = time.Second
	}
	windowMs := window.Milliseconds()
	nowMs := now.UnixMilli()
	bucket := nowMs / windowMs
	remainingMs := (bucket+1)*windowMs - nowMs
	retryAfter := int((remainingMs + 999) / 1000)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return bucket, retryAfter
}

// ConsumeRateLimit counts one request for subject in scope and returns the
// running count for the current window and the seconds until it resets.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	bucket, retryAfter := windowBucket(r.now(), window)
	key := fmt.Sprintf("%s:%s:%s:%d", r.prefix, scope, subject, bucket)
	// Keep the bucket one extra window so a skewed replica still sees it.
	ttl := 2 * window
	if ttl < 2*time.Second {
		ttl = 2 * time.Second
	}

	count, err := windowCounterScript.Run(ctx, r.client, []string{key}, ttl.Milliseconds()).Int()
	if err != nil {
		return 0, 0, fmt.Errorf("enroll rate limiter: %w", err)
	}
	return count, retryAfter, nil
}
