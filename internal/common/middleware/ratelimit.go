package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
	"time"

	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/response"
	"healthtrack-backend/pkg/phone"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets requests by client IP
func ClientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// maxKeyBody bounds how much of a JSON body PhoneKey reads
const maxKeyBody = 4 << 10

// PhoneKey buckets requests by the normalized "phone" field of a JSON body,
// so every accepted spelling of a number shares one bucket. Requests without
// a valid phone fall back to the client IP. The body is restored for the
// handler.
func PhoneKey(c *gin.Context) string {
	if c.Request.Body == nil {
		return ClientIPKey(c)
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxKeyBody))
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ClientIPKey(c)
	}

	var body struct {
		Phone string `json:"phone"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ClientIPKey(c)
	}
	normalized, ok := phone.Normalize(body.Phone)
	if !ok {
		return ClientIPKey(c)
	}
	return "phone:" + normalized
}

// RateLimitOption customizes a RateLimiter
type RateLimitOption func(*RateLimiter)

// WithKeyFunc replaces the default client IP bucketing
func WithKeyFunc(fn KeyFunc) RateLimitOption {
	return func(r *RateLimiter) { r.key = fn }
}

// WithMessage replaces the message sent with the 429 response
func WithMessage(message string) RateLimitOption {
	return func(r *RateLimiter) { r.message = message }
}

// RateLimiter is a token bucket per key, idle buckets are dropped after window
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	window  time.Duration
	key     KeyFunc
	message string

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the provided requests-per-minute budget.
// A non-positive budget disables throttling.
func NewRateLimiter(requestsPerMinute int, opts ...RateLimitOption) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	r := &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		key:     ClientIPKey,
		message: "too many requests, slow down",
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handler returns the gin middleware. A nil limiter lets everything through.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		now := time.Now()
		reservation := r.limiterFor(r.key(c), now).ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			response.Error(c, nil, apperror.RateLimited(r.message, delay))
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.buckets[key] = &bucket{limiter: limiter, lastSeen: now}
	r.evictIdleLocked(now)
	return limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.window {
			delete(r.buckets, key)
		}
	}
}
