package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"singles-table-backend/pkg/utils"

	"golang.org/x/time/rate"
)

// LimiterStore keeps one token bucket per client key and forgets keys that
// have been idle longer than idleTTL.
type LimiterStore struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore 创建限流存储；rps<=0 表示不限流
func NewLimiterStore(rps float64, burst int) *LimiterStore {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &LimiterStore{
		entries:      make(map[string]*limiterEntry),
		rps:          limit,
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
}

// Get returns the limiter for key, creating it on first use.
func (s *LimiterStore) Get(key string) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops idle keys.
func (s *LimiterStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// Len 当前跟踪的客户端数量
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// RateLimit 按客户端限流：已认证请求按参与者ID，其余按IP
func RateLimit(store *LimiterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r)
			if user, ok := GetUserFromContext(r.Context()); ok {
				key = "participant:" + user.ID
			}

			lim := store.Get(key)
			res := lim.ReserveN(store.now(), 1)
			if !res.OK() {
				utils.WriteTooManyRequestsResponse(w, "Too many requests")
				return
			}
			if delay := res.DelayFrom(store.now()); delay > 0 {
				res.CancelAt(store.now())
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				fmt.Printf("⚠️  Rate limited %s on %s %s\n", key, r.Method, r.URL.Path)
				utils.WriteTooManyRequestsResponse(w, "Too many requests, please slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
