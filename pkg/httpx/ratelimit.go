package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/marquee/pkg/slogx"
	"golang.org/x/time/rate"
)

// ThrottleConfig is a token bucket: RequestsPerWindow refill over Window,
// with up to Burst available at once.
type ThrottleConfig struct {
	RequestsPerWindow int           `yaml:"requests" envconfig:"REQUESTS"`
	Window            time.Duration `yaml:"window" envconfig:"WINDOW"`
	Burst             int           `yaml:"burst" envconfig:"BURST"`
}

// Coarse per-IP profiles for route groups. Per-account budgets and lockout
// are enforced by the services through pkg/guard.
var (
	// StrictThrottle fronts the credential endpoints.
	StrictThrottle = ThrottleConfig{RequestsPerWindow: 30, Window: time.Minute, Burst: 10}

	// ModerateThrottle fronts authenticated account operations.
	ModerateThrottle = ThrottleConfig{RequestsPerWindow: 120, Window: time.Minute, Burst: 30}

	// PublicThrottle fronts health and docs.
	PublicThrottle = ThrottleConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000}
)

// KeyExtractor derives the throttling key from a request.
type KeyExtractor func(*http.Request) string

// ClientIP returns the caller's address. Forwarding headers are honoured
// only behind a trusted reverse proxy; otherwise anyone could pick their
// own lockout key.
func ClientIP(trustProxy bool) KeyExtractor {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return ip
	}
}

// CompositeKeyExtractor joins the non-empty keys of extractors with sep.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

type throttle struct {
	limiters    sync.Map // map[string]*rate.Limiter
	rate        rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func (t *throttle) limiter(key string) *rate.Limiter {
	if l, ok := t.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	actual, _ := t.limiters.LoadOrStore(key, rate.NewLimiter(t.rate, t.burst))
	t.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters (full buckets) at most every 5 minutes.
func (t *throttle) maybeCleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastCleanup) < 5*time.Minute {
		return
	}
	t.lastCleanup = time.Now()

	t.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(t.burst) {
			t.limiters.Delete(key)
		}
		return true
	})
}

// Throttle rejects requests beyond cfg with 429 rate_limited.
func Throttle(cfg ThrottleConfig, keyFn KeyExtractor) Middleware {
	t := &throttle{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			l := t.limiter(key)
			if !l.Allow() {
				res := l.Reserve()
				delay := res.Delay()
				res.Cancel()

				retryAfter := max(int((delay+time.Second-1)/time.Second), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))

				slogx.FromContext(r.Context()).Warn("throttled",
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
