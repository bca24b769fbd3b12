package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/tutu-network/breathe/internal/domain"
	"github.com/tutu-network/breathe/internal/infra/metrics"
)

// ─── Monitoring ─────────────────────────────────────────────────────────────

// monitor records request metrics and an access log line. Routes are
// labelled by chi pattern so ids never reach a label value.
func monitor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ─── Authentication ─────────────────────────────────────────────────────────

const devUserHeader = "X-User-ID"

type ctxKey struct{}

// userFrom returns the authenticated caller, or "" outside the auth group.
func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// authenticator resolves the caller from an HS256 bearer token. The user
// id is the "sub" claim, falling back to "user_id".
type authenticator struct {
	secret    []byte
	devHeader bool
}

func newAuthenticator(secret string, devHeader bool) *authenticator {
	return &authenticator{secret: []byte(secret), devHeader: devHeader}
}

var errNoCredentials = fmt.Errorf("%w: missing bearer token", domain.ErrUnauthenticated)

func (a *authenticator) userID(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if a.devHeader {
			if id := strings.TrimSpace(r.Header.Get(devUserHeader)); id != "" {
				return id, nil
			}
		}
		return "", errNoCredentials
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || len(a.secret) == 0 {
		return "", fmt.Errorf("%w: unsupported authorization", domain.ErrUnauthenticated)
	}
	return a.verify(strings.TrimSpace(raw))
}

func (a *authenticator) verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	for _, key := range []string{"sub", "user_id"} {
		if id, _ := claims[key].(string); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.userID(r)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, errNoCredentials) {
				reason = "missing_credentials"
			}
			metrics.AuthRejections.WithLabelValues(reason).Inc()
			writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// ─── Rate Limiting ──────────────────────────────────────────────────────────

const visitorIdle = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per caller. Idle callers are swept
// on access at most once a minute.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	return &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *rateLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdle {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// middleware limits by authenticated user, falling back to the client
// address.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, kind := userFrom(r.Context()), "user"
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
			kind = "address"
		}
		if !l.get(key).Allow() {
			metrics.RateLimited.WithLabelValues(kind).Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
