package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paymall/paymall-backend/api/responses"
	pkgerrors "github.com/paymall/paymall-backend/pkg/errors"
	"github.com/paymall/paymall-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(policy, scope, id string) string
}

// RateLimitPolicy caps hits per client IP and per value of one URL param
// within a fixed window.
type RateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	param      string
	paramLimit int
}

func NewRateLimitPolicy(name string, window time.Duration, ipLimit int, param string, paramLimit int) RateLimitPolicy {
	return RateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		param:      param,
		paramLimit: paramLimit,
	}
}

type limitCheck struct {
	scope string
	id    string
	limit int
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || (p.param != "" && p.paramLimit > 0))
}

// RateLimit enforces the policy. A nil store disables it.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			checks := []limitCheck{{scope: "ip", id: clientIP(r), limit: policy.ipLimit}}
			if policy.param != "" {
				checks = append(checks, limitCheck{
					scope: policy.param,
					id:    strings.TrimSpace(chi.URLParam(r, policy.param)),
					limit: policy.paramLimit,
				})
			}

			for _, check := range checks {
				if check.limit <= 0 || check.id == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.name, check.scope, check.id), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(check.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":   policy.name,
							"scope":    check.scope,
							"attempts": count,
							"limit":    check.limit,
						}), "rate_limit.blocked")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
