package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/probelab/groundcheck/internal/config"
	"github.com/probelab/groundcheck/internal/httpapi"
	"github.com/probelab/groundcheck/internal/telemetry"
)

const (
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces per-client admission
// control. Clients are keyed by IP; limits come from the live config so a
// reload takes effect without a restart.
func Middleware(limiter *Limiter, cfg func() *config.Config, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := cfg().RateLimit
			if !rl.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			reqID := w.Header().Get("X-Request-ID")
			client := clientKey(r)

			decision, _ := limiter.Admit(r.Context(), client, rl)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.FormatInt(rl.Limit, 10))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(decision.Remaining, 10))
			w.Header().Set(headerRateLimitReset, decision.ResetAt.Format(time.RFC3339))

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("request denied by rate limiter",
				"request_id", reqID,
				"client", client,
				"dimension", decision.Dimension,
				"daily_used", decision.DailyUsed,
				"daily_limit", decision.DailyLimit,
			)
			if metrics != nil {
				metrics.RecordRateLimitHit(decision.Dimension)
			}
			w.Header().Set(headerRetryAfter, strconv.Itoa(int(decision.RetryAfter.Seconds())))

			var msg string
			if decision.Dimension == DimensionDaily {
				msg = fmt.Sprintf("Daily quota exceeded: used %d of %d requests", decision.DailyUsed, decision.DailyLimit)
			} else {
				msg = fmt.Sprintf("Rate limit exceeded: %d requests per %s. Retry after %s", rl.Limit, rl.Window, decision.ResetAt.Format(time.RFC3339))
			}
			httpapi.WriteRateLimitError(w, reqID, msg)
		})
	}
}

// clientKey derives the rate limit bucket for a request. Trusts the first
// X-Forwarded-For hop when present, otherwise the remote address.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
