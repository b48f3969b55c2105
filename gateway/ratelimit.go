package gateway

import (
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit returns a middleware admitting at most perMin requests per
// minute across all clients, with a small burst. The report pipeline fans
// out into upstream APIs with their own ceilings, so admission control sits
// in front of it rather than inside.
func RateLimit(perMin int, log *slog.Logger) func(http.Handler) http.Handler {
	if perMin <= 0 {
		perMin = 60
	}
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin/6+1)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("request rate limited", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.Header().Set("Retry-After", "10")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
