package middleware

import (
	"context"
	"net/http"

	"github.com/filmclub/cinema-service/internal/cleanup"
)

// SweepTrigger opportunistically kicks a cleanup sweep before serving any
// inbound request. The sweep runs off the request goroutine and the
// engine's own guard collapses concurrent triggers, so request latency is
// unaffected.
func SweepTrigger(engine *cleanup.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			go engine.Sweep(context.Background())

			next.ServeHTTP(w, r)
		})
	}
}
