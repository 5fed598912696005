package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"fleet-backend/internal/metrics"
	"fleet-backend/pkg/utils"
)

// PanicRecovery turns a handler panic into a 500 and counts it. A panic
// inside the webhook route therefore looks like an internal error to the
// bank, which redelivers.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				metrics.HandlerPanicsTotal.WithLabelValues(routeTemplate(r)).Inc()
				log.Printf("[Recovery] PANIC on %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				utils.RespondReason(w, http.StatusInternalServerError, "Internal server error", "internal-error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
