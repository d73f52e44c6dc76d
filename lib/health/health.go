package health

import (
	"context"
	"net/http"
	"time"

	"github.com/icco/cinerec/lib/validation"
	"gorm.io/gorm"
)

// Component is the health of one dependency.
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health represents the health check response structure.
type Health struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	DB        Component  `json:"db"`
	Catalog   *Component `json:"catalog,omitempty"`
}

// BreakerState reports a circuit breaker's state.
type BreakerState interface {
	State() string
}

// Check returns an HTTP handler reporting database and catalog health. A
// failing database answers 503; a breaker that is not closed only degrades
// the status. breaker may be nil.
func Check(db *gorm.DB, breaker BreakerState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := Health{
			Status:    "ok",
			Timestamp: time.Now(),
			DB:        Component{Status: "ok"},
		}

		if breaker != nil {
			state := breaker.State()
			health.Catalog = &Component{Status: "ok"}
			if state != "closed" {
				health.Status = "degraded"
				health.Catalog.Status = "degraded"
				health.Catalog.Message = "circuit breaker " + state
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			health.Status = "degraded"
			health.DB = Component{Status: "error", Message: "Failed to get database connection"}
			validation.WriteJSON(w, health, http.StatusServiceUnavailable)
			return
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			health.Status = "degraded"
			health.DB = Component{Status: "error", Message: "Database ping failed"}
			validation.WriteJSON(w, health, http.StatusServiceUnavailable)
			return
		}

		validation.WriteJSON(w, health, http.StatusOK)
	}
}
