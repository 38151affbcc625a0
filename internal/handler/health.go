package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kupapos/kupa/internal/logx"
)

// Pinger is satisfied by *repository.RevocationStore; wrap (*sql.DB).PingContext
// in a PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler checks the credential database and the revocation store.
type HealthHandler struct {
	DB    Pinger
	Store Pinger
}

// Health answers 200 when both dependencies respond and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := echo.Map{"status": "ok", "db": "ok", "redis": "ok"}
	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			logx.FromContext(ctx).Warn("health check failed", "dependency", name, "error", err)
			report[name] = "unavailable"
			report["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	check("db", h.DB)
	check("redis", h.Store)
	return c.JSON(status, report)
}
