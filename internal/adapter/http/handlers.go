package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Strob0t/LabCore/internal/service"
)

// DefaultBodyLimit caps JSON request bodies when Handlers.BodyLimit is unset.
const DefaultBodyLimit = 1 << 20

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handlers and their services.
type Handlers struct {
	Tenants   *service.TenantService
	Users     *service.UserService
	Directory *service.DirectoryService
	Clients   *service.ClientService
	BodyLimit int64
	Checks    map[string]HealthCheck
}

func (h *Handlers) bodyLimit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return DefaultBodyLimit
}

type healthStatus struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /health. It returns 503 when any dependency check fails.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := healthStatus{Status: "ok", Dependencies: map[string]string{}}
	code := http.StatusOK
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			status.Dependencies[name] = "unavailable"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Dependencies[name] = "ok"
	}
	writeJSON(w, code, status)
}
