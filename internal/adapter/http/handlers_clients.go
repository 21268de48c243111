package http

import (
	"net/http"

	"github.com/Strob0t/LabCore/internal/domain/client"
	"github.com/Strob0t/LabCore/internal/service"
)

const maxPageSize = 500

func (h *Handlers) clientFilter(w http.ResponseWriter, r *http.Request) (service.ClientFilter, bool) {
	f := service.ClientFilter{Search: r.URL.Query().Get("q")}
	var ok bool
	if f.Active, ok = queryBool(w, r, "active"); !ok {
		return f, false
	}
	if f.Limit, ok = queryUint(w, r, "limit", maxPageSize); !ok {
		return f, false
	}
	if f.Offset, ok = queryUint(w, r, "offset", 0); !ok {
		return f, false
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	return f, true
}

// ListClients handles GET /api/v1/clients?q=&active=&limit=&offset=.
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	f, ok := h.clientFilter(w, r)
	if !ok {
		return
	}
	items, err := h.Clients.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err, "client not found")
		return
	}
	if items == nil {
		items = []client.Client{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CountClients handles GET /api/v1/clients/count.
func (h *Handlers) CountClients(w http.ResponseWriter, r *http.Request) {
	f, ok := h.clientFilter(w, r)
	if !ok {
		return
	}
	n, err := h.Clients.Count(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err, "client not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *Handlers) getClient() http.HandlerFunc {
	return handleGet(h.Clients.Get, "client not found")
}

func (h *Handlers) createClient() http.HandlerFunc {
	return handleCreate(h.bodyLimit(), h.Clients.Create)
}

func (h *Handlers) updateClient() http.HandlerFunc {
	return handleUpdate(h.bodyLimit(), h.Clients.Update, "client not found")
}

func (h *Handlers) deleteClient() http.HandlerFunc {
	return handleDelete(h.Clients.Delete, "client not found")
}
