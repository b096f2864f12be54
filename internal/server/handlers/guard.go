package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/stats"
	"github.com/robert1948/localstorm-sub000/internal/store"
)

// defaultClientLimit bounds /guard/clients responses unless the caller asks
// for more.
const defaultClientLimit = 100

// Guard serves the admin inspection surface over the admission engine.
type Guard struct {
	ctrl  *guard.Controller
	live  *stats.Live
	audit *store.Store
}

// NewGuard builds the admin handler set. live and audit may be nil; the
// stats and events endpoints degrade accordingly.
func NewGuard(ctrl *guard.Controller, live *stats.Live, audit *store.Store) *Guard {
	return &Guard{ctrl: ctrl, live: live, audit: audit}
}

// ClientsResponse wraps the tracked-client listing.
type ClientsResponse struct {
	Count   int                    `json:"count"`
	Clients []guard.ClientSnapshot `json:"clients"`
}

// ListClients returns tracked clients ordered by worst reputation first.
func (h *Guard) ListClients(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultClientLimit)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	clients := h.ctrl.SnapshotClients(limit)
	if clients == nil {
		clients = []guard.ClientSnapshot{}
	}
	writeJSON(w, http.StatusOK, ClientsResponse{Count: len(clients), Clients: clients})
}

// BlocksResponse wraps the active-block listing.
type BlocksResponse struct {
	Count  int                   `json:"count"`
	Blocks []guard.BlockSnapshot `json:"blocks"`
}

// ListBlocks returns active blocks, longest remaining first.
func (h *Guard) ListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks := h.ctrl.SnapshotBlocks()
	if blocks == nil {
		blocks = []guard.BlockSnapshot{}
	}
	writeJSON(w, http.StatusOK, BlocksResponse{Count: len(blocks), Blocks: blocks})
}

// UnblockResponse confirms a lifted block.
type UnblockResponse struct {
	Client    string `json:"client"`
	Unblocked bool   `json:"unblocked"`
}

// Unblock lifts an active block ahead of its expiry.
func (h *Guard) Unblock(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("client key is required"))
		return
	}
	if !h.ctrl.Unblock(key) {
		respondWithError(w, r, apperrors.NewNotFoundError("no active block for client "+key))
		return
	}
	writeJSON(w, http.StatusOK, UnblockResponse{Client: key, Unblocked: true})
}

// StatsResponse aggregates engine and decision counters.
type StatsResponse struct {
	Engine    guard.Stats     `json:"engine"`
	Decisions *stats.Snapshot `json:"decisions,omitempty"`
}

// Stats reports the engine's operational counters plus, when live stats are
// wired, the decision tallies since startup.
func (h *Guard) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Engine: h.ctrl.Stats()}
	if h.live != nil {
		snap := h.live.Snapshot()
		resp.Decisions = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// EventsResponse wraps the audit-trail listing.
type EventsResponse struct {
	Count  int                `json:"count"`
	Events []store.AuditEvent `json:"events"`
}

// Events returns recent audit events, optionally filtered to one client.
// Unavailable unless the audit store is enabled.
func (h *Guard) Events(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("audit store is not enabled"))
		return
	}
	limit, err := queryLimit(r, 0)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var events []store.AuditEvent
	var qerr error
	if client := strings.TrimSpace(r.URL.Query().Get("client")); client != "" {
		events, qerr = h.audit.ClientEvents(r.Context(), client, limit)
	} else {
		events, qerr = h.audit.RecentEvents(r.Context(), limit)
	}
	if qerr != nil {
		respondWithError(w, r, apperrors.WrapInternal(qerr, "audit query failed"))
		return
	}
	if events == nil {
		events = []store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Count: len(events), Events: events})
}

// queryLimit parses the optional limit query parameter.
func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewInvalidInputError("limit must be a non-negative integer")
	}
	return n, nil
}
