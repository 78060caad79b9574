package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/celllog/internal/journal"
	"github.com/JonMunkholm/celllog/internal/store"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "unconfigured"})
		return
	}
	if err := s.deps.Store.Ping(ctx); err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable, CodeUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Dispatcher.Status())
}

type journalResponse struct {
	Entries []journal.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// handleJournal lists recent outcomes. Query: limit (1-1000), alerts=true.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxJournalLimit {
			respondError(w, r, errors.New("invalid limit "+strconv.Quote(v)),
				http.StatusBadRequest, CodeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	alertsOnly, _ := strconv.ParseBool(r.URL.Query().Get("alerts"))

	entries, err := s.deps.Journal.Recent(r.Context(), limit, alertsOnly)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError, CodeInternal, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, journalResponse{Entries: entries, Count: len(entries)})
}

type warehouseResponse struct {
	Rows  []store.WarehouseRow `json:"rows"`
	Count int                  `json:"count"`
}

func (s *Server) handleWarehouse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Warehouse == nil {
		respondError(w, r, errors.New("no read profile"), http.StatusServiceUnavailable,
			CodeUnavailable, "warehouse reader not configured")
		return
	}
	rows, err := s.deps.Warehouse.Warehouse(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError, CodeInternal, "warehouse query failed")
		return
	}
	writeJSON(w, http.StatusOK, warehouseResponse{Rows: rows, Count: len(rows)})
}
