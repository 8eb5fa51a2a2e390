package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/internal/service"
)

// CheckinHandler is the gate surface: scans resolve to check-in or check-out
// and the event log is queryable for audits.
type CheckinHandler struct {
	Scans *service.ScanService
}

func NewCheckinHandler(scans *service.ScanService) *CheckinHandler {
	return &CheckinHandler{Scans: scans}
}

func (h *CheckinHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/scan", h.scan)
	r.Get("/events", h.events)
	r.Get("/today", h.today)
	return r
}

func (h *CheckinHandler) scan(w http.ResponseWriter, r *http.Request) {
	var req service.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		response.BadRequest(w, "token is required")
		return
	}
	req.ScannedBy = middleware.Claims(r).Sub

	result, err := h.Scans.Resolve(r.Context(), req)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *CheckinHandler) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := postgres.CheckEventFilter{}
	f.Limit, f.Offset = pagination(r)
	switch q.Get("type") {
	case string(domain.CheckIn):
		f.Type = domain.CheckIn
	case string(domain.CheckOut):
		f.Type = domain.CheckOut
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &to
	}

	events, err := h.Scans.Log(r.Context(), f)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// today is the security dashboard view: all movement since local midnight.
func (h *CheckinHandler) today(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	f := postgres.CheckEventFilter{From: &midnight, Limit: 500}
	events, err := h.Scans.Log(r.Context(), f)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
