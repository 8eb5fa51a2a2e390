package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/service"
)

type PassHandler struct {
	Passes *service.PassService
	Scans  *service.ScanService
}

func NewPassHandler(passes *service.PassService, scans *service.ScanService) *PassHandler {
	return &PassHandler{Passes: passes, Scans: scans}
}

// Routes takes the gate role guard so /my stays reachable for any
// authenticated caller while everything else is gate-staff only.
func (h *PassHandler) Routes(gate func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/my", h.listOwn)
	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Post("/issue", h.issue)
		r.Get("/", h.list)
		r.Get("/verify", h.verify)
		r.Get("/{id}", h.get)
		r.Get("/{id}/events", h.events)
		r.Post("/{id}/revoke", h.revoke)
	})
	return r
}

func (h *PassHandler) issue(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AppointmentID int64 `json:"appointment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.AppointmentID == 0 {
		response.BadRequest(w, "appointment_id is required")
		return
	}
	pass, err := h.Passes.Issue(r.Context(), in.AppointmentID, middleware.Claims(r).Sub)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, pass)
}

// verify is the read-only lookup for front-desk screens; ?token=...
func (h *PassHandler) verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.BadRequest(w, "token is required")
		return
	}
	res, err := h.Passes.VerifyByToken(r.Context(), token)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func (h *PassHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid pass id")
		return
	}
	pass, err := h.Passes.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, pass)
}

// listOwn returns the passes issued for the caller's linked visitor record.
func (h *PassHandler) listOwn(w http.ResponseWriter, r *http.Request) {
	passes, err := h.Passes.ListOwn(r.Context(), middleware.Claims(r).Sub)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (h *PassHandler) list(w http.ResponseWriter, r *http.Request) {
	var status domain.PassStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.PassStatus(s)
	}
	limit, offset := pagination(r)
	passes, err := h.Passes.List(r.Context(), status, limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func (h *PassHandler) events(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid pass id")
		return
	}
	events, err := h.Scans.HistoryForPass(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *PassHandler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid pass id")
		return
	}
	pass, err := h.Passes.Revoke(r.Context(), id, middleware.Claims(r).Sub)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, pass)
}
