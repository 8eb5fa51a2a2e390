package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/middleware"
	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/repo/postgres"
	"github.com/Virang41/visiting/internal/service"
)

type AppointmentHandler struct {
	Appointments *service.AppointmentService
	Users        service.UsersStore
}

func NewAppointmentHandler(appts *service.AppointmentService, users service.UsersStore) *AppointmentHandler {
	return &AppointmentHandler{Appointments: appts, Users: users}
}

func (h *AppointmentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	return r
}

func (h *AppointmentHandler) actor(r *http.Request) (*domain.User, error) {
	return h.Users.FindByID(r.Context(), middleware.Claims(r).Sub)
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req domain.AppointmentCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid input")
		return
	}
	host, err := h.actor(r)
	if err != nil {
		response.FromError(w, err)
		return
	}
	appt, err := h.Appointments.Create(r.Context(), req, host)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			response.BadRequest(w, "visitor_id, purpose and scheduled_at are required")
			return
		}
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, appt)
}

func (h *AppointmentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid appointment id")
		return
	}
	appt, err := h.Appointments.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	claims := middleware.Claims(r)
	if claims.Role == domain.RoleEmployee && appt.HostID != claims.Sub {
		response.NotFound(w, "not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, appt)
}

// list scopes employees to their own appointments; admins and security see
// everything, filterable by status and time range.
func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	claims := middleware.Claims(r)
	q := r.URL.Query()

	f := postgres.AppointmentFilter{}
	f.Limit, f.Offset = pagination(r)
	if claims.Role == domain.RoleEmployee {
		f.HostID = claims.Sub
	} else if hostID, err := strconv.ParseInt(q.Get("host_id"), 10, 64); err == nil {
		f.HostID = hostID
	}
	if status, ok := domain.ParseAppointmentStatus(q.Get("status")); ok {
		f.Status = status
	}
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &to
	}

	appts, err := h.Appointments.List(r.Context(), f)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *AppointmentHandler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid appointment id")
		return
	}
	actor, err := h.actor(r)
	if err != nil {
		response.FromError(w, err)
		return
	}
	appt, err := h.Appointments.Approve(r.Context(), id, actor)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid appointment id")
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid input")
		return
	}
	actor, err := h.actor(r)
	if err != nil {
		response.FromError(w, err)
		return
	}
	appt, err := h.Appointments.Reject(r.Context(), id, actor, in.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, appt)
}
