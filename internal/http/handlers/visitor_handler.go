package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Virang41/visiting/internal/domain"
	"github.com/Virang41/visiting/internal/http/response"
	"github.com/Virang41/visiting/internal/service"
)

type VisitorHandler struct {
	Visitors *service.VisitorService
	Passes   *service.PassService
}

func NewVisitorHandler(visitors *service.VisitorService, passes *service.PassService) *VisitorHandler {
	return &VisitorHandler{Visitors: visitors, Passes: passes}
}

func (h *VisitorHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.register)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/passes", h.passes)
	return r
}

func (h *VisitorHandler) register(w http.ResponseWriter, r *http.Request) {
	var v domain.Visitor
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		response.BadRequest(w, "invalid input")
		return
	}
	created, err := h.Visitors.Register(r.Context(), &v)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			response.BadRequest(w, "name and a valid email are required")
			return
		}
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *VisitorHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid visitor id")
		return
	}
	v, err := h.Visitors.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *VisitorHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	visitors, err := h.Visitors.List(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"visitors": visitors})
}

func (h *VisitorHandler) passes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		response.BadRequest(w, "invalid visitor id")
		return
	}
	passes, err := h.Passes.ListByVisitor(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"passes": passes})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
