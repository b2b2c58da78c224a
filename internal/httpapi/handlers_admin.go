package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"smartq/internal/auth"
	"smartq/internal/models"
	"smartq/internal/queue"

	"github.com/go-chi/chi/v5"
)

type credentialsRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=128"`
}

type counterRequest struct {
	CounterID string `json:"counterId" validate:"omitempty,max=64"`
}

type counterPatchRequest struct {
	Online *bool `json:"online" validate:"required"`
}

type callResponse struct {
	Ticket  models.Ticket  `json:"ticket"`
	Counter models.Counter `json:"counter"`
}

type transitionResponse struct {
	Success bool          `json:"success"`
	Ticket  models.Ticket `json:"ticket"`
}

// auth.Service checks credential presence and length.
func (h *Handler) setup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.auth.Setup(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tickets, err := h.queue.ListTickets(r.Context(), queue.TicketQuery{
		Status: query.Get("status"),
		Search: query.Get("q"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Ticket{"tickets": tickets})
}

func (h *Handler) callNext(w http.ResponseWriter, r *http.Request) {
	var req counterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	res, err := h.queue.CallNext(r.Context(), req.CounterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.logAdminAction(r, "call-next", res.Ticket.ID)
	writeJSON(w, http.StatusOK, callResponse{Ticket: res.Ticket, Counter: res.Counter})
}

func (h *Handler) callTicket(w http.ResponseWriter, r *http.Request) {
	var req counterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	res, err := h.queue.CallTicket(r.Context(), chi.URLParam(r, "id"), req.CounterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.logAdminAction(r, "call", res.Ticket.ID)
	writeJSON(w, http.StatusOK, callResponse{Ticket: res.Ticket, Counter: res.Counter})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start", h.queue.Start)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "serve", h.queue.Serve)
}

func (h *Handler) skip(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "skip", h.queue.Skip)
}

func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	var req counterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.queue.Recall(r.Context(), id, req.CounterID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.logAdminAction(r, "recall", id)
	writeJSON(w, http.StatusOK, transitionResponse{Success: true, Ticket: res.Ticket})
}

type transitionFunc func(ctx context.Context, ticketID string) (queue.TransitionResult, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, action string, fn transitionFunc) {
	id := chi.URLParam(r, "id")
	res, err := fn(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.logAdminAction(r, action, id)
	writeJSON(w, http.StatusOK, transitionResponse{Success: true, Ticket: res.Ticket})
}

func (h *Handler) counters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.queue.Counters(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Counter{"counters": counters})
}

func (h *Handler) updateCounter(w http.ResponseWriter, r *http.Request) {
	var req counterPatchRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	counter, err := h.queue.SetCounterOnline(r.Context(), chi.URLParam(r, "id"), *req.Online)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Counter{"counter": counter})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = parsed
	}
	items, err := h.queue.Activity(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string][]models.Activity{"items": items})
}

func (h *Handler) logAdminAction(r *http.Request, action, ticketID string) {
	admin, _ := auth.AdminFrom(r.Context())
	h.opts.Logger.Info().
		Str("admin", admin.Username).
		Str("action", action).
		Str("ticket_id", ticketID).
		Msg("admin action")
}
