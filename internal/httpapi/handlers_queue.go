package httpapi

import (
	"net/http"

	"smartq/internal/models"
	"smartq/internal/queue"

	"github.com/go-chi/chi/v5"
)

type joinRequest struct {
	FullName     string `json:"fullName" validate:"max=120"`
	Phone        string `json:"phone" validate:"max=32"`
	DeviceToken  string `json:"deviceToken" validate:"max=512"`
	ServiceKey   string `json:"serviceKey" validate:"max=64"`
	ServiceLabel string `json:"serviceLabel" validate:"max=120"`
	ServiceNote  string `json:"serviceNote" validate:"max=500"`
}

type joinResponse struct {
	Ticket      models.Ticket `json:"ticket"`
	Position    int           `json:"position"`
	TicketID    string        `json:"ticketId"`
	TokenNumber int           `json:"tokenNumber"`
}

type statusResponse struct {
	Ticket   models.Ticket `json:"ticket"`
	Position int           `json:"position"`
}

type leaveResponse struct {
	Message     string `json:"message"`
	TokenNumber int    `json:"tokenNumber"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	res, err := h.queue.Join(r.Context(), queue.JoinInput{
		FullName:     req.FullName,
		Phone:        req.Phone,
		DeviceToken:  req.DeviceToken,
		ServiceKey:   req.ServiceKey,
		ServiceLabel: req.ServiceLabel,
		ServiceNote:  req.ServiceNote,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{
		Ticket:      res.Ticket,
		Position:    res.Position,
		TicketID:    res.Ticket.ID,
		TokenNumber: res.Ticket.TokenNumber,
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	res, err := h.queue.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Ticket: res.Ticket, Position: res.Position})
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	res, err := h.queue.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaveResponse{Message: "Ticket removed from the queue.", TokenNumber: res.Ticket.TokenNumber})
}

func (h *Handler) displayFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.queue.DisplayFeed(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *Handler) services(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]models.Service{"services": h.queue.Services()})
}
