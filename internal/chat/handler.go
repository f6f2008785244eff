package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type StreamEvent struct {
	Type string `json:"type"` // "message", "done" or "error"
	Data any    `json:"data"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type sendRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history"`
}

func (h *Handler) Opening(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.svc.Opening())
}

// Send streams the reply as server-sent events. Each "message" event carries
// the whole reply so far; the final "done" event carries the stored message.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Empty message", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(ev StreamEvent) {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	reply, err := h.svc.Reply(r.Context(), req.History, req.Message, func(text string) {
		emit(StreamEvent{Type: "message", Data: text})
	})
	if err != nil && r.Context().Err() != nil {
		return
	}
	if err != nil {
		emit(StreamEvent{Type: "error", Data: reply})
		return
	}
	emit(StreamEvent{Type: "done", Data: reply})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/chat", h.Opening)
	r.Post("/chat", h.Send)
}
