package portal

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nutri-practice/internal/access"
	"nutri-practice/internal/record"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type toggleRequest struct {
	ItemID string `json:"itemId"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, record.ErrNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownItem), errors.Is(err, ErrUnknownMetric):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoPlan):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "request failed", http.StatusBadGateway)
	}
}

func recordID(r *http.Request) string {
	if c, ok := access.ClaimsFrom(r.Context()); ok {
		return c.RecordID
	}
	return ""
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context(), recordID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	res, err := h.svc.ToggleItem(r.Context(), recordID(r), req.ItemID)
	if err != nil {
		if res.Checked != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"checked": res.Checked, "adherence": res.Adherence,
				"warning": "Não foi possível salvar seu progresso.",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ShoppingList(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.ShoppingList(r.Context(), recordID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"list": text})
}

func (h *Handler) TrendChart(w http.ResponseWriter, r *http.Request) {
	metric := Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = MetricWeight
	}
	var buf bytes.Buffer
	if err := h.svc.TrendChart(r.Context(), &buf, recordID(r), metric); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// RegisterRoutes mounts the patient routes. Callers wrap r with the patient
// role check.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/portal", h.Dashboard)
	r.Post("/portal/progress", h.Toggle)
	r.Get("/portal/shopping-list", h.ShoppingList)
	r.Get("/portal/trend/chart", h.TrendChart)
}
