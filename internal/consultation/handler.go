package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nutri-practice/internal/access"
	"nutri-practice/internal/agent"
	"nutri-practice/internal/record"
	"nutri-practice/internal/storage"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type sessionResponse struct {
	Session Session `json:"session"`
	Error   string  `json:"error,omitempty"`
}

type recordsResponse struct {
	Records []record.PatientRecord `json:"records"`
	Warning string                 `json:"warning,omitempty"`
}

type editItemRequest struct {
	Field EditField `json:"field"`
	Value string    `json:"value"`
}

type editMealRequest struct {
	Title *string `json:"title"`
	Notes *string `json:"notes"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, record.ErrInvalidProfile), errors.Is(err, ErrInvalidEdit):
		return http.StatusBadRequest
	case errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBusy), errors.Is(err, ErrSuperseded), errors.Is(err, ErrNoPlan), errors.Is(err, ErrIncomplete):
		return http.StatusConflict
	case errors.Is(err, agent.ErrUpstream), errors.Is(err, agent.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, storage.ErrRead), errors.Is(err, storage.ErrWrite), errors.Is(err, storage.ErrCorrupt):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respond writes the session along with err, if any.
func respond(w http.ResponseWriter, s Session, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), sessionResponse{Session: s, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: s})
}

func sessionID(r *http.Request) string {
	if c, ok := access.ClaimsFrom(r.Context()); ok {
		return c.SessionID
	}
	return ""
}

func indexParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	return n, err == nil
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	respond(w, h.svc.Session(sessionID(r)), nil)
}

func (h *Handler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	var p record.PatientProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := record.ValidateProfile(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := h.svc.SubmitProfile(r.Context(), sessionID(r), p)
	respond(w, s, err)
}

func (h *Handler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GeneratePlan(r.Context(), sessionID(r))
	respond(w, s, err)
}

func (h *Handler) EditPlanItem(w http.ResponseWriter, r *http.Request) {
	meal, ok1 := indexParam(r, "meal")
	item, ok2 := indexParam(r, "item")
	if !ok1 || !ok2 {
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}
	var req editItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	s, err := h.svc.EditPlanItem(sessionID(r), meal, item, req.Field, req.Value)
	respond(w, s, err)
}

func (h *Handler) DeletePlanItem(w http.ResponseWriter, r *http.Request) {
	meal, ok1 := indexParam(r, "meal")
	item, ok2 := indexParam(r, "item")
	if !ok1 || !ok2 {
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}
	s, err := h.svc.DeletePlanItem(sessionID(r), meal, item)
	respond(w, s, err)
}

func (h *Handler) EditMeal(w http.ResponseWriter, r *http.Request) {
	meal, ok := indexParam(r, "meal")
	if !ok {
		http.Error(w, "Invalid index", http.StatusBadRequest)
		return
	}
	var req editMealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	s, err := h.svc.EditMeal(sessionID(r), meal, req.Title, req.Notes)
	respond(w, s, err)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SaveConsultation(r.Context(), sessionID(r))
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error(), "notice": res.Notice})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) StartFollowUp(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.StartFollowUp(r.Context(), sessionID(r), chi.URLParam(r, "recordID"))
	respond(w, s, err)
}

func (h *Handler) CancelFollowUp(w http.ResponseWriter, r *http.Request) {
	respond(w, h.svc.CancelFollowUp(sessionID(r)), nil)
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.LoadForViewing(r.Context(), sessionID(r), chi.URLParam(r, "recordID"))
	respond(w, s, err)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	respond(w, h.svc.Reset(sessionID(r)), nil)
}

func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.History().Items(r.Context(), r.URL.Query().Get("q"))
	resp := recordsResponse{Records: items}
	if err != nil {
		resp.Warning = "Não foi possível ler o histórico salvo."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.History().Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, statusFor(err), recordsResponse{Records: items, Warning: "Não foi possível excluir o registro."})
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: items})
}

// RegisterRoutes mounts the professional routes. Callers wrap r with the
// professional role check.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/session", h.GetSession)
	r.Post("/session/profile", h.SubmitProfile)
	r.Post("/session/plan", h.GeneratePlan)
	r.Patch("/session/plan/meals/{meal}/items/{item}", h.EditPlanItem)
	r.Delete("/session/plan/meals/{meal}/items/{item}", h.DeletePlanItem)
	r.Patch("/session/plan/meals/{meal}", h.EditMeal)
	r.Post("/session/save", h.Save)
	r.Post("/session/followup/{recordID}", h.StartFollowUp)
	r.Delete("/session/followup", h.CancelFollowUp)
	r.Post("/session/view/{recordID}", h.View)
	r.Post("/session/reset", h.Reset)
	r.Get("/records", h.ListRecords)
	r.Delete("/records/{id}", h.DeleteRecord)
}
