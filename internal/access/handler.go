package access

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nutri-practice/internal/record"
)

type Handler struct {
	gate *Gate
}

func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

type professionalRequest struct {
	Secret string `json:"secret"`
}

type patientRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	Token  string                `json:"token"`
	Record *record.PatientRecord `json:"record,omitempty"`
}

// clientKey identifies the caller for throttling. chi's RealIP middleware
// has already rewritten RemoteAddr when a proxy header is present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrNotConfigured):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "login failed", http.StatusInternalServerError)
	}
}

func (h *Handler) Professional(w http.ResponseWriter, r *http.Request) {
	var req professionalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	token, err := h.gate.ProfessionalLogin(r.Context(), clientKey(r), req.Secret)
	if err != nil {
		writeLoginError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token})
}

func (h *Handler) Patient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	token, rec, err := h.gate.PatientLogin(r.Context(), clientKey(r), req.Code)
	if err != nil {
		writeLoginError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token, Record: rec})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/auth/professional", h.Professional)
	r.Post("/auth/patient", h.Patient)
}
