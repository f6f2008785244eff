package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nutri-practice/internal/record"
)

type RecordFinder interface {
	FindByID(ctx context.Context, id string) (*record.PatientRecord, error)
}

type Handler struct {
	renderer PDFRenderer
	records  RecordFinder
}

func NewHandler(renderer PDFRenderer, records RecordFinder) *Handler {
	return &Handler{renderer: renderer, records: records}
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, "could not read record", http.StatusServiceUnavailable)
		return
	}
	data, err := h.renderer.Render(*rec)
	if err != nil {
		http.Error(w, "report failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(*rec)))
	w.Write(data)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/records/{id}/report.pdf", h.Download)
}
