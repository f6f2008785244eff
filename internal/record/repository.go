package record

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"nutri-practice/internal/storage"
)

const (
	RecordsKey  = "nutri/patients/v1"
	ProgressKey = "nutri/progress/v1"
)

var ErrNotFound = errors.New("record not found")

// Repository owns the stored consultation history and checklist progress.
// Every mutation reads the whole collection, changes it, and writes it back.
type Repository struct {
	store storage.Store
	log   zerolog.Logger
	mu    sync.Mutex
}

func NewRepository(store storage.Store, log zerolog.Logger) *Repository {
	return &Repository{store: store, log: log.With().Str("component", "records").Logger()}
}

// List returns every record, newest first. On a storage failure it returns an
// empty slice together with the error so callers can show an empty history
// and warn.
func (r *Repository) List(ctx context.Context) ([]PatientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *Repository) load(ctx context.Context) ([]PatientRecord, error) {
	var records []PatientRecord
	if _, err := storage.GetJSON(ctx, r.store, RecordsKey, &records); err != nil {
		r.log.Warn().Err(err).Msg("reading history failed, using empty history")
		return []PatientRecord{}, err
	}
	if records == nil {
		records = []PatientRecord{}
	}
	return records, nil
}

// FindByAccessCode returns the newest record whose access code equals code
// exactly.
func (r *Repository) FindByAccessCode(ctx context.Context, code string) (*PatientRecord, error) {
	code = strings.TrimSpace(code)
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].AccessCode == code {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// ListByAccessCode returns every consultation of one patient, newest first.
func (r *Repository) ListByAccessCode(ctx context.Context, code string) ([]PatientRecord, error) {
	records, err := r.List(ctx)
	if err != nil {
		return records, err
	}
	out := make([]PatientRecord, 0)
	for _, rec := range records {
		if rec.AccessCode == code {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*PatientRecord, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// Search matches the patient name case-insensitively or the access code as a
// substring. An empty term matches everything.
func (r *Repository) Search(ctx context.Context, term string) ([]PatientRecord, error) {
	records, err := r.List(ctx)
	if err != nil {
		return records, err
	}
	return FilterRecords(records, term), nil
}

// FilterRecords applies the history search to an in-memory listing.
func FilterRecords(records []PatientRecord, term string) []PatientRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}
	out := make([]PatientRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Profile.Name), term) || strings.Contains(rec.AccessCode, term) {
			out = append(out, rec)
		}
	}
	return out
}

// Append stores rec as the newest record.
func (r *Repository) Append(ctx context.Context, rec PatientRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return err
	}
	updated := make([]PatientRecord, 0, len(records)+1)
	updated = append(updated, rec)
	updated = append(updated, records...)

	if err := storage.SetJSON(ctx, r.store, RecordsKey, updated); err != nil {
		r.log.Error().Err(err).Str("record_id", rec.ID).Msg("saving record failed")
		return err
	}
	return nil
}

// DeleteByID removes the record with id and returns the remaining history.
// A missing id is not an error. When the write fails the stored history is
// unchanged and is returned along with the error.
func (r *Repository) DeleteByID(ctx context.Context, id string) ([]PatientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.load(ctx)
	if err != nil {
		return records, err
	}
	updated := make([]PatientRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != id {
			updated = append(updated, rec)
		}
	}
	if err := storage.SetJSON(ctx, r.store, RecordsKey, updated); err != nil {
		r.log.Error().Err(err).Str("record_id", id).Msg("deleting record failed")
		return records, err
	}
	return updated, nil
}
