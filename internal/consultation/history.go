package consultation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

// HistoryView is the professional's in-memory listing of stored records.
// Deletes update the listing first and roll it back if the write fails.
type HistoryView struct {
	records RecordStore
	log     zerolog.Logger

	mu     sync.Mutex
	items  []record.PatientRecord
	loaded bool
}

func NewHistoryView(records RecordStore, log zerolog.Logger) *HistoryView {
	return &HistoryView{records: records, log: log}
}

// Refresh reloads the listing from storage. On a storage error the last
// good listing is kept and the error is returned as a warning; the next
// Items call retries when nothing has loaded yet.
func (h *HistoryView) Refresh(ctx context.Context) error {
	items, err := h.records.List(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.log.Warn().Err(err).Bool("loaded", h.loaded).Msg("history unavailable, keeping last listing")
		return err
	}
	h.items = items
	h.loaded = true
	return nil
}

// Items returns the records matching term, newest first, loading the listing
// on first use.
func (h *HistoryView) Items(ctx context.Context, term string) ([]record.PatientRecord, error) {
	h.mu.Lock()
	loaded := h.loaded
	h.mu.Unlock()

	var err error
	if !loaded {
		err = h.Refresh(ctx)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := record.FilterRecords(h.items, term)
	return append([]record.PatientRecord{}, out...), err
}

// Add shows a newly saved record at the top of the listing.
func (h *HistoryView) Add(rec record.PatientRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.loaded {
		return
	}
	h.items = append([]record.PatientRecord{rec}, h.items...)
}

// Delete removes id from the listing, then from storage. When the write
// fails the listing is restored and the error returned.
func (h *HistoryView) Delete(ctx context.Context, id string) ([]record.PatientRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	before := h.items
	optimistic := make([]record.PatientRecord, 0, len(before))
	for _, rec := range before {
		if rec.ID != id {
			optimistic = append(optimistic, rec)
		}
	}
	h.items = optimistic

	updated, err := h.records.DeleteByID(ctx, id)
	if err != nil {
		h.items = before
		h.log.Warn().Err(err).Str("record_id", id).Msg("delete failed, listing restored")
		return append([]record.PatientRecord{}, before...), err
	}
	h.items = updated
	h.loaded = true
	return append([]record.PatientRecord{}, updated...), nil
}
