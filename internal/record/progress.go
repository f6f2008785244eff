package record

import (
	"context"
	"errors"

	"nutri-practice/internal/storage"
)

// Progress returns the checked item ids for recordID. Unknown records have
// no progress.
func (r *Repository) Progress(ctx context.Context, recordID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.loadProgress(ctx)
	if err != nil {
		return []string{}, err
	}
	ids := all[recordID]
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SetProgress replaces the checked item ids for recordID.
func (r *Repository) SetProgress(ctx context.Context, recordID string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.loadProgress(ctx)
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return err
	}
	if all == nil {
		all = make(map[string][]string)
	}
	if ids == nil {
		ids = []string{}
	}
	all[recordID] = ids
	if err := storage.SetJSON(ctx, r.store, ProgressKey, all); err != nil {
		r.log.Error().Err(err).Str("record_id", recordID).Msg("saving progress failed")
		return err
	}
	return nil
}

// ToggleProgress flips itemID in recordID's checked set and persists the
// result in one locked cycle. Corrupt progress data is replaced rather than
// blocking the patient. On a failed read or write the current set is
// returned with the error.
func (r *Repository) ToggleProgress(ctx context.Context, recordID, itemID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.loadProgress(ctx)
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return []string{}, err
	}
	current := all[recordID]
	if current == nil {
		current = []string{}
	}
	next := ToggleID(current, itemID)
	all[recordID] = next
	if err := storage.SetJSON(ctx, r.store, ProgressKey, all); err != nil {
		r.log.Error().Err(err).Str("record_id", recordID).Msg("saving progress failed")
		return current, err
	}
	return next, nil
}

// ToggleID flips id's membership in ids and returns the new list. Order of
// the remaining ids is kept.
func ToggleID(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	found := false
	for _, c := range ids {
		if c == id {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

func (r *Repository) loadProgress(ctx context.Context) (map[string][]string, error) {
	var all map[string][]string
	if _, err := storage.GetJSON(ctx, r.store, ProgressKey, &all); err != nil {
		r.log.Warn().Err(err).Msg("reading progress failed, using empty progress")
		return map[string][]string{}, err
	}
	if all == nil {
		all = map[string][]string{}
	}
	return all, nil
}
