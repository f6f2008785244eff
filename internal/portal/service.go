package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

var (
	ErrUnknownItem = errors.New("item is not part of the plan")
	ErrNoPlan      = errors.New("record has no meal plan")
)

type RecordSource interface {
	FindByID(ctx context.Context, id string) (*record.PatientRecord, error)
	ListByAccessCode(ctx context.Context, code string) ([]record.PatientRecord, error)
	Progress(ctx context.Context, recordID string) ([]string, error)
	ToggleProgress(ctx context.Context, recordID, itemID string) ([]string, error)
}

type ListWriter interface {
	ShoppingList(ctx context.Context, plan record.DailyPlan) (string, error)
}

// Dashboard is everything the patient sees after logging in.
type Dashboard struct {
	Record    record.PatientRecord `json:"record"`
	Hydration Hydration            `json:"hydration"`
	Checked   []string             `json:"checked"`
	Adherence int                  `json:"adherence"`
	Trend     []TrendPoint         `json:"trend"`
	Warnings  []string             `json:"warnings,omitempty"`
}

type ToggleResult struct {
	Checked   []string `json:"checked"`
	Adherence int      `json:"adherence"`
}

type Service struct {
	records RecordSource
	lists   ListWriter
	log     zerolog.Logger

	mu       sync.Mutex
	shopping map[string]string
}

func NewService(records RecordSource, lists ListWriter, log zerolog.Logger) *Service {
	return &Service{
		records:  records,
		lists:    lists,
		log:      log.With().Str("component", "portal").Logger(),
		shopping: make(map[string]string),
	}
}

// Dashboard builds the view for recordID. Storage trouble reading progress
// or history degrades to empty sections with a warning.
func (s *Service) Dashboard(ctx context.Context, recordID string) (Dashboard, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		Record:    *rec,
		Hydration: HydrationTarget(rec.Profile.Weight),
		Checked:   []string{},
		Trend:     []TrendPoint{},
	}

	checked, err := s.records.Progress(ctx, recordID)
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("progress unavailable")
		d.Warnings = append(d.Warnings, "Não foi possível carregar seu progresso.")
	} else {
		d.Checked = checked
	}
	d.Adherence = Adherence(rec.Plan, d.Checked)

	history, err := s.records.ListByAccessCode(ctx, rec.AccessCode)
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("history unavailable")
		d.Warnings = append(d.Warnings, "Não foi possível carregar seu histórico.")
	} else {
		d.Trend = Trend(history, rec.AccessCode)
	}
	return d, nil
}

// ToggleItem flips one checklist item and persists the result at once.
func (s *Service) ToggleItem(ctx context.Context, recordID, itemID string) (ToggleResult, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return ToggleResult{}, err
	}
	valid := false
	for _, id := range rec.Plan.ItemIDs() {
		if id == itemID {
			valid = true
			break
		}
	}
	if !valid {
		return ToggleResult{}, fmt.Errorf("%w: %q", ErrUnknownItem, itemID)
	}

	checked, err := s.records.ToggleProgress(ctx, recordID, itemID)
	res := ToggleResult{Checked: checked, Adherence: Adherence(rec.Plan, checked)}
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("toggle not saved")
	}
	return res, err
}

// ShoppingList returns the plan's shopping list, generating it on first
// request. Failures are not cached.
func (s *Service) ShoppingList(ctx context.Context, recordID string) (string, error) {
	s.mu.Lock()
	cached, ok := s.shopping[recordID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return "", err
	}
	if rec.Plan == nil || rec.Plan.ItemCount() == 0 {
		return "", ErrNoPlan
	}
	text, err := s.lists.ShoppingList(ctx, *rec.Plan)
	if err != nil {
		s.log.Error().Err(err).Str("record_id", recordID).Msg("shopping list failed")
		return "", err
	}

	s.mu.Lock()
	s.shopping[recordID] = text
	s.mu.Unlock()
	return text, nil
}
