package portal

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nutri-practice/internal/access"
	"nutri-practice/internal/record"
	"nutri-practice/internal/storage"
)

func ptr(v float64) *float64 { return &v }

func tenItemPlan() *record.DailyPlan {
	p := &record.DailyPlan{Day: "Dia 1"}
	for m := 0; m < 2; m++ {
		meal := record.Meal{Type: record.MealTypes[m], Title: "Refeição"}
		for i := 0; i < 5; i++ {
			meal.Items = append(meal.Items, record.MealItem{Name: "Item " + string(rune('A'+i)), Calories: 100})
		}
		p.Meals = append(p.Meals, meal)
	}
	p.Recompute()
	return p
}

func TestHydrationTarget(t *testing.T) {
	h := HydrationTarget(70)
	if h.ML != 2450 || h.Liters != 2.45 {
		t.Errorf("70 kg: got %+v", h)
	}
	if h := HydrationTarget(0); h.ML != 0 {
		t.Errorf("no weight: got %+v", h)
	}
	if h := HydrationTarget(81.5); h.ML != 2853 {
		t.Errorf("81.5 kg: got %+v", h)
	}
}

func TestAdherence(t *testing.T) {
	plan := tenItemPlan()
	ids := plan.ItemIDs()

	if got := Adherence(plan, ids[:3]); got != 30 {
		t.Errorf("3 of 10: got %d", got)
	}
	if got := Adherence(&record.DailyPlan{}, []string{"x"}); got != 0 {
		t.Errorf("empty plan: got %d", got)
	}
	if got := Adherence(nil, nil); got != 0 {
		t.Errorf("no plan: got %d", got)
	}
	if got := Adherence(plan, append(ids[:1:1], "9-9-Fantasma", ids[0])); got != 10 {
		t.Errorf("stale and duplicate ids must not count: got %d", got)
	}
}

func TestTrend(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 10, 0, 0, 0, time.UTC) }
	records := []record.PatientRecord{
		{ID: "c", AccessCode: "111111", Date: day(20), Profile: record.PatientProfile{Weight: 68, BodyFat: ptr(24)}},
		{ID: "x", AccessCode: "222222", Date: day(15), Profile: record.PatientProfile{Weight: 90}},
		{ID: "b", AccessCode: "111111", Date: day(10), Profile: record.PatientProfile{Weight: 69, Waist: ptr(80)}},
		{ID: "a", AccessCode: "111111", Date: day(1), Profile: record.PatientProfile{Weight: 70, BodyFat: ptr(26), Waist: ptr(82)}},
	}

	points := Trend(records, "111111")
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	if points[0].RecordID != "a" || points[2].RecordID != "c" {
		t.Errorf("expected ascending order, got %s..%s", points[0].RecordID, points[2].RecordID)
	}
	if points[1].BodyFat != nil {
		t.Error("missing body fat must stay nil")
	}
	if points[2].Waist != nil || *points[2].BodyFat != 24 {
		t.Errorf("unexpected projection %+v", points[2])
	}
}

func TestTrend_WeightCopiedAsIs(t *testing.T) {
	points := Trend([]record.PatientRecord{{ID: "a", AccessCode: "1", Profile: record.PatientProfile{Weight: 0}}}, "1")
	if len(points) != 1 || points[0].Weight == nil || *points[0].Weight != 0 {
		t.Errorf("weight should be copied without the gap rule, got %+v", points)
	}
}

type fakeLists struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeLists) ShoppingList(context.Context, record.DailyPlan) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "## Hortifruti\n- Bananas", nil
}

func newTestService(t *testing.T) (*Service, *record.Repository, *fakeLists) {
	t.Helper()
	repo := record.NewRepository(storage.NewMemoryStore(), zerolog.Nop())
	ctx := context.Background()
	for _, rec := range []record.PatientRecord{
		{ID: "r1", AccessCode: "482913", Date: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), Profile: record.PatientProfile{Name: "Ana", Weight: 72}},
		{ID: "r2", AccessCode: "482913", Date: time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC), Profile: record.PatientProfile{Name: "Ana", Weight: 70}, Plan: tenItemPlan()},
	} {
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	lists := &fakeLists{}
	return NewService(repo, lists, zerolog.Nop()), repo, lists
}

func TestService_Dashboard(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	plan := tenItemPlan()
	repo.SetProgress(ctx, "r2", plan.ItemIDs()[:3])

	d, err := svc.Dashboard(ctx, "r2")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.Hydration.Liters != 2.45 || d.Adherence != 30 {
		t.Errorf("unexpected metrics %+v %d", d.Hydration, d.Adherence)
	}
	if len(d.Trend) != 2 || d.Trend[0].RecordID != "r1" {
		t.Errorf("unexpected trend %+v", d.Trend)
	}

	if _, err := svc.Dashboard(ctx, "gone"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ToggleItemPersists(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	id := tenItemPlan().ItemIDs()[4]

	res, err := svc.ToggleItem(ctx, "r2", id)
	if err != nil {
		t.Fatalf("ToggleItem: %v", err)
	}
	if res.Adherence != 10 {
		t.Errorf("expected 10%%, got %d", res.Adherence)
	}
	stored, _ := repo.Progress(ctx, "r2")
	if len(stored) != 1 || stored[0] != id {
		t.Errorf("toggle not persisted: %v", stored)
	}

	if _, err := svc.ToggleItem(ctx, "r2", id); err != nil {
		t.Fatal(err)
	}
	stored, _ = repo.Progress(ctx, "r2")
	if len(stored) != 0 {
		t.Errorf("second toggle should restore the empty set, got %v", stored)
	}

	if _, err := svc.ToggleItem(ctx, "r2", "0-0-Nada"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestService_ShoppingListCached(t *testing.T) {
	svc, _, lists := newTestService(t)
	ctx := context.Background()

	lists.err = errors.New("quota")
	if _, err := svc.ShoppingList(ctx, "r2"); err == nil {
		t.Fatal("expected error")
	}
	lists.err = nil
	for i := 0; i < 3; i++ {
		text, err := svc.ShoppingList(ctx, "r2")
		if err != nil || !strings.Contains(text, "Bananas") {
			t.Fatalf("ShoppingList: %q %v", text, err)
		}
	}
	if lists.calls != 2 {
		t.Errorf("expected one failed and one cached call, got %d", lists.calls)
	}

	if _, err := svc.ShoppingList(ctx, "r1"); !errors.Is(err, ErrNoPlan) {
		t.Errorf("expected ErrNoPlan, got %v", err)
	}
}

func TestRenderTrendChart(t *testing.T) {
	points := []TrendPoint{
		{Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Weight: ptr(70), Waist: ptr(82)},
		{Date: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Weight: ptr(69)},
	}
	var buf bytes.Buffer
	if err := RenderTrendChart(&buf, points, MetricMeasurements); err != nil {
		t.Fatalf("RenderTrendChart: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Cintura") || !strings.Contains(out, "01/02/2026") {
		t.Error("chart is missing its series or axis labels")
	}
	if err := RenderTrendChart(&buf, points, "bmi"); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	svc, _, _ := newTestService(t)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/portal", nil)
	req = req.WithContext(access.WithClaims(req.Context(), &access.Claims{Role: access.RolePatient, RecordID: "r2", AccessCode: "482913"}))
	rec := httptest.NewRecorder()
	h.Dashboard(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"liters":2.45`) {
		t.Errorf("hydration missing from %s", rec.Body.String())
	}
}

func TestService_ToggleItemRecoversCorruptProgress(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.Set(ctx, record.ProgressKey, "{not json")
	repo := record.NewRepository(store, zerolog.Nop())
	_ = repo.Append(ctx, record.PatientRecord{ID: "r2", AccessCode: "482913", Profile: record.PatientProfile{Name: "Ana", Weight: 70}, Plan: tenItemPlan()})
	svc := NewService(repo, &fakeLists{}, zerolog.Nop())
	id := tenItemPlan().ItemIDs()[0]

	res, err := svc.ToggleItem(ctx, "r2", id)
	if err != nil {
		t.Fatalf("ToggleItem: %v", err)
	}
	if len(res.Checked) != 1 || res.Adherence != 10 {
		t.Errorf("unexpected result %+v", res)
	}
	d, err := svc.Dashboard(ctx, "r2")
	if err != nil || len(d.Warnings) != 0 || d.Adherence != 10 {
		t.Errorf("progress should be readable again: %+v (%v)", d, err)
	}
}

type readOnlyStore struct {
	*storage.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (s *readOnlyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return storage.ErrWrite
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestHandler_ToggleWriteFailureWarns(t *testing.T) {
	ctx := context.Background()
	store := &readOnlyStore{MemoryStore: storage.NewMemoryStore()}
	repo := record.NewRepository(store, zerolog.Nop())
	_ = repo.Append(ctx, record.PatientRecord{ID: "r2", AccessCode: "482913", Profile: record.PatientProfile{Name: "Ana", Weight: 70}, Plan: tenItemPlan()})
	store.mu.Lock()
	store.fail = true
	store.mu.Unlock()

	h := NewHandler(NewService(repo, &fakeLists{}, zerolog.Nop()))
	body := strings.NewReader(`{"itemId":"` + tenItemPlan().ItemIDs()[0] + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/portal/progress", body)
	req = req.WithContext(access.WithClaims(req.Context(), &access.Claims{Role: access.RolePatient, RecordID: "r2"}))
	rec := httptest.NewRecorder()
	h.Toggle(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Não foi possível salvar seu progresso.") || !strings.Contains(rec.Body.String(), `"checked":[]`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
