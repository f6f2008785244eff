package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

type sent struct {
	chatID int64
	text   string
	file   string
	data   []byte
}

type fakeTelegram struct {
	calls []sent
	err   error
}

func (f *fakeTelegram) SendMessage(_ context.Context, chatID int64, text string) error {
	f.calls = append(f.calls, sent{chatID: chatID, text: text})
	return f.err
}

func (f *fakeTelegram) SendDocument(_ context.Context, chatID int64, data []byte, name string) error {
	f.calls = append(f.calls, sent{chatID: chatID, file: name, data: data})
	return f.err
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) Render(record.PatientRecord) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func sampleRecord() record.PatientRecord {
	waist := 82.0
	plan := &record.DailyPlan{Day: "Dia 1", Meals: []record.Meal{
		{Type: record.MealBreakfast, Title: "Café da manhã", Notes: "Sem açúcar", Items: []record.MealItem{
			{Name: "Ovos mexidos", Portion: "2 unidades", Calories: 140, Protein: 12, Carbs: 1, Fats: 10},
		}},
	}}
	plan.Recompute()
	return record.PatientRecord{
		ID:         "r1",
		AccessCode: "482913",
		Date:       time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		Profile: record.PatientProfile{
			Name: "Ana Souza", Age: 35, Sex: record.SexFemale, Weight: 70, Height: 165, Waist: &waist,
			ActivityLevel: record.ActivityModerate, Goal: record.GoalLoss,
		},
		Stats: record.NutritionalStats{
			BMR: 1450, TDEE: 2000, CaloriesTarget: 1700,
			Macros:          record.Macros{Protein: 120, Carbs: 180, Fats: 55},
			Analysis:        "Risco metabólico baixo.",
			Recommendations: []string{"Beber 2,5 L de água por dia"},
		},
		Plan: plan,
	}
}

func TestDeliver_SendsDocument(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(fakeRenderer{}, tg, 42, zerolog.Nop())

	if err := svc.Deliver(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(tg.calls) != 1 || tg.calls[0].file != "plano_482913_20260310.pdf" || tg.calls[0].chatID != 42 {
		t.Errorf("unexpected calls %+v", tg.calls)
	}
}

func TestDeliver_FallsBackToSummary(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(fakeRenderer{err: ErrNoFont}, tg, 42, zerolog.Nop())

	if err := svc.Deliver(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(tg.calls) != 1 || tg.calls[0].text == "" || tg.calls[0].file != "" {
		t.Errorf("expected a text summary, got %+v", tg.calls)
	}
}

func TestDeliver_TelegramError(t *testing.T) {
	tg := &fakeTelegram{err: errors.New("403 Forbidden")}
	svc := NewService(fakeRenderer{}, tg, 42, zerolog.Nop())
	if err := svc.Deliver(context.Background(), sampleRecord()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer("")
	if _, err := r.FontPath(); err != nil {
		t.Skip("no system font available: ", err)
	}
	data, err := r.Render(sampleRecord())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output is not a PDF: %q", data[:min(len(data), 8)])
	}
}

func TestRenderer_NoFont(t *testing.T) {
	r := &Renderer{fontPaths: []string{t.TempDir() + "/missing.ttf"}}
	if _, err := r.Render(sampleRecord()); !errors.Is(err, ErrNoFont) {
		t.Fatalf("expected ErrNoFont, got %v", err)
	}
}

type fakeFinder map[string]record.PatientRecord

func (f fakeFinder) FindByID(_ context.Context, id string) (*record.PatientRecord, error) {
	rec, ok := f[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	return &rec, nil
}

func TestHandler_Download(t *testing.T) {
	h := NewHandler(fakeRenderer{}, fakeFinder{"r1": sampleRecord()})
	r := chi.NewRouter()
	RegisterRoutes(r, h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/r1/report.pdf", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/zz/report.pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
