package consultation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nutri-practice/internal/record"
)

// NewSession returns an empty idle session.
func NewSession(id string) Session {
	return Session{ID: id, State: StateIdle}
}

func errorNotice(msg string) *Notice {
	return &Notice{Level: NoticeError, Message: msg}
}

// BeginAnalysis moves the session to analyzing for profile p. A submission
// while another analysis is running supersedes it; the older response will be
// discarded when it arrives.
func BeginAnalysis(s Session, p record.PatientProfile) (Session, Request, error) {
	if s.State == StatePlanGenerating {
		return s, Request{}, ErrBusy
	}
	prev := s.State
	if prev == StateAnalyzing {
		prev = s.resume
	}
	draft := p
	s.Draft = &draft
	s.Token++
	s.State = StateAnalyzing
	s.resume = prev
	s.Notice = nil
	return s, Request{Token: s.Token, Prev: prev}, nil
}

// CompleteAnalysis applies stats returned for req. A new analysis invalidates
// any held plan. ok is false when req is stale.
func CompleteAnalysis(s Session, req Request, stats record.NutritionalStats) (Session, bool) {
	if req.Token != s.Token || s.State != StateAnalyzing {
		return s, false
	}
	s.Profile = s.Draft
	s.Draft = nil
	s.Stats = &stats
	s.Plan = nil
	s.Viewing = ""
	s.State = StateAnalyzed
	s.Notice = nil
	return s, true
}

// FailAnalysis restores the state held before req. The draft profile is kept.
func FailAnalysis(s Session, req Request, err error) (Session, bool) {
	if req.Token != s.Token || s.State != StateAnalyzing {
		return s, false
	}
	s.State = req.Prev
	s.Notice = errorNotice(fmt.Sprintf("Erro ao analisar os dados do paciente. Tente novamente. (%v)", err))
	return s, true
}

// BeginPlan moves an analysed session to plan_generating. Without a profile
// and stats it is a no-op and ok is false.
func BeginPlan(s Session) (Session, Request, bool, error) {
	switch s.State {
	case StateAnalyzing, StatePlanGenerating:
		return s, Request{}, false, ErrBusy
	}
	if s.Profile == nil || s.Stats == nil {
		return s, Request{}, false, nil
	}
	prev := s.State
	s.Token++
	s.State = StatePlanGenerating
	s.Notice = nil
	return s, Request{Token: s.Token, Prev: prev}, true, nil
}

func CompletePlan(s Session, req Request, plan record.DailyPlan) (Session, bool) {
	if req.Token != s.Token || s.State != StatePlanGenerating {
		return s, false
	}
	p := plan.Clone()
	p.Recompute()
	s.Plan = p
	s.Viewing = ""
	s.State = StatePlanReady
	return s, true
}

func FailPlan(s Session, req Request, err error) (Session, bool) {
	if req.Token != s.Token || s.State != StatePlanGenerating {
		return s, false
	}
	s.State = req.Prev
	s.Notice = errorNotice(fmt.Sprintf("Erro ao gerar o plano alimentar. Tente novamente. (%v)", err))
	return s, true
}

func planItem(s Session, meal, item int) (*record.DailyPlan, error) {
	if s.Plan == nil {
		return nil, ErrNoPlan
	}
	if s.State == StatePlanGenerating {
		return nil, ErrBusy
	}
	if meal < 0 || meal >= len(s.Plan.Meals) {
		return nil, fmt.Errorf("%w: meal %d out of range", ErrInvalidEdit, meal)
	}
	if item < 0 || item >= len(s.Plan.Meals[meal].Items) {
		return nil, fmt.Errorf("%w: item %d out of range", ErrInvalidEdit, item)
	}
	return s.Plan.Clone(), nil
}

// EditPlanItem sets one field of one item and recomputes the plan total.
// Numeric fields accept decimal text with a dot or a comma.
func EditPlanItem(s Session, meal, item int, field EditField, value string) (Session, error) {
	plan, err := planItem(s, meal, item)
	if err != nil {
		return s, err
	}
	it := &plan.Meals[meal].Items[item]
	switch field {
	case FieldName:
		it.Name = value
	case FieldPortion:
		it.Portion = value
	case FieldCalories, FieldProtein, FieldCarbs, FieldFats:
		n, err := parseAmount(value)
		if err != nil {
			return s, fmt.Errorf("%w: %s: %v", ErrInvalidEdit, field, err)
		}
		switch field {
		case FieldCalories:
			it.Calories = n
		case FieldProtein:
			it.Protein = n
		case FieldCarbs:
			it.Carbs = n
		case FieldFats:
			it.Fats = n
		}
	default:
		return s, fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, field)
	}
	plan.Recompute()
	s.Plan = plan
	return s, nil
}

// parseAmount reads a non-negative number. Empty text counts as zero, as a
// cleared input does in the plan table.
func parseAmount(v string) (float64, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative amount %v", n)
	}
	return n, nil
}

func DeletePlanItem(s Session, meal, item int) (Session, error) {
	plan, err := planItem(s, meal, item)
	if err != nil {
		return s, err
	}
	items := plan.Meals[meal].Items
	plan.Meals[meal].Items = append(items[:item:item], items[item+1:]...)
	plan.Recompute()
	s.Plan = plan
	return s, nil
}

// EditMeal updates a meal's title and notes. Nil leaves a field unchanged.
func EditMeal(s Session, meal int, title, notes *string) (Session, error) {
	if s.Plan == nil {
		return s, ErrNoPlan
	}
	if s.State == StatePlanGenerating {
		return s, ErrBusy
	}
	if meal < 0 || meal >= len(s.Plan.Meals) {
		return s, fmt.Errorf("%w: meal %d out of range", ErrInvalidEdit, meal)
	}
	plan := s.Plan.Clone()
	if title != nil {
		plan.Meals[meal].Title = *title
	}
	if notes != nil {
		plan.Meals[meal].Notes = *notes
	}
	s.Plan = plan
	return s, nil
}

// PrepareRecord builds the record a save would store. The access code is the
// follow-up's when one is pending, otherwise newCode.
func PrepareRecord(s Session, id, newCode string, now time.Time) (record.PatientRecord, bool, error) {
	if s.Profile == nil || s.Stats == nil {
		return record.PatientRecord{}, false, ErrIncomplete
	}
	if s.State == StateAnalyzing || s.State == StatePlanGenerating {
		return record.PatientRecord{}, false, ErrBusy
	}
	rec := record.PatientRecord{ID: id, Date: now}
	rec.Profile = *s.Profile
	rec.Stats = *s.Stats
	rec.Stats.Recommendations = append([]string(nil), s.Stats.Recommendations...)
	rec.Plan = s.Plan.Clone()

	returning := s.FollowUp != nil
	if returning {
		rec.AccessCode = s.FollowUp.AccessCode
	} else {
		rec.AccessCode = newCode
	}
	return rec, returning, nil
}

// CompleteSave clears the follow-up after rec was stored.
func CompleteSave(s Session, rec record.PatientRecord, returning bool) (Session, Notice) {
	s.FollowUp = nil
	s.Viewing = rec.ID
	var n Notice
	if returning {
		n = Notice{Level: NoticeInfo, Message: fmt.Sprintf("Retorno salvo no histórico do paciente. Código de acesso mantido: %s", rec.AccessCode)}
	} else {
		n = Notice{Level: NoticeInfo, Message: fmt.Sprintf("Consulta salva! Código de acesso do paciente: %s", rec.AccessCode)}
	}
	s.Notice = &n
	return s, n
}

// StartFollowUp prepares a new consultation for the patient of rec. Whatever
// the session held is dropped so a fresh analysis is required.
func StartFollowUp(s Session, rec record.PatientRecord) Session {
	next := NewSession(s.ID)
	next.Token = s.Token + 1
	next.FollowUp = &FollowUp{AccessCode: rec.AccessCode, Prefill: rec.Profile, FromRecord: rec.ID}
	next.Notice = &Notice{Level: NoticeInfo, Message: fmt.Sprintf("Iniciando retorno de %s. Atualize as medidas.", rec.Profile.Name)}
	return next
}

func CancelFollowUp(s Session) Session {
	s.FollowUp = nil
	s.Notice = nil
	return s
}

// LoadForViewing shows a stored record without starting any AI call.
func LoadForViewing(s Session, rec record.PatientRecord) Session {
	next := NewSession(s.ID)
	next.Token = s.Token + 1
	profile := rec.Profile
	stats := rec.Stats
	next.Profile = &profile
	next.Stats = &stats
	next.Plan = rec.Plan.Clone()
	next.Viewing = rec.ID
	next.State = StateAnalyzed
	if next.Plan != nil {
		next.State = StatePlanReady
	}
	return next
}

// Reset drops everything held. Responses still in flight become stale.
func Reset(s Session) Session {
	next := NewSession(s.ID)
	next.Token = s.Token + 1
	return next
}
