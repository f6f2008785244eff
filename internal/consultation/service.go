package consultation

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"nutri-practice/internal/record"
)

// Analyst is the part of the AI contract the consultation flow needs.
type Analyst interface {
	Analyze(ctx context.Context, profile record.PatientProfile) (record.NutritionalStats, error)
	GeneratePlan(ctx context.Context, profile record.PatientProfile, stats record.NutritionalStats) (record.DailyPlan, error)
}

// RecordStore is the patient record repository.
type RecordStore interface {
	List(ctx context.Context) ([]record.PatientRecord, error)
	FindByID(ctx context.Context, id string) (*record.PatientRecord, error)
	Append(ctx context.Context, rec record.PatientRecord) error
	DeleteByID(ctx context.Context, id string) ([]record.PatientRecord, error)
}

// ReportService delivers a saved consultation to the nutritionist.
type ReportService interface {
	Deliver(ctx context.Context, rec record.PatientRecord) error
}

type entry struct {
	mu      sync.Mutex
	session Session
}

type Service struct {
	records RecordStore
	ai      Analyst
	reports ReportService
	history *HistoryView
	log     zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry

	now     func() time.Time
	newID   func() string
	newCode func() string
}

// NewService wires the consultation flow. reports may be nil.
func NewService(records RecordStore, ai Analyst, reports ReportService, log zerolog.Logger) *Service {
	log = log.With().Str("component", "consultation").Logger()
	return &Service{
		records:  records,
		ai:       ai,
		reports:  reports,
		history:  NewHistoryView(records, log),
		log:      log,
		sessions: make(map[string]*entry),
		now:      time.Now,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		newCode:  GenerateAccessCode,
	}
}

// GenerateAccessCode returns a random 6-digit code in 100000-999999. Codes are
// not checked against existing ones.
func GenerateAccessCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

// NewSessionID starts a session and returns its id.
func (s *Service) NewSessionID() string {
	id := uuid.NewString()
	s.entry(id)
	return id
}

func (s *Service) History() *HistoryView {
	return s.history
}

// entry returns the session for sid, creating an idle one on first use so a
// valid token survives a restart.
func (s *Service) entry(sid string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sid]
	if !ok {
		e = &entry{session: NewSession(sid)}
		s.sessions[sid] = e
	}
	return e
}

func (s *Service) Session(sid string) Session {
	e := s.entry(sid)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// apply runs a synchronous transition under the session lock.
func (s *Service) apply(sid string, fn func(Session) (Session, error)) (Session, error) {
	e := s.entry(sid)
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := fn(e.session)
	if err != nil {
		return e.session, err
	}
	e.session = next
	return next, nil
}

// SubmitProfile analyses profile. The AI call runs without holding the
// session; its result is dropped with ErrSuperseded if the session moved on.
func (s *Service) SubmitProfile(ctx context.Context, sid string, profile record.PatientProfile) (Session, error) {
	profile.Normalize(s.now())

	e := s.entry(sid)
	e.mu.Lock()
	next, req, err := BeginAnalysis(e.session, profile)
	if err != nil {
		cur := e.session
		e.mu.Unlock()
		return cur, err
	}
	e.session = next
	e.mu.Unlock()

	stats, aiErr := s.ai.Analyze(ctx, profile)

	e.mu.Lock()
	defer e.mu.Unlock()
	var applied bool
	if aiErr != nil {
		next, applied = FailAnalysis(e.session, req, aiErr)
	} else {
		next, applied = CompleteAnalysis(e.session, req, stats)
	}
	if !applied {
		s.log.Debug().Str("session", sid).Uint64("token", req.Token).Msg("discarding stale analysis")
		return e.session, ErrSuperseded
	}
	e.session = next
	if aiErr != nil {
		s.log.Error().Err(aiErr).Str("session", sid).Msg("analysis failed")
		return next, aiErr
	}
	return next, nil
}

// GeneratePlan asks for a meal plan for the analysed profile. It is a no-op
// when the session holds no analysis.
func (s *Service) GeneratePlan(ctx context.Context, sid string) (Session, error) {
	e := s.entry(sid)
	e.mu.Lock()
	next, req, ok, err := BeginPlan(e.session)
	if err != nil || !ok {
		cur := e.session
		e.mu.Unlock()
		return cur, err
	}
	e.session = next
	profile, stats := *next.Profile, *next.Stats
	e.mu.Unlock()

	plan, aiErr := s.ai.GeneratePlan(ctx, profile, stats)

	e.mu.Lock()
	defer e.mu.Unlock()
	var applied bool
	if aiErr != nil {
		next, applied = FailPlan(e.session, req, aiErr)
	} else {
		next, applied = CompletePlan(e.session, req, plan)
	}
	if !applied {
		s.log.Debug().Str("session", sid).Uint64("token", req.Token).Msg("discarding stale plan")
		return e.session, ErrSuperseded
	}
	e.session = next
	if aiErr != nil {
		s.log.Error().Err(aiErr).Str("session", sid).Msg("plan generation failed")
		return next, aiErr
	}
	return next, nil
}

func (s *Service) EditPlanItem(sid string, meal, item int, field EditField, value string) (Session, error) {
	return s.apply(sid, func(cur Session) (Session, error) {
		return EditPlanItem(cur, meal, item, field, value)
	})
}

func (s *Service) DeletePlanItem(sid string, meal, item int) (Session, error) {
	return s.apply(sid, func(cur Session) (Session, error) {
		return DeletePlanItem(cur, meal, item)
	})
}

func (s *Service) EditMeal(sid string, meal int, title, notes *string) (Session, error) {
	return s.apply(sid, func(cur Session) (Session, error) {
		return EditMeal(cur, meal, title, notes)
	})
}

// SaveConsultation stores the session as a new record. On a storage failure
// the session, follow-up included, is left as it was.
func (s *Service) SaveConsultation(ctx context.Context, sid string) (SaveResult, error) {
	e := s.entry(sid)
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, returning, err := PrepareRecord(e.session, s.newID(), s.newCode(), s.now())
	if err != nil {
		return SaveResult{}, err
	}
	if err := s.records.Append(ctx, rec); err != nil {
		n := Notice{Level: NoticeError, Message: "Não foi possível salvar a consulta. Verifique o armazenamento e tente novamente."}
		e.session.Notice = &n
		return SaveResult{Notice: n}, fmt.Errorf("save consultation: %w", err)
	}

	next, notice := CompleteSave(e.session, rec, returning)
	e.session = next
	s.history.Add(rec)

	s.log.Info().
		Str("record_id", rec.ID).
		Bool("returning", returning).
		Msg("consultation saved")

	if s.reports != nil {
		go s.deliver(rec)
	}
	return SaveResult{Record: rec, AccessCode: rec.AccessCode, Returning: returning, Notice: notice}, nil
}

func (s *Service) deliver(rec record.PatientRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.reports.Deliver(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("record_id", rec.ID).Msg("report delivery failed")
	}
}

func (s *Service) StartFollowUp(ctx context.Context, sid, recordID string) (Session, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return s.Session(sid), err
	}
	return s.apply(sid, func(cur Session) (Session, error) {
		return StartFollowUp(cur, *rec), nil
	})
}

func (s *Service) CancelFollowUp(sid string) Session {
	next, _ := s.apply(sid, func(cur Session) (Session, error) {
		return CancelFollowUp(cur), nil
	})
	return next
}

func (s *Service) LoadForViewing(ctx context.Context, sid, recordID string) (Session, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return s.Session(sid), err
	}
	return s.apply(sid, func(cur Session) (Session, error) {
		return LoadForViewing(cur, *rec), nil
	})
}

func (s *Service) Reset(sid string) Session {
	next, _ := s.apply(sid, func(cur Session) (Session, error) {
		return Reset(cur), nil
	})
	return next
}

// EndSession forgets sid entirely.
func (s *Service) EndSession(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
}
