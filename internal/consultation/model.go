package consultation

import (
	"errors"

	"nutri-practice/internal/record"
)

type State string

const (
	StateIdle           State = "idle"
	StateAnalyzing      State = "analyzing"
	StateAnalyzed       State = "analyzed"
	StatePlanGenerating State = "plan_generating"
	StatePlanReady      State = "plan_ready"
)

var (
	ErrBusy        = errors.New("a plan is being generated")
	ErrSuperseded  = errors.New("request superseded by a newer one")
	ErrInvalidEdit = errors.New("invalid plan edit")
	ErrNoPlan      = errors.New("no plan to edit")
	ErrIncomplete  = errors.New("profile and analysis are required")
)

// FollowUp marks that the next save continues an existing patient.
type FollowUp struct {
	AccessCode string                `json:"accessCode"`
	Prefill    record.PatientProfile `json:"prefill"`
	FromRecord string                `json:"fromRecord"`
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Session is one professional's in-progress consultation. Values are treated
// as immutable by the transition functions: every transition returns a new
// Session and never writes through the pointers of the one it was given.
type Session struct {
	ID       string                   `json:"id"`
	State    State                    `json:"state"`
	Profile  *record.PatientProfile   `json:"profile,omitempty"`
	Stats    *record.NutritionalStats `json:"stats,omitempty"`
	Plan     *record.DailyPlan        `json:"plan,omitempty"`
	FollowUp *FollowUp                `json:"followUp,omitempty"`

	// Draft holds a submitted profile that has not been analysed yet, so a
	// failed analysis never loses what was typed.
	Draft *record.PatientProfile `json:"draft,omitempty"`

	// Viewing is the id of the stored record currently loaded read-only.
	Viewing string  `json:"viewing,omitempty"`
	Notice  *Notice `json:"notice,omitempty"`

	Token  uint64 `json:"-"`
	resume State
}

// Request identifies one in-flight AI call.
type Request struct {
	Token uint64
	Prev  State
}

// SaveResult describes a stored consultation.
type SaveResult struct {
	Record     record.PatientRecord `json:"record"`
	AccessCode string               `json:"accessCode"`
	Returning  bool                 `json:"returning"`
	Notice     Notice               `json:"notice"`
}

// EditField names a MealItem field that can be edited from the plan table.
type EditField string

const (
	FieldName     EditField = "name"
	FieldPortion  EditField = "portion"
	FieldCalories EditField = "calories"
	FieldProtein  EditField = "protein"
	FieldCarbs    EditField = "carbs"
	FieldFats     EditField = "fats"
)
