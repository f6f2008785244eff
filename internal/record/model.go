package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// ActivityLevel tiers are ordered from least to most active.
type ActivityLevel string

const (
	ActivitySedentary  ActivityLevel = "sedentary"
	ActivityLight      ActivityLevel = "light"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityActive     ActivityLevel = "active"
	ActivityVeryActive ActivityLevel = "very_active"
)

var activityRank = map[ActivityLevel]int{
	ActivitySedentary:  0,
	ActivityLight:      1,
	ActivityModerate:   2,
	ActivityActive:     3,
	ActivityVeryActive: 4,
}

// Rank returns the tier position, or -1 for an unknown level.
func (a ActivityLevel) Rank() int {
	if r, ok := activityRank[a]; ok {
		return r
	}
	return -1
}

type Goal string

const (
	GoalLoss        Goal = "loss"
	GoalMaintenance Goal = "maintenance"
	GoalGain        Goal = "gain"
	GoalPerformance Goal = "performance"
)

type MealType string

const (
	MealBreakfast      MealType = "breakfast"
	MealMorningSnack   MealType = "morning_snack"
	MealLunch          MealType = "lunch"
	MealAfternoonSnack MealType = "afternoon_snack"
	MealDinner         MealType = "dinner"
	MealSupper         MealType = "supper"
)

// MealTypes lists the fixed meal slots in day order.
var MealTypes = []MealType{
	MealBreakfast, MealMorningSnack, MealLunch, MealAfternoonSnack, MealDinner, MealSupper,
}

func (m MealType) Valid() bool {
	for _, t := range MealTypes {
		if t == m {
			return true
		}
	}
	return false
}

// BirthDateLayout is the calendar date format used for birth dates.
const BirthDateLayout = "2006-01-02"

// PatientProfile is the intake data captured by the nutritionist.
type PatientProfile struct {
	Name          string        `json:"name"`
	BirthDate     string        `json:"birthDate,omitempty"`
	Age           int           `json:"age"`
	Sex           Sex           `json:"gender"`
	Weight        float64       `json:"weight"`
	Height        float64       `json:"height"`
	Waist         *float64      `json:"waist,omitempty"`
	Hips          *float64      `json:"hips,omitempty"`
	Arm           *float64      `json:"arm,omitempty"`
	BodyFat       *float64      `json:"bodyFat,omitempty"`
	MuscleMass    *float64      `json:"muscleMass,omitempty"`
	ActivityLevel ActivityLevel `json:"activityLevel"`
	Goal          Goal          `json:"goal"`
	Restrictions  string        `json:"restrictions"`
	Conditions    string        `json:"conditions"`
}

// Normalize recomputes Age from BirthDate when a birth date is present.
// An unparseable birth date leaves Age untouched.
func (p *PatientProfile) Normalize(now time.Time) {
	if strings.TrimSpace(p.BirthDate) == "" {
		return
	}
	if age, ok := AgeOn(p.BirthDate, now); ok {
		p.Age = age
	}
}

// AgeOn returns the whole years elapsed between birthDate (YYYY-MM-DD) and
// now, compared on calendar fields so no time-zone shift applies. The result
// is never negative.
func AgeOn(birthDate string, now time.Time) (int, bool) {
	b, err := time.Parse(BirthDateLayout, strings.TrimSpace(birthDate))
	if err != nil {
		return 0, false
	}
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age, true
}

var ErrInvalidProfile = errors.New("invalid profile")

// ValidateProfile rejects profiles the intake form should never submit.
func ValidateProfile(p PatientProfile) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	case p.Weight <= 0:
		return fmt.Errorf("%w: weight must be positive", ErrInvalidProfile)
	case p.Height <= 0:
		return fmt.Errorf("%w: height must be positive", ErrInvalidProfile)
	case p.Sex != SexMale && p.Sex != SexFemale:
		return fmt.Errorf("%w: invalid sex %q", ErrInvalidProfile, p.Sex)
	case p.ActivityLevel.Rank() < 0:
		return fmt.Errorf("%w: invalid activity level %q", ErrInvalidProfile, p.ActivityLevel)
	}
	switch p.Goal {
	case GoalLoss, GoalMaintenance, GoalGain, GoalPerformance:
	default:
		return fmt.Errorf("%w: invalid goal %q", ErrInvalidProfile, p.Goal)
	}
	if p.BirthDate != "" {
		if _, ok := AgeOn(p.BirthDate, time.Now()); !ok {
			return fmt.Errorf("%w: birth date must be YYYY-MM-DD", ErrInvalidProfile)
		}
	}
	return nil
}

type Macros struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fats    float64 `json:"fats"`
}

// NutritionalStats is the metabolic estimate returned by the analysis call.
type NutritionalStats struct {
	BMR             float64  `json:"bmr"`
	TDEE            float64  `json:"tdee"`
	CaloriesTarget  float64  `json:"caloriesTarget"`
	Macros          Macros   `json:"macros"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

type MealItem struct {
	Name     string  `json:"name"`
	Portion  string  `json:"portion"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fats     float64 `json:"fats"`
}

type Meal struct {
	Type  MealType   `json:"type"`
	Title string     `json:"title"`
	Items []MealItem `json:"items"`
	Notes string     `json:"notes,omitempty"`
}

// DailyPlan is one day of meals. TotalCalories is derived; call Recompute
// after any change to the items.
type DailyPlan struct {
	Day           string  `json:"day"`
	Meals         []Meal  `json:"meals"`
	TotalCalories float64 `json:"totalCalories"`
}

// Recompute sets TotalCalories to the sum of every item's calories.
func (p *DailyPlan) Recompute() {
	var total float64
	for _, m := range p.Meals {
		for _, it := range m.Items {
			total += it.Calories
		}
	}
	p.TotalCalories = total
}

// ItemCount returns the number of items across all meals.
func (p *DailyPlan) ItemCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, m := range p.Meals {
		n += len(m.Items)
	}
	return n
}

// Clone returns a deep copy so edits never reach a stored record.
func (p *DailyPlan) Clone() *DailyPlan {
	if p == nil {
		return nil
	}
	out := &DailyPlan{Day: p.Day, TotalCalories: p.TotalCalories, Meals: make([]Meal, len(p.Meals))}
	for i, m := range p.Meals {
		m.Items = append([]MealItem(nil), m.Items...)
		out.Meals[i] = m
	}
	return out
}

// ItemID identifies a checklist entry: meal index, item index and the item
// name with all whitespace removed.
func ItemID(mealIndex, itemIndex int, name string) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	return fmt.Sprintf("%d-%d-%s", mealIndex, itemIndex, compact)
}

// ItemIDs returns the checklist ids of every item in plan order.
func (p *DailyPlan) ItemIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, p.ItemCount())
	for mi, m := range p.Meals {
		for ii, it := range m.Items {
			ids = append(ids, ItemID(mi, ii, it.Name))
		}
	}
	return ids
}

// PatientRecord is one saved consultation.
type PatientRecord struct {
	ID         string           `json:"id"`
	AccessCode string           `json:"accessCode"`
	Date       time.Time        `json:"date"`
	Profile    PatientProfile   `json:"profile"`
	Stats      NutritionalStats `json:"stats"`
	Plan       *DailyPlan       `json:"plan,omitempty"`
}

// UnmarshalJSON accepts ids stored as JSON strings or as JSON numbers, which
// older saves produced.
func (r *PatientRecord) UnmarshalJSON(data []byte) error {
	type plain PatientRecord
	var aux struct {
		*plain
		ID json.RawMessage `json:"id"`
	}
	aux.plain = (*plain)(r)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ID = ""
	raw := bytes.TrimSpace(aux.ID)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		return json.Unmarshal(raw, &r.ID)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	r.ID = n.String()
	return nil
}
