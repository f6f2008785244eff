package portal

import (
	"math"
	"sort"
	"time"

	"nutri-practice/internal/record"
)

// MLPerKg is the daily water target per kilogram of body weight.
const MLPerKg = 35

type Hydration struct {
	ML     int     `json:"ml"`
	Liters float64 `json:"liters"`
}

func HydrationTarget(weightKg float64) Hydration {
	if weightKg <= 0 {
		return Hydration{}
	}
	ml := int(math.Round(weightKg * MLPerKg))
	return Hydration{ML: ml, Liters: float64(ml) / 1000}
}

// Adherence is the share of plan items checked, as a rounded percentage.
// Ids that no longer match an item in plan are ignored.
func Adherence(plan *record.DailyPlan, checked []string) int {
	total := plan.ItemCount()
	if total == 0 {
		return 0
	}
	done := 0
	set := toSet(checked)
	for _, id := range plan.ItemIDs() {
		if _, ok := set[id]; ok {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// TrendPoint is one visit's measurements. Metrics not taken at that visit
// are nil.
type TrendPoint struct {
	RecordID   string    `json:"recordId"`
	Date       time.Time `json:"date"`
	Weight     *float64  `json:"weight"`
	BodyFat    *float64  `json:"bodyFat"`
	MuscleMass *float64  `json:"muscleMass"`
	Waist      *float64  `json:"waist"`
	Hips       *float64  `json:"hips"`
	Arm        *float64  `json:"arm"`
}

func present(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	n := *v
	return &n
}

// Trend returns the visits sharing accessCode, oldest first.
func Trend(records []record.PatientRecord, accessCode string) []TrendPoint {
	points := make([]TrendPoint, 0)
	for _, r := range records {
		if r.AccessCode != accessCode {
			continue
		}
		w := r.Profile.Weight
		points = append(points, TrendPoint{
			RecordID:   r.ID,
			Date:       r.Date,
			Weight:     &w,
			BodyFat:    present(r.Profile.BodyFat),
			MuscleMass: present(r.Profile.MuscleMass),
			Waist:      present(r.Profile.Waist),
			Hips:       present(r.Profile.Hips),
			Arm:        present(r.Profile.Arm),
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}
