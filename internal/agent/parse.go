package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"nutri-practice/internal/record"
)

// cleanJSON strips markdown fences and anything outside the outermost JSON
// object.
func cleanJSON(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 && end > start {
		response = response[start : end+1]
	}
	return response
}

type statsPayload struct {
	BMR            *float64 `json:"bmr"`
	TDEE           *float64 `json:"tdee"`
	CaloriesTarget *float64 `json:"caloriesTarget"`
	Macros         *struct {
		Protein *float64 `json:"protein"`
		Carbs   *float64 `json:"carbs"`
		Fats    *float64 `json:"fats"`
	} `json:"macros"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}

func parseStats(text string) (record.NutritionalStats, error) {
	var p statsPayload
	if err := json.Unmarshal([]byte(cleanJSON(text)), &p); err != nil {
		return record.NutritionalStats{}, fmt.Errorf("%w: stats: %v", ErrMalformedResponse, err)
	}
	if p.BMR == nil || p.TDEE == nil || p.CaloriesTarget == nil || p.Macros == nil ||
		p.Macros.Protein == nil || p.Macros.Carbs == nil || p.Macros.Fats == nil {
		return record.NutritionalStats{}, fmt.Errorf("%w: stats: missing required fields", ErrMalformedResponse)
	}
	recs := p.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return record.NutritionalStats{
		BMR:            *p.BMR,
		TDEE:           *p.TDEE,
		CaloriesTarget: *p.CaloriesTarget,
		Macros: record.Macros{
			Protein: *p.Macros.Protein,
			Carbs:   *p.Macros.Carbs,
			Fats:    *p.Macros.Fats,
		},
		Analysis:        strings.TrimSpace(p.Analysis),
		Recommendations: recs,
	}, nil
}

func parsePlan(text string) (record.DailyPlan, error) {
	var plan record.DailyPlan
	if err := json.Unmarshal([]byte(cleanJSON(text)), &plan); err != nil {
		return record.DailyPlan{}, fmt.Errorf("%w: plan: %v", ErrMalformedResponse, err)
	}
	if len(plan.Meals) == 0 {
		return record.DailyPlan{}, fmt.Errorf("%w: plan has no meals", ErrMalformedResponse)
	}

	seenLunch := false
	for i := range plan.Meals {
		t, ok := normalizeMealType(string(plan.Meals[i].Type), seenLunch)
		if !ok {
			return record.DailyPlan{}, fmt.Errorf("%w: unknown meal type %q", ErrMalformedResponse, plan.Meals[i].Type)
		}
		plan.Meals[i].Type = t
		if t == record.MealLunch {
			seenLunch = true
		}
		if plan.Meals[i].Items == nil {
			plan.Meals[i].Items = []record.MealItem{}
		}
	}
	plan.Recompute()
	return plan, nil
}

// normalizeMealType maps loose model output onto the fixed slots. A bare
// "snack" is placed before or after lunch depending on where it appears.
func normalizeMealType(raw string, afterLunch bool) (record.MealType, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
	switch t {
	case "morningsnack":
		t = string(record.MealMorningSnack)
	case "afternoonsnack":
		t = string(record.MealAfternoonSnack)
	case "snack":
		if afterLunch {
			return record.MealAfternoonSnack, true
		}
		return record.MealMorningSnack, true
	}
	mt := record.MealType(t)
	return mt, mt.Valid()
}
