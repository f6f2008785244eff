package agent

import (
	"fmt"
	"strings"

	"nutri-practice/internal/record"
)

const systemInstruction = `You are a clinical nutrition assistant supporting a registered nutritionist.
Be professional, empathetic and evidence-based (WHO, national dietary guidelines).
Never prescribe medication. Always recommend an in-person consultation for clinical decisions.
Answer in Brazilian Portuguese.`

func optional(v *float64, unit string) string {
	if v == nil || *v == 0 {
		return "not provided"
	}
	return fmt.Sprintf("%g %s", *v, unit)
}

func analysisPrompt(p record.PatientProfile) string {
	var b strings.Builder
	b.WriteString("Analyse the patient below and estimate their nutritional needs.\n\n")

	b.WriteString("PERSONAL DATA:\n")
	fmt.Fprintf(&b, "- Name: %s, Age: %d, Sex: %s\n", p.Name, p.Age, p.Sex)
	fmt.Fprintf(&b, "- Weight: %g kg, Height: %g cm\n", p.Weight, p.Height)
	fmt.Fprintf(&b, "- Activity level: %s\n", p.ActivityLevel)
	fmt.Fprintf(&b, "- Goal: %s\n\n", p.Goal)

	b.WriteString("BODY MEASUREMENTS AND COMPOSITION:\n")
	fmt.Fprintf(&b, "- Waist: %s\n", optional(p.Waist, "cm"))
	fmt.Fprintf(&b, "- Hips: %s\n", optional(p.Hips, "cm"))
	fmt.Fprintf(&b, "- Arm: %s\n", optional(p.Arm, "cm"))
	fmt.Fprintf(&b, "- Body fat: %s\n", optional(p.BodyFat, "%"))
	fmt.Fprintf(&b, "- Muscle mass: %s\n\n", optional(p.MuscleMass, "%"))

	b.WriteString("CLINICAL:\n")
	fmt.Fprintf(&b, "- Restrictions: %s\n", p.Restrictions)
	fmt.Fprintf(&b, "- Conditions: %s\n\n", p.Conditions)

	b.WriteString("RULES:\n")
	b.WriteString("1. When waist and hip measurements are available, estimate metabolic risk in \"analysis\".\n")
	b.WriteString("2. When body fat is available, use it to refine the calorie and macro targets.\n\n")

	b.WriteString(`Return ONLY valid JSON with this structure (no markdown):
{
  "bmr": number,
  "tdee": number,
  "caloriesTarget": number,
  "macros": { "protein": number, "carbs": number, "fats": number },
  "analysis": "string, at most 4 sentences",
  "recommendations": ["string", "string", "string"]
}`)
	return b.String()
}

func planPrompt(p record.PatientProfile, s record.NutritionalStats) string {
	slots := make([]string, len(record.MealTypes))
	for i, t := range record.MealTypes {
		slots[i] = `"` + string(t) + `"`
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a one-day meal plan for the patient %s.\n", p.Name)
	fmt.Fprintf(&b, "- Calorie target: %g kcal\n", s.CaloriesTarget)
	fmt.Fprintf(&b, "- Macros: protein %gg, carbs %gg, fats %gg\n", s.Macros.Protein, s.Macros.Carbs, s.Macros.Fats)
	fmt.Fprintf(&b, "- Goal: %s\n", p.Goal)
	fmt.Fprintf(&b, "- Restrictions: %s\n", p.Restrictions)
	fmt.Fprintf(&b, "- Conditions: %s\n\n", p.Conditions)
	b.WriteString("Respect Brazilian food culture. Portions in household measures.\n\n")

	b.WriteString("Return ONLY valid JSON with this structure (no markdown):\n")
	fmt.Fprintf(&b, `{
  "day": "label for the day",
  "totalCalories": number,
  "meals": [
    {
      "type": one of %s,
      "title": "meal name",
      "items": [
        { "name": "food", "portion": "household measure", "calories": number, "protein": number, "carbs": number, "fats": number }
      ],
      "notes": "short tip"
    }
  ]
}`, strings.Join(slots, " | "))
	return b.String()
}

func shoppingListPrompt(planJSON string) string {
	var b strings.Builder
	b.WriteString("Using the meal plan JSON below, write one consolidated shopping list organised by grocery section ")
	b.WriteString("(Produce, Butcher/Fishmonger, Pantry, Dairy).\n\n")
	fmt.Fprintf(&b, "Plan: %s\n\n", planJSON)
	b.WriteString("Format the answer as clean markdown bullets. Do not include calories, only items and the quantities to buy ")
	b.WriteString("(for example \"3 eggs\" becomes \"a dozen eggs\"). Be practical.")
	return b.String()
}
