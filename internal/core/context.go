package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

func round1(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func macroSummary(m store.Macros) string {
	return fmt.Sprintf("%s kcal, %sg protein, %sg carbs, %sg fat",
		round1(m.Calories), round1(m.Protein), round1(m.Carbs), round1(m.Fat))
}

// BuildPlanContext renders a plan as the text block sent to the model ahead
// of the user's request.
func BuildPlanContext(plan *store.MealPlan) string {
	if plan == nil {
		return "Current meal plan: none"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current meal plan: %s\n", plan.Name)
	for _, meal := range plan.Meals {
		fmt.Fprintf(&b, "\n%s %s (%s)\n", meal.Emoji, meal.Name, macroSummary(meal.Totals()))
		if len(meal.Foods) == 0 {
			b.WriteString("- (no foods)\n")
			continue
		}
		for _, mf := range meal.Foods {
			fmt.Fprintf(&b, "- %s (%s): %s kcal\n", mf.Food.Name, suggestion.FormatGrams(mf.QuantityGrams), round1(mf.Macros().Calories))
		}
	}
	fmt.Fprintf(&b, "\nDaily totals: %s", macroSummary(plan.Totals()))
	return b.String()
}
