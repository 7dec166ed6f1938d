package review

import (
	"fmt"
	"strings"

	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

const (
	LabelHigh   = "high"
	LabelMedium = "medium"
	LabelLow    = "low"
)

// ConfidenceLabel buckets a confidence score for display.
func ConfidenceLabel(c float64) string {
	switch {
	case c >= 0.8:
		return LabelHigh
	case c >= 0.6:
		return LabelMedium
	default:
		return LabelLow
	}
}

type describer struct{}

func mealOrUnknown(meal string) string {
	if strings.TrimSpace(meal) == "" {
		return "an unspecified meal"
	}
	return meal
}

func (describer) VisitAdd(c suggestion.Add) string {
	return fmt.Sprintf("Add %s %s to %s", suggestion.FormatGrams(c.QuantityGrams), c.FoodName, mealOrUnknown(c.TargetMeal))
}

func (describer) VisitReplace(c suggestion.Replace) string {
	return fmt.Sprintf("Replace %s with %s %s in %s",
		c.OriginalFoodName, suggestion.FormatGrams(c.QuantityGrams), c.FoodName, mealOrUnknown(c.TargetMeal))
}

func (describer) VisitDelete(c suggestion.Delete) string {
	return fmt.Sprintf("Remove %s from %s", c.FoodName, mealOrUnknown(c.TargetMeal))
}

func (describer) VisitModifyQuantity(c suggestion.ModifyQuantity) string {
	return fmt.Sprintf("Change %s to %s in %s", c.FoodName, suggestion.FormatGrams(c.QuantityGrams), mealOrUnknown(c.TargetMeal))
}

func (describer) VisitAddMeal(c suggestion.AddMeal) string {
	if len(c.Foods) == 0 {
		return fmt.Sprintf("Create meal %s", c.MealName)
	}
	foods := make([]string, len(c.Foods))
	for i, f := range c.Foods {
		foods[i] = suggestion.FormatGrams(f.QuantityGrams) + " " + f.Name
	}
	return fmt.Sprintf("Create meal %s with %s", c.MealName, strings.Join(foods, ", "))
}

// Describe renders a change as a short instruction.
func Describe(c suggestion.Change) string {
	return suggestion.Visit[string](c, describer{})
}
