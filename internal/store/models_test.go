package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMealFoodMacros(t *testing.T) {
	mf := MealFood{
		QuantityGrams: 150,
		Food: Food{Name: "Grilled Chicken Breast", Nutrition: Nutrition{
			CaloriesPer100g: 165, ProteinPer100g: 31, CarbsPer100g: 0, FatPer100g: 3.6,
		}},
	}

	m := mf.Macros()
	assert.InDelta(t, 247.5, m.Calories, 1e-9)
	assert.InDelta(t, 46.5, m.Protein, 1e-9)
	assert.InDelta(t, 0, m.Carbs, 1e-9)
	assert.InDelta(t, 5.4, m.Fat, 1e-9)
}

func TestPlanTotalsAndLookup(t *testing.T) {
	plan := MealPlan{Meals: []Meal{
		{Name: "Dinner", OrderIndex: 3, Foods: []MealFood{
			{QuantityGrams: 200, Food: Food{Nutrition: Nutrition{CaloriesPer100g: 86, CarbsPer100g: 20}}},
		}},
		{Name: "Breakfast", OrderIndex: 0, Foods: []MealFood{
			{QuantityGrams: 50, Food: Food{Nutrition: Nutrition{CaloriesPer100g: 440, ProteinPer100g: 12}}},
		}},
	}}

	total := plan.Totals()
	assert.InDelta(t, 392, total.Calories, 1e-9)
	assert.InDelta(t, 40, total.Carbs, 1e-9)
	assert.InDelta(t, 6, total.Protein, 1e-9)

	plan.SortMeals()
	assert.Equal(t, "Breakfast", plan.Meals[0].Name)

	assert.NotNil(t, plan.FindMeal(" dinner "))
	assert.Nil(t, plan.FindMeal("Lunch"))
}

func TestNutritionValidate(t *testing.T) {
	assert.NoError(t, Nutrition{CaloriesPer100g: 10}.Validate())
	assert.Error(t, Nutrition{FatPer100g: -1}.Validate())
	neg := -0.5
	assert.Error(t, Nutrition{FiberPer100g: &neg}.Validate())
}
