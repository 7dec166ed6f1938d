package store

import (
	"context"
	"fmt"
	"strings"
)

type defaultMeal struct {
	name  string
	emoji string
	foods []defaultPortion
}

type defaultPortion struct {
	food  string
	grams float64
}

// DefaultFoods is the starter catalog, per 100 g.
var DefaultFoods = []Food{
	{Name: "Greek Yogurt", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 65, ProteinPer100g: 10, CarbsPer100g: 3, FatPer100g: 0}},
	{Name: "Mixed Berries", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 42, ProteinPer100g: 1, CarbsPer100g: 10, FatPer100g: 0}},
	{Name: "Granola", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 440, ProteinPer100g: 12, CarbsPer100g: 48, FatPer100g: 24}},
	{Name: "Honey", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 304, ProteinPer100g: 0, CarbsPer100g: 80, FatPer100g: 0}},
	{Name: "Grilled Chicken Breast", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 165, ProteinPer100g: 31, CarbsPer100g: 0, FatPer100g: 3.6}},
	{Name: "Quinoa", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 120, ProteinPer100g: 4, CarbsPer100g: 22, FatPer100g: 2}},
	{Name: "Mixed Vegetables", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 30, ProteinPer100g: 1.3, CarbsPer100g: 6.7, FatPer100g: 0}},
	{Name: "Olive Oil", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 884, ProteinPer100g: 0, CarbsPer100g: 0, FatPer100g: 100}},
	{Name: "Almonds", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 579, ProteinPer100g: 21, CarbsPer100g: 22, FatPer100g: 50}},
	{Name: "Apple", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 52, ProteinPer100g: 0.3, CarbsPer100g: 14, FatPer100g: 0.2}},
	{Name: "Salmon Fillet", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 206, ProteinPer100g: 22, CarbsPer100g: 0, FatPer100g: 12}},
	{Name: "Sweet Potato", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 86, ProteinPer100g: 2, CarbsPer100g: 20, FatPer100g: 0}},
	{Name: "Broccoli", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 34, ProteinPer100g: 2.8, CarbsPer100g: 7, FatPer100g: 0.4}},
	{Name: "Avocado", IsDefault: true, Nutrition: Nutrition{CaloriesPer100g: 160, ProteinPer100g: 2, CarbsPer100g: 9, FatPer100g: 15}},
}

var defaultMeals = []defaultMeal{
	{name: "Breakfast", emoji: "🍳", foods: []defaultPortion{
		{"Greek Yogurt", 200}, {"Mixed Berries", 100}, {"Granola", 50}, {"Honey", 15},
	}},
	{name: "Lunch", emoji: "🥗", foods: []defaultPortion{
		{"Grilled Chicken Breast", 150}, {"Quinoa", 100}, {"Mixed Vegetables", 150}, {"Olive Oil", 10},
	}},
	{name: "Snack", emoji: "🥜", foods: []defaultPortion{
		{"Almonds", 25}, {"Apple", 150},
	}},
	{name: "Dinner", emoji: "🍽️", foods: []defaultPortion{
		{"Salmon Fillet", 120}, {"Sweet Potato", 200}, {"Broccoli", 150}, {"Avocado", 50},
	}},
}

// SeedFoods inserts the default catalog when the foods table is empty.
func (s *SQLiteStore) SeedFoods(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM foods").Scan(&count); err != nil {
		return fmt.Errorf("failed to count foods: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, food := range DefaultFoods {
		if _, err := s.CreateFood(ctx, food); err != nil {
			return fmt.Errorf("failed to seed %s: %w", food.Name, err)
		}
	}
	return nil
}

// CreateDefaultPlan builds "Today's Meal Plan" with the four standard meals
// and their starter foods. Foods missing from the catalog are skipped.
func (s *SQLiteStore) CreateDefaultPlan(ctx context.Context) (*MealPlan, error) {
	foods, err := s.ListFoods(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(foods))
	for _, f := range foods {
		key := strings.ToLower(f.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = f.ID
		}
	}

	plan, err := s.CreateMealPlan(ctx, DefaultPlanName)
	if err != nil {
		return nil, err
	}
	for _, dm := range defaultMeals {
		meal, err := s.AddMeal(ctx, plan.ID, dm.name, dm.emoji)
		if err != nil {
			return nil, err
		}
		for _, portion := range dm.foods {
			foodID, ok := byName[strings.ToLower(portion.food)]
			if !ok {
				continue
			}
			if _, err := s.AddFoodToMeal(ctx, meal.ID, foodID, portion.grams); err != nil {
				return nil, err
			}
		}
	}
	return s.GetMealPlan(ctx, plan.ID)
}

// Seed loads the default catalog and makes sure at least one plan exists.
// It returns the ID of the oldest plan.
func (s *SQLiteStore) Seed(ctx context.Context) (string, error) {
	if err := s.SeedFoods(ctx); err != nil {
		return "", err
	}
	ids, err := s.ListMealPlanIDs(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	plan, err := s.CreateDefaultPlan(ctx)
	if err != nil {
		return "", err
	}
	return plan.ID, nil
}
