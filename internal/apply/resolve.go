package apply

import (
	"strings"

	"nutricopilot.com/mealplan-copilot/internal/store"
)

// matchName picks the candidate for query. A case-insensitive exact match
// wins; otherwise the first candidate, in the given order, whose name
// contains the query or is contained in it. Returns -1 when nothing matches.
func matchName(query string, names []string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1
	}
	for i, n := range names {
		if strings.ToLower(strings.TrimSpace(n)) == q {
			return i
		}
	}
	for i, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if strings.Contains(n, q) || strings.Contains(q, n) {
			return i
		}
	}
	return -1
}

// findCatalogFood resolves a food name against the catalog, which is
// ordered by name.
func findCatalogFood(query string, foods []store.Food) (store.Food, bool) {
	names := make([]string, len(foods))
	for i, f := range foods {
		names[i] = f.Name
	}
	if i := matchName(query, names); i >= 0 {
		return foods[i], true
	}
	return store.Food{}, false
}

// findMealFood resolves a food name among the foods of a meal, in the
// order they were added.
func findMealFood(query string, meal *store.Meal) (store.MealFood, bool) {
	names := make([]string, len(meal.Foods))
	for i, mf := range meal.Foods {
		names[i] = mf.Food.Name
	}
	if i := matchName(query, names); i >= 0 {
		return meal.Foods[i], true
	}
	return store.MealFood{}, false
}
