package store

import (
	"errors"
	"sort"
	"strings"
	"time"
)

const (
	DefaultPlanName  = "Today's Meal Plan"
	DefaultMealEmoji = "🍽️"
)

var ErrNotFound = errors.New("not found")

// Nutrition holds values per 100 g of a food.
type Nutrition struct {
	CaloriesPer100g float64  `json:"calories_per_100g"`
	ProteinPer100g  float64  `json:"protein_per_100g"`
	CarbsPer100g    float64  `json:"carbs_per_100g"`
	FatPer100g      float64  `json:"fat_per_100g"`
	FiberPer100g    *float64 `json:"fiber_per_100g,omitempty"`
}

func (n Nutrition) Validate() error {
	if n.CaloriesPer100g < 0 || n.ProteinPer100g < 0 || n.CarbsPer100g < 0 || n.FatPer100g < 0 {
		return errors.New("nutrition values must not be negative")
	}
	if n.FiberPer100g != nil && *n.FiberPer100g < 0 {
		return errors.New("nutrition values must not be negative")
	}
	return nil
}

type Food struct {
	ID        string    `json:"id,omitempty"` // empty for foods that were never persisted
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	Nutrition
}

// Macros is a set of absolute macro amounts (kcal and grams).
type Macros struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

func (m Macros) Add(o Macros) Macros {
	return Macros{
		Calories: m.Calories + o.Calories,
		Protein:  m.Protein + o.Protein,
		Carbs:    m.Carbs + o.Carbs,
		Fat:      m.Fat + o.Fat,
	}
}

type MealFood struct {
	ID            string  `json:"id"`
	MealID        string  `json:"meal_id"`
	FoodID        string  `json:"food_id,omitempty"`
	QuantityGrams float64 `json:"quantity_grams"`
	Food          Food    `json:"food"`

	// Seq is the entry's position among all meal foods; it orders a meal's
	// foods and lets a removed entry be restored in place.
	Seq int64 `json:"-"`
}

// Macros scales the food's per-100g values to this entry's quantity.
func (mf MealFood) Macros() Macros {
	factor := mf.QuantityGrams / 100.0
	return Macros{
		Calories: factor * mf.Food.CaloriesPer100g,
		Protein:  factor * mf.Food.ProteinPer100g,
		Carbs:    factor * mf.Food.CarbsPer100g,
		Fat:      factor * mf.Food.FatPer100g,
	}
}

type Meal struct {
	ID         string     `json:"id"`
	MealPlanID string     `json:"meal_plan_id"`
	Name       string     `json:"name"`
	Emoji      string     `json:"emoji"`
	OrderIndex int        `json:"order_index"`
	Foods      []MealFood `json:"foods"`
}

func (m Meal) Totals() Macros {
	var total Macros
	for _, f := range m.Foods {
		total = total.Add(f.Macros())
	}
	return total
}

type MealPlan struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Meals     []Meal    `json:"meals"`
}

func (p MealPlan) Totals() Macros {
	var total Macros
	for _, m := range p.Meals {
		total = total.Add(m.Totals())
	}
	return total
}

// FindMeal looks a meal up by name, ignoring case.
func (p *MealPlan) FindMeal(name string) *Meal {
	name = strings.TrimSpace(name)
	for i := range p.Meals {
		if strings.EqualFold(p.Meals[i].Name, name) {
			return &p.Meals[i]
		}
	}
	return nil
}

// SortMeals orders meals by OrderIndex, keeping insertion order for ties.
func (p *MealPlan) SortMeals() {
	sort.SliceStable(p.Meals, func(i, j int) bool {
		return p.Meals[i].OrderIndex < p.Meals[j].OrderIndex
	})
}

type Chat struct {
	ID         string    `json:"id"`
	MealPlanID string    `json:"meal_plan_id"`
	Title      *string   `json:"title"` // Nullable
	CreatedAt  time.Time `json:"created_at"`
}

type Message struct {
	ID               string    `json:"id"`
	ChatID           string    `json:"chat_id"`
	Sender           string    `json:"sender"` // "user" or "model"
	Content          string    `json:"content"`
	Timestamp        time.Time `json:"timestamp"`
	NegativeFeedback bool      `json:"negative_feedback"`
}
