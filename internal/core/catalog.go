package core

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"nutricopilot.com/mealplan-copilot/internal/store"
)

var ErrMacroRateLimited = errors.New("macro estimation rate limit exceeded")

type MacroGenerator interface {
	GenerateMacros(ctx context.Context, foodName string) (store.Nutrition, error)
}

type FoodLister interface {
	ListFoods(ctx context.Context) ([]store.Food, error)
}

// Catalog is the food catalog the applier resolves names against. Estimates
// for unknown foods go through a limiter so a chatty reply cannot flood the
// model with requests.
type Catalog struct {
	foods     FoodLister
	generator MacroGenerator
	limiter   *rate.Limiter
}

func NewCatalog(foods FoodLister, generator MacroGenerator, perMinute int) *Catalog {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Catalog{
		foods:     foods,
		generator: generator,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

func (c *Catalog) ListFoods(ctx context.Context) ([]store.Food, error) {
	return c.foods.ListFoods(ctx)
}

func (c *Catalog) GenerateMacros(ctx context.Context, foodName string) (store.Nutrition, error) {
	if !c.limiter.Allow() {
		return store.Nutrition{}, ErrMacroRateLimited
	}
	return c.generator.GenerateMacros(ctx, foodName)
}
