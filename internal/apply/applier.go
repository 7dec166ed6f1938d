package apply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

// PlanStore is the meal-plan persistence the applier mutates.
type PlanStore interface {
	CreateMealPlan(ctx context.Context, name string) (*store.MealPlan, error)
	GetMealPlan(ctx context.Context, planID string) (*store.MealPlan, error)
	AddMeal(ctx context.Context, planID, name, emoji string) (*store.Meal, error)
	DeleteMeal(ctx context.Context, mealID string) error
	AddFoodToMeal(ctx context.Context, mealID, foodID string, quantityGrams float64) (*store.MealFood, error)
	AddDirectFoodToMeal(ctx context.Context, mealID, foodName string, quantityGrams float64, n store.Nutrition) (*store.MealFood, error)
	UpdateFoodQuantity(ctx context.Context, mealFoodID string, quantityGrams float64) (*store.MealFood, error)
	RemoveFoodFromMeal(ctx context.Context, mealFoodID string) error
	RestoreMealFood(ctx context.Context, mf store.MealFood) (*store.MealFood, error)
	UpdateFood(ctx context.Context, foodID string, n store.Nutrition) (*store.Food, error)
}

// FoodCatalog resolves food names and estimates nutrition for unknown foods.
type FoodCatalog interface {
	ListFoods(ctx context.Context) ([]store.Food, error)
	GenerateMacros(ctx context.Context, foodName string) (store.Nutrition, error)
}

// Applier executes changes against one meal plan and keeps their history.
type Applier struct {
	store   PlanStore
	catalog FoodCatalog
	planID  string
	history *History
	now     func() time.Time
}

func New(s PlanStore, catalog FoodCatalog, planID string) *Applier {
	return &Applier{
		store:   s,
		catalog: catalog,
		planID:  planID,
		history: NewHistory(),
		now:     time.Now,
	}
}

func (a *Applier) PlanID() string { return a.planID }

func (a *Applier) History() *History { return a.history }

// ApplyChange applies one change and, on success, records it for undo.
func (a *Applier) ApplyChange(ctx context.Context, c suggestion.Change) Result {
	res := a.apply(ctx, c)
	if res.Success {
		res.EntryID = a.history.Push(&Entry{Pairs: []Pair{{Change: c, Result: res}}, At: a.now()})
	}
	return res
}

// ApplyMultiple applies changes in order, continuing past failures. The
// successful ones are recorded as a single undo entry; nothing is rolled
// back when a later change fails.
func (a *Applier) ApplyMultiple(ctx context.Context, changes []suggestion.Change) BatchResult {
	batch := BatchResult{TotalCount: len(changes), Results: make([]Result, 0, len(changes))}
	var pairs []Pair
	for _, c := range changes {
		res := a.apply(ctx, c)
		batch.Results = append(batch.Results, res)
		if res.Success {
			batch.SuccessCount++
			pairs = append(pairs, Pair{Change: c, Result: res})
		}
	}
	if len(pairs) > 0 {
		batch.EntryID = a.history.Push(&Entry{Pairs: pairs, Grouped: true, At: a.now()})
	}
	logger.Info("applied changes",
		zap.String("plan_id", a.planID),
		zap.Int("succeeded", batch.SuccessCount),
		zap.Int("total", batch.TotalCount))
	return batch
}

// Undo reverses the most recent entry. If any step fails the entry stays on
// the undo stack and can be retried.
func (a *Applier) Undo(ctx context.Context) Result {
	e, ok := a.history.popUndo()
	if !ok {
		return Result{Message: "Nothing to undo"}
	}
	for i := len(e.Pairs) - 1; i >= 0; i-- {
		if err := a.revert(ctx, e.Pairs[i].Result.Record); err != nil {
			a.history.restoreUndo(e)
			logger.Error("undo failed", zap.String("plan_id", a.planID), zap.Error(err))
			return failed(classify(err), "Failed to undo")
		}
	}
	a.history.pushRedo(e)
	return Result{Success: true, Message: fmt.Sprintf("Undid %s", describeEntry(e)), EntryID: e.ID}
}

// Redo re-applies the most recently undone entry.
func (a *Applier) Redo(ctx context.Context) Result {
	e, ok := a.history.popRedo()
	if !ok {
		return Result{Message: "Nothing to redo"}
	}
	redone := &Entry{ID: e.ID, Grouped: e.Grouped, At: a.now()}
	var failures []string
	var skipped []int
	for i, p := range e.Pairs {
		res := a.apply(ctx, p.Change)
		if res.Success {
			redone.Pairs = append(redone.Pairs, Pair{Change: p.Change, Result: res})
		} else {
			failures = append(failures, res.Message)
			skipped = append(skipped, i)
		}
	}
	if len(redone.Pairs) == 0 {
		a.history.pushRedo(e)
		return Result{Message: "Failed to redo: " + strings.Join(failures, "; ")}
	}
	a.history.pushRedone(redone)
	msg := fmt.Sprintf("Redid %s", describeEntry(redone))
	if len(failures) > 0 {
		msg += " (" + strings.Join(failures, "; ") + ")"
	}
	return Result{Success: true, Message: msg, EntryID: redone.ID, Skipped: skipped}
}

func describeEntry(e *Entry) string {
	if len(e.Pairs) == 1 {
		return strings.ToLower(e.Pairs[0].Result.Message[:1]) + e.Pairs[0].Result.Message[1:]
	}
	return fmt.Sprintf("%d changes", len(e.Pairs))
}

func (a *Applier) apply(ctx context.Context, c suggestion.Change) Result {
	res := suggestion.Visit[Result](c, applyVisitor{a: a, ctx: ctx})
	if res.Success {
		logger.Debug("change applied", zap.String("kind", suggestion.Kind(c)), zap.String("message", res.Message))
	} else {
		logger.Warn("change failed",
			zap.String("kind", suggestion.Kind(c)),
			zap.String("line", c.Metadata().OriginalText),
			zap.Error(res.Err))
	}
	return res
}

type applyVisitor struct {
	a   *Applier
	ctx context.Context
}

func (v applyVisitor) VisitAdd(c suggestion.Add) Result {
	if res, ok := validateFood(c.FoodName, c.TargetMeal, c.QuantityGrams); !ok {
		return res
	}
	meal, res, ok := v.a.meal(v.ctx, c.TargetMeal)
	if !ok {
		return res
	}
	rec := &Record{}
	mf, err := v.a.addFood(v.ctx, meal, c.FoodName, c.QuantityGrams, rec)
	if err != nil {
		return failed(err, "Could not add %s to %s", c.FoodName, meal.Name)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Added %s %s to %s", suggestion.FormatGrams(mf.QuantityGrams), mf.Food.Name, meal.Name),
		Record:  rec,
	}
}

func (v applyVisitor) VisitReplace(c suggestion.Replace) Result {
	if strings.TrimSpace(c.OriginalFoodName) == "" {
		return failed(ErrValidation, "The food to replace is missing")
	}
	if res, ok := validateFood(c.FoodName, c.TargetMeal, c.QuantityGrams); !ok {
		return res
	}
	meal, res, ok := v.a.meal(v.ctx, c.TargetMeal)
	if !ok {
		return res
	}
	original, ok := findMealFood(c.OriginalFoodName, meal)
	if !ok {
		return failed(fmt.Errorf("%w: %q in meal %q", ErrNotFound, c.OriginalFoodName, meal.Name),
			"Could not find %s in %s", c.OriginalFoodName, meal.Name)
	}

	rec := &Record{}
	if err := v.a.store.RemoveFoodFromMeal(v.ctx, original.ID); err != nil {
		return failed(classify(err), "Could not remove %s from %s", original.Food.Name, meal.Name)
	}
	rec.Removed = append(rec.Removed, original)

	mf, err := v.a.addFood(v.ctx, meal, c.FoodName, c.QuantityGrams, rec)
	if err != nil {
		// Put the original back so a failed replace leaves the meal as it was.
		if rerr := v.a.revert(v.ctx, rec); rerr != nil {
			logger.Error("failed to restore replaced food", zap.String("meal_food_id", original.ID), zap.Error(rerr))
		}
		return failed(err, "Could not replace %s with %s in %s", original.Food.Name, c.FoodName, meal.Name)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Replaced %s with %s %s in %s", original.Food.Name, suggestion.FormatGrams(mf.QuantityGrams), mf.Food.Name, meal.Name),
		Record:  rec,
	}
}

func (v applyVisitor) VisitDelete(c suggestion.Delete) Result {
	if res, ok := validateFood(c.FoodName, c.TargetMeal, 1); !ok {
		return res
	}
	meal, res, ok := v.a.meal(v.ctx, c.TargetMeal)
	if !ok {
		return res
	}
	mf, ok := findMealFood(c.FoodName, meal)
	if !ok {
		return failed(fmt.Errorf("%w: %q in meal %q", ErrNotFound, c.FoodName, meal.Name),
			"Could not find %s in %s", c.FoodName, meal.Name)
	}
	if err := v.a.store.RemoveFoodFromMeal(v.ctx, mf.ID); err != nil {
		return failed(classify(err), "Could not remove %s from %s", mf.Food.Name, meal.Name)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Removed %s from %s", mf.Food.Name, meal.Name),
		Record:  &Record{Removed: []store.MealFood{mf}},
	}
}

func (v applyVisitor) VisitModifyQuantity(c suggestion.ModifyQuantity) Result {
	if res, ok := validateFood(c.FoodName, c.TargetMeal, c.QuantityGrams); !ok {
		return res
	}
	meal, res, ok := v.a.meal(v.ctx, c.TargetMeal)
	if !ok {
		return res
	}
	mf, ok := findMealFood(c.FoodName, meal)
	if !ok {
		return failed(fmt.Errorf("%w: %q in meal %q", ErrNotFound, c.FoodName, meal.Name),
			"Could not find %s in %s", c.FoodName, meal.Name)
	}
	updated, err := v.a.store.UpdateFoodQuantity(v.ctx, mf.ID, c.QuantityGrams)
	if err != nil {
		return failed(classify(err), "Could not change %s in %s", mf.Food.Name, meal.Name)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Changed %s to %s in %s", mf.Food.Name, suggestion.FormatGrams(updated.QuantityGrams), meal.Name),
		Record:  &Record{Quantities: []QuantityChange{{MealFoodID: mf.ID, Previous: mf.QuantityGrams}}},
	}
}

func (v applyVisitor) VisitAddMeal(c suggestion.AddMeal) Result {
	name := strings.TrimSpace(c.MealName)
	if name == "" {
		return failed(ErrValidation, "The new meal has no name")
	}
	meal, err := v.a.store.AddMeal(v.ctx, v.a.planID, name, store.DefaultMealEmoji)
	if err != nil {
		return failed(classify(err), "Could not create meal %s", name)
	}

	rec := &Record{CreatedMealID: meal.ID}
	added := 0
	for _, f := range c.Foods {
		if _, ok := validateFood(f.Name, meal.Name, f.QuantityGrams); !ok {
			logger.Warn("skipping invalid food for new meal", zap.String("meal", meal.Name), zap.String("food", f.Name))
			continue
		}
		if _, err := v.a.addFood(v.ctx, meal, f.Name, f.QuantityGrams, rec); err != nil {
			logger.Warn("failed to add food to new meal",
				zap.String("meal", meal.Name), zap.String("food", f.Name), zap.Error(err))
			continue
		}
		added++
	}

	msg := fmt.Sprintf("Created meal %s", meal.Name)
	if len(c.Foods) > 0 {
		msg += fmt.Sprintf(" with %d of %d foods", added, len(c.Foods))
	}
	return Result{Success: true, Message: msg, Record: rec}
}

func validateFood(food, meal string, quantity float64) (Result, bool) {
	switch {
	case strings.TrimSpace(food) == "":
		return failed(ErrValidation, "The food name is missing"), false
	case strings.TrimSpace(meal) == "":
		return failed(ErrValidation, "No meal was given for %s", food), false
	case quantity <= 0:
		return failed(ErrValidation, "The amount of %s must be positive", food), false
	}
	return Result{}, true
}

// meal loads the plan and finds the target meal by case-insensitive name.
func (a *Applier) meal(ctx context.Context, name string) (*store.Meal, Result, bool) {
	plan, err := a.store.GetMealPlan(ctx, a.planID)
	if err != nil {
		return nil, failed(classify(err), "Could not load the meal plan"), false
	}
	meal := plan.FindMeal(name)
	if meal == nil {
		return nil, failed(fmt.Errorf("%w: meal %q", ErrNotFound, name), "Meal %s not found", name), false
	}
	return meal, Result{}, true
}

// addFood attaches a food to a meal, taking it from the catalog when a name
// matches and asking the catalog to estimate nutrition otherwise.
func (a *Applier) addFood(ctx context.Context, meal *store.Meal, name string, grams float64, rec *Record) (*store.MealFood, error) {
	foods, err := a.catalog.ListFoods(ctx)
	if err != nil {
		return nil, classify(err)
	}

	var mf *store.MealFood
	if food, ok := findCatalogFood(name, foods); ok {
		mf, err = a.store.AddFoodToMeal(ctx, meal.ID, food.ID, grams)
	} else {
		var n store.Nutrition
		n, err = a.catalog.GenerateMacros(ctx, name)
		if err != nil {
			return nil, classify(err)
		}
		mf, err = a.store.AddDirectFoodToMeal(ctx, meal.ID, displayName(name), grams, n)
	}
	if err != nil {
		return nil, classify(err)
	}
	rec.CreatedMealFoods = append(rec.CreatedMealFoods, mf.ID)
	return mf, nil
}

func displayName(name string) string {
	return cases.Title(language.English).String(strings.TrimSpace(name))
}

// revert undoes rec, newest effects first: quantities, created foods, the
// created meal, then removed foods are attached again.
func (a *Applier) revert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	for len(rec.Quantities) > 0 {
		q := rec.Quantities[len(rec.Quantities)-1]
		if _, err := a.store.UpdateFoodQuantity(ctx, q.MealFoodID, q.Previous); err != nil {
			return err
		}
		rec.Quantities = rec.Quantities[:len(rec.Quantities)-1]
	}
	for len(rec.CreatedMealFoods) > 0 {
		id := rec.CreatedMealFoods[len(rec.CreatedMealFoods)-1]
		if err := a.store.RemoveFoodFromMeal(ctx, id); err != nil {
			return err
		}
		rec.CreatedMealFoods = rec.CreatedMealFoods[:len(rec.CreatedMealFoods)-1]
	}
	if rec.CreatedMealID != "" {
		if err := a.store.DeleteMeal(ctx, rec.CreatedMealID); err != nil {
			return err
		}
		rec.CreatedMealID = ""
	}
	for len(rec.Removed) > 0 {
		mf := rec.Removed[len(rec.Removed)-1]
		if err := a.reattach(ctx, mf); err != nil {
			return err
		}
		rec.Removed = rec.Removed[:len(rec.Removed)-1]
	}
	return nil
}

// reattach puts a removed food back under its original ID, so records made
// before the removal still point at it.
func (a *Applier) reattach(ctx context.Context, mf store.MealFood) error {
	_, err := a.store.RestoreMealFood(ctx, mf)
	return err
}
