package apply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

type testCatalog struct {
	store   *store.SQLiteStore
	macros  map[string]store.Nutrition
	listErr error
}

func (c *testCatalog) ListFoods(ctx context.Context) ([]store.Food, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.store.ListFoods(ctx)
}

func (c *testCatalog) GenerateMacros(_ context.Context, name string) (store.Nutrition, error) {
	n, ok := c.macros[strings.ToLower(name)]
	if !ok {
		return store.Nutrition{}, errors.New("model unavailable")
	}
	return n, nil
}

// flakyStore fails removals while failRemove is set.
type flakyStore struct {
	*store.SQLiteStore
	failRemove bool
}

func (f *flakyStore) RemoveFoodFromMeal(ctx context.Context, mealFoodID string) error {
	if f.failRemove {
		return errors.New("database is locked")
	}
	return f.SQLiteStore.RemoveFoodFromMeal(ctx, mealFoodID)
}

type fixture struct {
	store   *flakyStore
	catalog *testCatalog
	applier *Applier
	planID  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	planID, err := s.Seed(context.Background())
	require.NoError(t, err)

	fs := &flakyStore{SQLiteStore: s}
	catalog := &testCatalog{store: s, macros: map[string]store.Nutrition{
		"tofu": {CaloriesPer100g: 76, ProteinPer100g: 8, CarbsPer100g: 1.9, FatPer100g: 4.8},
	}}
	return &fixture{store: fs, catalog: catalog, applier: New(fs, catalog, planID), planID: planID}
}

func (f *fixture) plan(t *testing.T) *store.MealPlan {
	t.Helper()
	plan, err := f.store.GetMealPlan(context.Background(), f.planID)
	require.NoError(t, err)
	return plan
}

func foodNames(m *store.Meal) []string {
	names := make([]string, 0, len(m.Foods))
	for _, mf := range m.Foods {
		names = append(names, mf.Food.Name)
	}
	return names
}

func TestApplyChange_AddFromCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "lunch", FoodName: "broccoli", QuantityGrams: 80})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Added 80g Broccoli to Lunch", res.Message)

	lunch := f.plan(t).FindMeal("Lunch")
	assert.Contains(t, foodNames(lunch), "Broccoli")
	undo, redo := f.applier.History().Sizes()
	assert.Equal(t, 1, undo)
	assert.Zero(t, redo)
}

func TestApplyChange_AddUnknownFoodGeneratesMacros(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Dinner", FoodName: "tofu", QuantityGrams: 150})
	require.True(t, res.Success, res.Message)

	dinner := f.plan(t).FindMeal("Dinner")
	last := dinner.Foods[len(dinner.Foods)-1]
	assert.Equal(t, "Tofu", last.Food.Name)
	assert.InDelta(t, 114, last.Macros().Calories, 1e-9)

	res = f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Dinner", FoodName: "dragon fruit", QuantityGrams: 100})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUpstream)
	assert.Equal(t, "Could not add dragon fruit to Dinner", res.Message)
}

func TestApplyChange_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, c := range []suggestion.Change{
		suggestion.Add{TargetMeal: "", FoodName: "apple", QuantityGrams: 100},
		suggestion.Add{TargetMeal: "Lunch", FoodName: " ", QuantityGrams: 100},
		suggestion.ModifyQuantity{TargetMeal: "Lunch", FoodName: "quinoa", QuantityGrams: 0},
		suggestion.Replace{TargetMeal: "Lunch", OriginalFoodName: "", FoodName: "rice", QuantityGrams: 100},
		suggestion.AddMeal{MealName: ""},
	} {
		res := f.applier.ApplyChange(ctx, c)
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, ErrValidation, "%#v", c)
	}
	assert.False(t, f.applier.History().CanUndo())
}

func TestApplyChange_MissingMealOrFood(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Brunch", FoodName: "apple"})
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Equal(t, "Meal Brunch not found", res.Message)

	res = f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Snack", FoodName: "cheesecake"})
	assert.ErrorIs(t, res.Err, ErrNotFound)
	assert.Equal(t, "Could not find cheesecake in Snack", res.Message)
}

func TestApplyChange_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.listErr = errors.New("connection reset")

	res := f.applier.ApplyChange(context.Background(), suggestion.Add{TargetMeal: "Lunch", FoodName: "apple", QuantityGrams: 100})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUpstream)
	assert.NotContains(t, res.Message, "connection reset")
}

func TestApplyMultiple_ContinuesPastFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := f.applier.ApplyMultiple(ctx, []suggestion.Change{
		suggestion.Add{TargetMeal: "Lunch", FoodName: "broccoli", QuantityGrams: 80},
		suggestion.Add{TargetMeal: "Brunch", FoodName: "apple", QuantityGrams: 100},
		suggestion.Delete{TargetMeal: "Snack", FoodName: "almonds"},
	})

	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 3, batch.TotalCount)
	require.Len(t, batch.Results, 3)
	assert.True(t, batch.Results[0].Success)
	assert.False(t, batch.Results[1].Success)
	assert.ErrorIs(t, batch.Results[1].Err, ErrNotFound)
	assert.True(t, batch.Results[2].Success)

	plan := f.plan(t)
	assert.Contains(t, foodNames(plan.FindMeal("Lunch")), "Broccoli")
	assert.NotContains(t, foodNames(plan.FindMeal("Snack")), "Almonds")

	undo, _ := f.applier.History().Sizes()
	assert.Equal(t, 1, undo)
}

func TestUndo_AddRestoresTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.plan(t)
	lunchBefore := before.FindMeal("Lunch")

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Lunch", FoodName: "avocado", QuantityGrams: 50})
	require.True(t, res.Success)
	require.Len(t, res.Record.CreatedMealFoods, 1)
	created := res.Record.CreatedMealFoods[0]

	undo := f.applier.Undo(ctx)
	require.True(t, undo.Success, undo.Message)

	after := f.plan(t)
	lunchAfter := after.FindMeal("Lunch")
	assert.Equal(t, lunchBefore.Totals(), lunchAfter.Totals())
	assert.Equal(t, before.Totals(), after.Totals())
	assert.Equal(t, foodNames(lunchBefore), foodNames(lunchAfter))
	for _, mf := range lunchAfter.Foods {
		assert.NotEqual(t, created, mf.ID)
	}

	foods, err := f.store.ListFoods(ctx)
	require.NoError(t, err)
	assert.Len(t, foods, len(store.DefaultFoods))
}

func TestUndo_RestoresDeleteModifyAndReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.plan(t)

	batch := f.applier.ApplyMultiple(ctx, []suggestion.Change{
		suggestion.Delete{TargetMeal: "Snack", FoodName: "almonds"},
		suggestion.ModifyQuantity{TargetMeal: "Breakfast", FoodName: "granola", QuantityGrams: 30},
		suggestion.Replace{TargetMeal: "Dinner", OriginalFoodName: "salmon", FoodName: "tofu", QuantityGrams: 150},
	})
	require.Equal(t, 3, batch.SuccessCount)

	mid := f.plan(t)
	assert.NotContains(t, foodNames(mid.FindMeal("Dinner")), "Salmon Fillet")
	assert.Contains(t, foodNames(mid.FindMeal("Dinner")), "Tofu")

	res := f.applier.Undo(ctx)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Undid 3 changes", res.Message)

	after := f.plan(t)
	assert.InDelta(t, before.Totals().Calories, after.Totals().Calories, 1e-9)
	assert.InDelta(t, before.Totals().Protein, after.Totals().Protein, 1e-9)
	for _, name := range []string{"Breakfast", "Snack", "Dinner"} {
		assert.ElementsMatch(t, foodNames(before.FindMeal(name)), foodNames(after.FindMeal(name)), name)
		assert.InDelta(t, before.FindMeal(name).Totals().Calories, after.FindMeal(name).Totals().Calories, 1e-9, name)
	}
}

func TestUndo_FailureKeepsEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Snack", FoodName: "apple", QuantityGrams: 100})
	require.True(t, res.Success)

	f.store.failRemove = true
	undo := f.applier.Undo(ctx)
	assert.False(t, undo.Success)
	assert.Equal(t, "Failed to undo", undo.Message)
	assert.ErrorIs(t, undo.Err, ErrUpstream)
	undoN, redoN := f.applier.History().Sizes()
	assert.Equal(t, 1, undoN)
	assert.Zero(t, redoN)

	f.store.failRemove = false
	undo = f.applier.Undo(ctx)
	require.True(t, undo.Success, undo.Message)
	assert.Len(t, f.plan(t).FindMeal("Snack").Foods, 2)
}

func mealFoodIDs(m *store.Meal) []string {
	ids := make([]string, 0, len(m.Foods))
	for _, mf := range m.Foods {
		ids = append(ids, mf.ID)
	}
	return ids
}

func TestUndo_AddThenDeleteRestoresMeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lunchBefore := f.plan(t).FindMeal("Lunch")
	require.Len(t, lunchBefore.Foods, 4)

	require.True(t, f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Lunch", FoodName: "broccoli", QuantityGrams: 80}).Success)
	require.True(t, f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Lunch", FoodName: "broccoli"}).Success)

	first := f.applier.Undo(ctx)
	require.True(t, first.Success, first.Message)
	assert.Contains(t, foodNames(f.plan(t).FindMeal("Lunch")), "Broccoli")

	second := f.applier.Undo(ctx)
	require.True(t, second.Success, second.Message)

	lunchAfter := f.plan(t).FindMeal("Lunch")
	assert.Equal(t, foodNames(lunchBefore), foodNames(lunchAfter))
	assert.Equal(t, lunchBefore.Totals(), lunchAfter.Totals())
	undoN, redoN := f.applier.History().Sizes()
	assert.Zero(t, undoN)
	assert.Equal(t, 2, redoN)
}

func TestUndo_ChainReturnsToStartingPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.plan(t)

	added := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Lunch", FoodName: "broccoli", QuantityGrams: 100})
	require.True(t, added.Success)
	createdID := added.Record.CreatedMealFoods[0]
	require.True(t, f.applier.ApplyChange(ctx, suggestion.ModifyQuantity{TargetMeal: "Lunch", FoodName: "broccoli", QuantityGrams: 200}).Success)
	require.True(t, f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Lunch", FoodName: "broccoli"}).Success)

	require.True(t, f.applier.Undo(ctx).Success)
	restored, ok := findMealFood("broccoli", f.plan(t).FindMeal("Lunch"))
	require.True(t, ok)
	assert.Equal(t, createdID, restored.ID)
	assert.Equal(t, 200.0, restored.QuantityGrams)

	res := f.applier.Undo(ctx)
	require.True(t, res.Success, res.Message)
	restored, ok = findMealFood("broccoli", f.plan(t).FindMeal("Lunch"))
	require.True(t, ok)
	assert.Equal(t, 100.0, restored.QuantityGrams)

	res = f.applier.Undo(ctx)
	require.True(t, res.Success, res.Message)
	assert.False(t, f.applier.Undo(ctx).Success)

	after := f.plan(t)
	assert.Equal(t, before.Totals(), after.Totals())
	for i := range before.Meals {
		assert.Equal(t, foodNames(&before.Meals[i]), foodNames(&after.Meals[i]), before.Meals[i].Name)
		assert.Equal(t, mealFoodIDs(&before.Meals[i]), mealFoodIDs(&after.Meals[i]), before.Meals[i].Name)
	}
	undoN, redoN := f.applier.History().Sizes()
	assert.Zero(t, undoN)
	assert.Equal(t, 3, redoN)
}

func TestUndo_DeleteKeepsPositionAndID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.plan(t).FindMeal("Breakfast")

	require.True(t, f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Breakfast", FoodName: "mixed berries"}).Success)
	require.True(t, f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Breakfast", FoodName: "apple", QuantityGrams: 100}).Success)
	require.True(t, f.applier.Undo(ctx).Success)
	require.True(t, f.applier.Undo(ctx).Success)

	after := f.plan(t).FindMeal("Breakfast")
	assert.Equal(t, []string{"Greek Yogurt", "Mixed Berries", "Granola", "Honey"}, foodNames(after))
	assert.Equal(t, mealFoodIDs(before), mealFoodIDs(after))
}

func TestUndo_MissingCreatedFoodFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Snack", FoodName: "avocado", QuantityGrams: 40})
	require.True(t, res.Success)
	require.NoError(t, f.store.RemoveFoodFromMeal(ctx, res.Record.CreatedMealFoods[0]))

	undo := f.applier.Undo(ctx)
	assert.False(t, undo.Success)
	assert.ErrorIs(t, undo.Err, ErrNotFound)
	undoN, _ := f.applier.History().Sizes()
	assert.Equal(t, 1, undoN)
}

func TestRedo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.applier.Undo(ctx).Success)
	assert.False(t, f.applier.Redo(ctx).Success)

	require.True(t, f.applier.ApplyChange(ctx, suggestion.Delete{TargetMeal: "Breakfast", FoodName: "honey"}).Success)
	require.True(t, f.applier.Undo(ctx).Success)
	assert.Contains(t, foodNames(f.plan(t).FindMeal("Breakfast")), "Honey")
	assert.True(t, f.applier.History().CanRedo())

	redo := f.applier.Redo(ctx)
	require.True(t, redo.Success, redo.Message)
	assert.Equal(t, "Redid removed Honey from Breakfast", redo.Message)
	assert.NotContains(t, foodNames(f.plan(t).FindMeal("Breakfast")), "Honey")

	// A new change invalidates redo.
	require.True(t, f.applier.Undo(ctx).Success)
	require.True(t, f.applier.History().CanRedo())
	require.True(t, f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Lunch", FoodName: "apple", QuantityGrams: 100}).Success)
	assert.False(t, f.applier.History().CanRedo())
}

func TestAddMeal_ToleratesFoodFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.AddMeal{MealName: "Post Workout", Foods: []suggestion.FoodPortion{
		{Name: "greek yogurt", QuantityGrams: 150},
		{Name: "mystery powder", QuantityGrams: 30},
	}})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Created meal Post Workout with 1 of 2 foods", res.Message)

	plan := f.plan(t)
	meal := plan.FindMeal("post workout")
	require.NotNil(t, meal)
	assert.Equal(t, store.DefaultMealEmoji, meal.Emoji)
	assert.Equal(t, 4, meal.OrderIndex)
	assert.Equal(t, []string{"Greek Yogurt"}, foodNames(meal))

	require.True(t, f.applier.Undo(ctx).Success)
	assert.Nil(t, f.plan(t).FindMeal("Post Workout"))
}

func TestReplace_FailedAddRestoresOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.applier.ApplyChange(ctx, suggestion.Replace{TargetMeal: "Dinner", OriginalFoodName: "broccoli", FoodName: "romanesco", QuantityGrams: 100})
	assert.False(t, res.Success)
	assert.Contains(t, foodNames(f.plan(t).FindMeal("Dinner")), "Broccoli")
	assert.False(t, f.applier.History().CanUndo())
}

func TestMatchName_TieBreak(t *testing.T) {
	names := []string{"Brown Rice", "Fried Rice", "Rice"}
	assert.Equal(t, 2, matchName("rice", names), "exact match wins")
	assert.Equal(t, 0, matchName("RICE ", names[:2]), "first in catalog order")
	assert.Equal(t, 1, matchName("spicy fried rice bowl", names[:2]), "query contains catalog name")
	assert.Equal(t, -1, matchName("pasta", names))
	assert.Equal(t, -1, matchName("", names))
}

func TestAddFood_CatalogTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Fried Rice", "Brown Rice"} {
		_, err := f.store.CreateFood(ctx, store.Food{Name: name, Nutrition: store.Nutrition{CaloriesPer100g: 150}})
		require.NoError(t, err)
	}

	res := f.applier.ApplyChange(ctx, suggestion.Add{TargetMeal: "Lunch", FoodName: "rice", QuantityGrams: 100})
	require.True(t, res.Success)
	assert.Equal(t, "Added 100g Brown Rice to Lunch", res.Message)
}
