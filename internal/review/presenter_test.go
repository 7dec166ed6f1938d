package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutricopilot.com/mealplan-copilot/internal/apply"
	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

type fakeApplier struct {
	mu      sync.Mutex
	fail    map[string]bool
	applied []string
	started chan struct{}
	hold    chan struct{}
}

func (f *fakeApplier) ApplyChange(_ context.Context, c suggestion.Change) apply.Result {
	if f.hold != nil {
		f.started <- struct{}{}
		<-f.hold
	}
	desc := Describe(c)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[desc] {
		return apply.Result{Message: "Could not " + desc, Err: apply.ErrNotFound}
	}
	f.applied = append(f.applied, desc)
	return apply.Result{Success: true, Message: desc}
}

func (f *fakeApplier) ApplyMultiple(ctx context.Context, changes []suggestion.Change) apply.BatchResult {
	batch := apply.BatchResult{TotalCount: len(changes)}
	for _, c := range changes {
		res := f.ApplyChange(ctx, c)
		if res.Success {
			batch.SuccessCount++
		}
		batch.Results = append(batch.Results, res)
	}
	return batch
}

func (f *fakeApplier) Undo(context.Context) apply.Result {
	return apply.Result{Message: "Nothing to undo"}
}

func (f *fakeApplier) Redo(context.Context) apply.Result {
	return apply.Result{Message: "Nothing to redo"}
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notices[len(r.notices)-1]
}

func threeChanges() suggestion.Parsed {
	return suggestion.Parsed{
		Changes: []suggestion.Change{
			suggestion.Add{Meta: suggestion.Meta{Confidence: 1}, TargetMeal: "Lunch", FoodName: "broccoli", QuantityGrams: 80},
			suggestion.Delete{Meta: suggestion.Meta{Confidence: 0.7}, TargetMeal: "Snack", FoodName: "almonds"},
			suggestion.ModifyQuantity{Meta: suggestion.Meta{Confidence: 0.5}, TargetMeal: "Breakfast", FoodName: "granola", QuantityGrams: 30},
		},
		OverallConfidence: 0.7333,
	}
}

func TestPresent(t *testing.T) {
	rec := &recorder{}
	p := NewPresenter(&fakeApplier{}, rec)

	_, ok := p.Present(suggestion.Parsed{Changes: []suggestion.Change{}})
	assert.False(t, ok)
	assert.Empty(t, p.Active())
	assert.Empty(t, rec.notices)

	view, ok := p.Present(threeChanges())
	require.True(t, ok)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, StatePending, view.State)
	assert.True(t, view.ShowApplyAll)
	require.Len(t, view.Items, 3)

	assert.Equal(t, "Add 80g broccoli to Lunch", view.Items[0].Description)
	assert.Equal(t, LabelHigh, view.Items[0].ConfidenceLabel)
	assert.Equal(t, suggestion.KindDelete, view.Items[1].Kind)
	assert.Equal(t, LabelMedium, view.Items[1].ConfidenceLabel)
	assert.Equal(t, LabelLow, view.Items[2].ConfidenceLabel)

	assert.Equal(t, Notice{Event: EventRendered, UnitID: view.ID, Success: true, Message: "3 suggested change(s)"}, rec.last())
	assert.Len(t, p.Active(), 1)
}

func TestPresent_SingleChangeHasNoApplyAll(t *testing.T) {
	p := NewPresenter(&fakeApplier{}, nil)
	view, ok := p.Present(suggestion.Parsed{Changes: []suggestion.Change{
		suggestion.Delete{TargetMeal: "Snack", FoodName: "apple"},
	}})
	require.True(t, ok)
	assert.False(t, view.ShowApplyAll)
}

func TestApplyAll_SkipsAppliedChanges(t *testing.T) {
	applier := &fakeApplier{}
	rec := &recorder{}
	p := NewPresenter(applier, rec)
	view, _ := p.Present(threeChanges())
	ctx := context.Background()

	res, v, err := p.Apply(ctx, view.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StatePartiallyApplied, v.State)
	assert.True(t, v.Items[1].Applied)
	assert.True(t, v.ShowApplyAll)

	_, _, err = p.Apply(ctx, view.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	batch, v, err := p.ApplyAll(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.TotalCount)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, StateFullyApplied, v.State)
	assert.False(t, v.ShowApplyAll)

	assert.Equal(t, []string{
		"Remove almonds from Snack",
		"Add 80g broccoli to Lunch",
		"Change granola to 30g in Breakfast",
	}, applier.applied)
	assert.Equal(t, "Applied 2 of 2 changes", rec.last().Message)

	_, _, err = p.ApplyAll(ctx, view.ID)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = p.Apply(ctx, view.ID, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestApplyAll_PartialFailure(t *testing.T) {
	applier := &fakeApplier{fail: map[string]bool{"Remove almonds from Snack": true}}
	rec := &recorder{}
	p := NewPresenter(applier, rec)
	view, _ := p.Present(threeChanges())

	batch, v, err := p.ApplyAll(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, StatePartiallyApplied, v.State)
	assert.False(t, v.Items[1].Applied)
	assert.True(t, v.ShowApplyAll)

	last := rec.last()
	assert.True(t, last.Success)
	assert.Equal(t, "Applied 2 of 3 changes; Could not Remove almonds from Snack", last.Message)

	// the failed change can still be retried on its own
	delete(applier.fail, "Remove almonds from Snack")
	res, v, err := p.Apply(context.Background(), view.ID, 1)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, StateFullyApplied, v.State)
}

func TestApply_FailureIsRelayed(t *testing.T) {
	applier := &fakeApplier{fail: map[string]bool{"Add 80g broccoli to Lunch": true}}
	rec := &recorder{}
	p := NewPresenter(applier, rec)
	view, _ := p.Present(threeChanges())

	res, v, err := p.Apply(context.Background(), view.ID, 0)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, StatePending, v.State)
	assert.Equal(t, Notice{Event: EventApplied, UnitID: view.ID, Success: false, Message: "Could not Add 80g broccoli to Lunch"}, rec.last())
}

func TestDismiss(t *testing.T) {
	rec := &recorder{}
	p := NewPresenter(&fakeApplier{}, rec)
	ctx := context.Background()
	first, _ := p.Present(threeChanges())
	second, _ := p.Present(threeChanges())

	_, _, err := p.Apply(ctx, first.ID, 0)
	require.NoError(t, err)

	v, err := p.Dismiss(first.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDismissed, v.State)
	assert.True(t, v.Items[0].Applied, "applied changes stay applied")
	assert.Equal(t, EventDismissed, rec.last().Event)

	active := p.Active()
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	_, _, err = p.Apply(ctx, first.ID, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = p.Dismiss(first.ID)
	assert.ErrorIs(t, err, ErrClosed)

	got, err := p.Unit(first.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDismissed, got.State)
}

func TestUnknownUnitAndIndex(t *testing.T) {
	p := NewPresenter(&fakeApplier{}, nil)
	view, _ := p.Present(threeChanges())
	ctx := context.Background()

	_, _, err := p.Apply(ctx, "missing", 0)
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, _, err = p.ApplyAll(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = p.Dismiss("missing")
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = p.Unit("missing")
	assert.ErrorIs(t, err, ErrUnknownUnit)

	_, _, err = p.Apply(ctx, view.ID, 3)
	assert.ErrorIs(t, err, ErrUnknownChange)
	_, _, err = p.Apply(ctx, view.ID, -1)
	assert.ErrorIs(t, err, ErrUnknownChange)
}

func TestApply_BusyUnitRejectsActions(t *testing.T) {
	applier := &fakeApplier{started: make(chan struct{}), hold: make(chan struct{})}
	p := NewPresenter(applier, nil)
	view, _ := p.Present(threeChanges())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := p.Apply(ctx, view.ID, 0)
		done <- err
	}()
	<-applier.started

	_, _, err := p.Apply(ctx, view.ID, 1)
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = p.ApplyAll(ctx, view.ID)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = p.Dismiss(view.ID)
	assert.ErrorIs(t, err, ErrBusy)

	got, err := p.Unit(view.ID)
	require.NoError(t, err)
	assert.True(t, got.Busy)

	close(applier.hold)
	require.NoError(t, <-done)

	got, err = p.Unit(view.ID)
	require.NoError(t, err)
	assert.False(t, got.Busy)
	assert.Equal(t, StatePartiallyApplied, got.State)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Replace chicken with 150g tofu in Dinner",
		Describe(suggestion.Replace{TargetMeal: "Dinner", OriginalFoodName: "chicken", FoodName: "tofu", QuantityGrams: 150}))
	assert.Equal(t, "Remove honey from an unspecified meal",
		Describe(suggestion.Delete{FoodName: "honey"}))
	assert.Equal(t, "Create meal Post Workout with 30g whey protein, 100g banana",
		Describe(suggestion.AddMeal{MealName: "Post Workout", Foods: []suggestion.FoodPortion{
			{Name: "whey protein", QuantityGrams: 30}, {Name: "banana", QuantityGrams: 100},
		}}))
	assert.Equal(t, "Create meal Brunch", Describe(suggestion.AddMeal{MealName: "Brunch"}))
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, LabelHigh, ConfidenceLabel(0.8))
	assert.Equal(t, LabelMedium, ConfidenceLabel(0.79))
	assert.Equal(t, LabelMedium, ConfidenceLabel(0.6))
	assert.Equal(t, LabelLow, ConfidenceLabel(0.59))
}

type storeCatalog struct{ *store.SQLiteStore }

func (storeCatalog) GenerateMacros(context.Context, string) (store.Nutrition, error) {
	return store.Nutrition{}, errors.New("no estimator in tests")
}

func TestApplyAll_DoesNotDuplicateAppliedChange(t *testing.T) {
	s, err := store.NewSQLiteStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	planID, err := s.Seed(ctx)
	require.NoError(t, err)

	p := NewPresenter(apply.New(s, storeCatalog{s}, planID), nil)
	view, ok := p.Present(suggestion.Parse("Add 80g broccoli to Lunch\nAdd 50g avocado to Lunch"))
	require.True(t, ok)

	_, _, err = p.Apply(ctx, view.ID, 0)
	require.NoError(t, err)
	batch, v, err := p.ApplyAll(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.TotalCount)
	assert.Equal(t, StateFullyApplied, v.State)

	plan, err := s.GetMealPlan(ctx, planID)
	require.NoError(t, err)
	count := map[string]int{}
	for _, mf := range plan.FindMeal("Lunch").Foods {
		count[mf.Food.Name]++
	}
	assert.Equal(t, 1, count["Broccoli"])
	assert.Equal(t, 1, count["Avocado"])
}

func TestUndo_ReopensAppliedItems(t *testing.T) {
	s, err := store.NewSQLiteStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	planID, err := s.Seed(ctx)
	require.NoError(t, err)

	rec := &recorder{}
	p := NewPresenter(apply.New(s, storeCatalog{s}, planID), rec)
	view, ok := p.Present(suggestion.Parse("Add 80g broccoli to Lunch\nAdd 50g avocado to Lunch"))
	require.True(t, ok)

	_, _, err = p.Apply(ctx, view.ID, 0)
	require.NoError(t, err)
	_, v, err := p.ApplyAll(ctx, view.ID)
	require.NoError(t, err)
	require.Equal(t, StateFullyApplied, v.State)

	res := p.Undo(ctx)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, Notice{Event: EventUndone, UnitID: view.ID, Success: true, Message: res.Message}, rec.last())
	v, err = p.Unit(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePartiallyApplied, v.State)
	assert.True(t, v.Items[0].Applied)
	assert.False(t, v.Items[1].Applied)

	res = p.Undo(ctx)
	require.True(t, res.Success, res.Message)
	v, err = p.Unit(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, v.State)
	assert.False(t, v.Items[0].Applied)

	res = p.Redo(ctx)
	require.True(t, res.Success, res.Message)
	v, err = p.Unit(view.ID)
	require.NoError(t, err)
	assert.True(t, v.Items[0].Applied)
	assert.False(t, v.Items[1].Applied)

	applied, v, err := p.Apply(ctx, view.ID, 1)
	require.NoError(t, err)
	assert.True(t, applied.Success, applied.Message)
	assert.Equal(t, StateFullyApplied, v.State)

	plan, err := s.GetMealPlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grilled Chicken Breast", "Quinoa", "Mixed Vegetables", "Olive Oil", "Broccoli", "Avocado"},
		mealFoodNames(plan.FindMeal("Lunch")))
}

func TestUndo_DismissedUnitStaysDismissed(t *testing.T) {
	s, err := store.NewSQLiteStore("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	planID, err := s.Seed(ctx)
	require.NoError(t, err)

	p := NewPresenter(apply.New(s, storeCatalog{s}, planID), nil)
	view, ok := p.Present(suggestion.Parse("Remove honey from breakfast\nAdd 50g avocado to Lunch"))
	require.True(t, ok)
	_, _, err = p.Apply(ctx, view.ID, 0)
	require.NoError(t, err)
	_, err = p.Dismiss(view.ID)
	require.NoError(t, err)

	require.True(t, p.Undo(ctx).Success)
	v, err := p.Unit(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDismissed, v.State)
	assert.False(t, v.Items[0].Applied)
	assert.False(t, p.Undo(ctx).Success)
}

func mealFoodNames(m *store.Meal) []string {
	names := make([]string, 0, len(m.Foods))
	for _, mf := range m.Foods {
		names = append(names, mf.Food.Name)
	}
	return names
}
