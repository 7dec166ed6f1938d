package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutricopilot.com/mealplan-copilot/internal/store"
)

func TestDecodeMacros(t *testing.T) {
	n, err := DecodeMacros("```json\n{\"calories\": 76, \"protein\": 8, \"carbs\": 1.9, \"fat\": 4.8, \"fiber\": 0.3}\n```")
	require.NoError(t, err)
	assert.Equal(t, 76.0, n.CaloriesPer100g)
	assert.Equal(t, 8.0, n.ProteinPer100g)
	assert.Equal(t, 1.9, n.CarbsPer100g)
	assert.Equal(t, 4.8, n.FatPer100g)
	require.NotNil(t, n.FiberPer100g)
	assert.Equal(t, 0.3, *n.FiberPer100g)
}

func TestDecodeMacros_ClampsImplausibleValues(t *testing.T) {
	n, err := DecodeMacros(`{"calories": 2500, "protein": 140, "carbs": 0, "fat": 120}`)
	require.NoError(t, err)
	assert.Equal(t, 900.0, n.CaloriesPer100g)
	assert.Equal(t, 100.0, n.ProteinPer100g)
	assert.Equal(t, 100.0, n.FatPer100g)
	assert.Nil(t, n.FiberPer100g)
}

func TestDecodeMacros_Rejects(t *testing.T) {
	_, err := DecodeMacros("")
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = DecodeMacros("tofu has about 76 kcal")
	assert.Error(t, err)

	_, err = DecodeMacros(`{"calories": -5, "protein": 1, "carbs": 1, "fat": 1}`)
	assert.Error(t, err)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "High Protein Swaps", cleanTitle("\"High Protein Swaps.\"\n"))
}

type countingGenerator struct{ calls int }

func (g *countingGenerator) GenerateMacros(context.Context, string) (store.Nutrition, error) {
	g.calls++
	return store.Nutrition{CaloriesPer100g: 100}, nil
}

func TestCatalog_RateLimitsEstimates(t *testing.T) {
	gen := &countingGenerator{}
	c := NewCatalog(nil, gen, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GenerateMacros(ctx, "tofu")
		require.NoError(t, err)
	}
	_, err := c.GenerateMacros(ctx, "tempeh")
	assert.ErrorIs(t, err, ErrMacroRateLimited)
	assert.Equal(t, 2, gen.calls)
}
