package bucketing

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

func TestBucketIsDeterministic(t *testing.T) {
	first := Bucket("checkout-button-color", "user-42", "salt-1")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Bucket("checkout-button-color", "user-42", "salt-1"))
	}
}

func TestBucketStaysInUnitInterval(t *testing.T) {
	for i := 0; i < 10000; i++ {
		value := Bucket("exp", fmt.Sprintf("user-%d", i), "salt")
		assert.GreaterOrEqual(t, value, 0.0)
		assert.Less(t, value, 1.0)
	}
}

func TestBucketDependsOnAllInputs(t *testing.T) {
	base := Bucket("exp", "user-1", "salt")
	assert.NotEqual(t, base, Bucket("other-exp", "user-1", "salt"))
	assert.NotEqual(t, base, Bucket("exp", "user-2", "salt"))
	assert.NotEqual(t, base, Bucket("exp", "user-1", "other-salt"))
}

func twoVariantExperiment(allocation float64) *domain.Experiment {
	return &domain.Experiment{
		Id:     "exp-1",
		Key:    "checkout-button-color",
		Status: domain.ExperimentRunning,
		Salt:   "salt-1",
		Variants: []domain.Variant{
			{Id: "A", Weight: 0.5},
			{Id: "B", Weight: 0.5},
		},
		TrafficAllocationPercent: allocation,
	}
}

func TestVariantForWeightFidelity(t *testing.T) {
	experiment := twoVariantExperiment(100)

	counts := map[string]int{}
	n := 100000
	for i := 0; i < n; i++ {
		variantId, ok := VariantFor(experiment, fmt.Sprintf("user-%d", i))
		require.True(t, ok)
		counts[variantId]++
	}

	// 50/50 split within 1% of the population.
	assert.InDelta(t, n/2, counts["A"], float64(n)*0.01)
	assert.InDelta(t, n/2, counts["B"], float64(n)*0.01)
}

func TestVariantForTrafficAllocation(t *testing.T) {
	experiment := twoVariantExperiment(30)

	participants := 0
	n := 100000
	for i := 0; i < n; i++ {
		if _, ok := VariantFor(experiment, fmt.Sprintf("user-%d", i)); ok {
			participants++
		}
	}

	assert.InDelta(t, float64(n)*0.3, float64(participants), float64(n)*0.01)
}

func TestVariantForZeroAllocationExcludesEveryone(t *testing.T) {
	experiment := twoVariantExperiment(0)
	for i := 0; i < 1000; i++ {
		_, ok := VariantFor(experiment, fmt.Sprintf("user-%d", i))
		assert.False(t, ok)
	}
}

func TestVariantForNeverSelectsZeroWeightVariant(t *testing.T) {
	experiment := &domain.Experiment{
		Key:  "exp",
		Salt: "salt",
		Variants: []domain.Variant{
			{Id: "A", Weight: 1},
			{Id: "B", Weight: 0},
		},
		TrafficAllocationPercent: 100,
	}
	for i := 0; i < 10000; i++ {
		variantId, ok := VariantFor(experiment, fmt.Sprintf("user-%d", i))
		require.True(t, ok)
		assert.Equal(t, "A", variantId)
	}
}

func TestVariantForAllZeroWeightsExcludesEveryone(t *testing.T) {
	experiment := &domain.Experiment{
		Key:  "exp",
		Salt: "salt",
		Variants: []domain.Variant{
			{Id: "A", Weight: 0},
			{Id: "B", Weight: 0},
		},
		TrafficAllocationPercent: 100,
	}
	_, ok := VariantFor(experiment, "user-1")
	assert.False(t, ok)
}

func TestVariantForIndependentOfVariantSliceOrder(t *testing.T) {
	forward := &domain.Experiment{
		Key:  "exp",
		Salt: "salt",
		Variants: []domain.Variant{
			{Id: "A", Weight: 0.3},
			{Id: "B", Weight: 0.7},
		},
		TrafficAllocationPercent: 100,
	}
	reversed := &domain.Experiment{
		Key:  "exp",
		Salt: "salt",
		Variants: []domain.Variant{
			{Id: "B", Weight: 0.7},
			{Id: "A", Weight: 0.3},
		},
		TrafficAllocationPercent: 100,
	}

	for i := 0; i < 1000; i++ {
		userId := fmt.Sprintf("user-%d", i)
		forwardVariant, forwardOk := VariantFor(forward, userId)
		reversedVariant, reversedOk := VariantFor(reversed, userId)
		require.Equal(t, forwardOk, reversedOk)
		assert.Equal(t, forwardVariant, reversedVariant)
	}
}

func TestVariantForUnnormalizedWeights(t *testing.T) {
	// Weights 1/3 should behave identically to 0.25/0.75.
	experiment := &domain.Experiment{
		Key:  "exp",
		Salt: "salt",
		Variants: []domain.Variant{
			{Id: "A", Weight: 1},
			{Id: "B", Weight: 3},
		},
		TrafficAllocationPercent: 100,
	}

	counts := map[string]int{}
	n := 100000
	for i := 0; i < n; i++ {
		variantId, ok := VariantFor(experiment, fmt.Sprintf("user-%d", i))
		require.True(t, ok)
		counts[variantId]++
	}
	assert.InDelta(t, float64(n)*0.25, float64(counts["A"]), float64(n)*0.01)
	assert.InDelta(t, float64(n)*0.75, float64(counts["B"]), float64(n)*0.01)
}

func TestBucketMatchesVariantBoundary(t *testing.T) {
	// The rescaled bucket value of a participating user matches the variant
	// VariantFor picks, so the two functions can't drift apart.
	experiment := twoVariantExperiment(100)
	for i := 0; i < 1000; i++ {
		userId := fmt.Sprintf("user-%d", i)
		value := Bucket(experiment.Key, userId, experiment.Salt)
		variantId, ok := VariantFor(experiment, userId)
		require.True(t, ok)
		if value < 0.5-1e-9 {
			assert.Equal(t, "A", variantId)
		} else if value > 0.5+1e-9 {
			assert.Equal(t, "B", variantId)
		}
	}
}

func TestBucketTopOfRange(t *testing.T) {
	// Even buckets arbitrarily close to 1 must select some variant at 100%
	// allocation with positive weights.
	experiment := twoVariantExperiment(100)
	maxSeen := 0.0
	for i := 0; i < 100000; i++ {
		userId := fmt.Sprintf("user-%d", i)
		value := Bucket(experiment.Key, userId, experiment.Salt)
		maxSeen = math.Max(maxSeen, value)
		_, ok := VariantFor(experiment, userId)
		require.True(t, ok)
	}
	assert.Greater(t, maxSeen, 0.999)
}
