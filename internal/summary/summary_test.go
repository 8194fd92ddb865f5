package summary

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
)

func TestClassify_InclusiveUpperBounds(t *testing.T) {
	tests := []struct {
		value float64
		want  Intensity
	}{
		{0, IntensityNoRain},
		{0.1, IntensityNoRain},
		{0.11, IntensityLight},
		{5, IntensityLight},
		{5.01, IntensityModerate},
		{10, IntensityModerate},
		{10.5, IntensityHeavy},
		{20, IntensityHeavy},
		{20.01, IntensityVeryHeavy},
		{150, IntensityVeryHeavy},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Classify(tc.value), "Classify(%v)", tc.value)
	}
}

func TestSummarize_Scenario(t *testing.T) {
	base := time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC)
	got := Summarize([]models.TimePoint{
		{Time: base, Value: 3.0},
		{Time: base.Add(4 * time.Hour), Value: 12.0},
	})
	assert.Equal(t, 15.0, got.TotalAccumulation)
	assert.Equal(t, models.IntensityBuckets{Light: 1, Heavy: 1}, got.Buckets)
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)
	assert.Zero(t, got.TotalAccumulation)
	assert.Zero(t, got.Buckets.Total())
}

func TestSummarize_BucketsAreExhaustiveAndTotalRounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(300)
		points := make([]models.TimePoint, n)
		sum := 0.0
		for i := range points {
			v := rng.Float64() * 40
			points[i] = models.TimePoint{Value: v}
			sum += v
		}
		got := Summarize(points)
		assert.Equal(t, n, got.Buckets.Total())
		assert.LessOrEqual(t, math.Abs(got.TotalAccumulation-sum), 0.005+1e-9)
	}
}

func TestSummarize_RoundsToTwoDecimals(t *testing.T) {
	got := Summarize([]models.TimePoint{{Value: 0.1}, {Value: 0.2}, {Value: 1.234}})
	assert.Equal(t, 1.53, got.TotalAccumulation)
	assert.Equal(t, 1, got.Buckets.NoRain)
	assert.Equal(t, 2, got.Buckets.Light)
}
