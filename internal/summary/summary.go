// Package summary reduces the observed part of a stitched series into an
// accumulation total and an intensity histogram.
package summary

import (
	"math"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/models"
)

// Inclusive upper bounds (mm/hour) of each intensity class. Anything above
// HeavyMax is very heavy.
const (
	NoRainMax   = 0.1
	LightMax    = 5.0
	ModerateMax = 10.0
	HeavyMax    = 20.0
)

// Intensity names the class a rain rate falls into.
type Intensity string

const (
	IntensityNoRain    Intensity = "no_rain"
	IntensityLight     Intensity = "light"
	IntensityModerate  Intensity = "moderate"
	IntensityHeavy     Intensity = "heavy"
	IntensityVeryHeavy Intensity = "very_heavy"
)

// Classify returns the intensity class for a rain rate.
func Classify(value float64) Intensity {
	switch {
	case value <= NoRainMax:
		return IntensityNoRain
	case value <= LightMax:
		return IntensityLight
	case value <= ModerateMax:
		return IntensityModerate
	case value <= HeavyMax:
		return IntensityHeavy
	default:
		return IntensityVeryHeavy
	}
}

// Summarize sums raw rate values (no unit conversion) and counts each point in
// exactly one bucket. Callers pass observed points only.
func Summarize(observed []models.TimePoint) models.IntensitySummary {
	var out models.IntensitySummary
	total := 0.0
	for _, p := range observed {
		total += p.Value
		switch Classify(p.Value) {
		case IntensityNoRain:
			out.Buckets.NoRain++
		case IntensityLight:
			out.Buckets.Light++
		case IntensityModerate:
			out.Buckets.Moderate++
		case IntensityHeavy:
			out.Buckets.Heavy++
		default:
			out.Buckets.VeryHeavy++
		}
	}
	out.TotalAccumulation = round2(total)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
