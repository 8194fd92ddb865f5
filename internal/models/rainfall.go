package models

import "time"

// TimePoint is a single rain-rate sample (mm/hour) anchored to a UTC instant.
type TimePoint struct {
	Time  time.Time
	Value float64
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// BoundingBox is the coverage area shown around a pump house.
type BoundingBox struct {
	SouthWest LatLng
	NorthEast LatLng
}

// BoxAround synthesizes a square box of the given radius (degrees) around p.
func BoxAround(p LatLng, radius float64) BoundingBox {
	return BoundingBox{
		SouthWest: LatLng{Lat: p.Lat - radius, Lng: p.Lng - radius},
		NorthEast: LatLng{Lat: p.Lat + radius, Lng: p.Lng + radius},
	}
}

// LocationIdentity names a pump house and its representative coordinate.
type LocationIdentity struct {
	Name     string
	Location LatLng
}

// IntensityBuckets counts observed samples per rain-intensity class.
type IntensityBuckets struct {
	NoRain    int `json:"no_rain"`
	Light     int `json:"light"`
	Moderate  int `json:"moderate"`
	Heavy     int `json:"heavy"`
	VeryHeavy int `json:"very_heavy"`
}

// Total returns the number of samples counted across all buckets.
func (b IntensityBuckets) Total() int {
	return b.NoRain + b.Light + b.Moderate + b.Heavy + b.VeryHeavy
}

// IntensitySummary is derived per request from the observed part of a series.
type IntensitySummary struct {
	TotalAccumulation float64          `json:"total_accumulation"`
	Buckets           IntensityBuckets `json:"intensity_count"`
}
