package source

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
)

const forecastPrefix = "prediction"

// NormalizeName lowercases s and drops every rune that is not a letter or digit.
// It is the single matching key used both for store-side filters and for
// in-process filtering, so "Pompa Ancol (Utara)" and "pompa-ancol utara" match.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchesName reports whether stored contains query after normalization.
// An empty stored name matches: the record is already scoped to the location.
func MatchesName(stored, query string) bool {
	if strings.TrimSpace(stored) == "" {
		return true
	}
	return strings.Contains(NormalizeName(stored), NormalizeName(query))
}

// NamePattern builds a case-insensitive regular expression that matches the
// same stored names MatchesName accepts: the normalized query characters in
// order, with any run of separators allowed between them.
func NamePattern(query string) string {
	norm := NormalizeName(query)
	if norm == "" {
		return ""
	}
	parts := make([]string, 0, len(norm))
	for _, r := range norm {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return strings.Join(parts, `[^\p{L}\p{N}]*`)
}

// CollectionName maps a display name to its observation collection:
// lowercase, non-alphanumerics replaced by "_", runs collapsed.
func CollectionName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return b.String()
}

// ForecastCollectionName maps a display name to its forecast collection.
func ForecastCollectionName(name string) string {
	return forecastPrefix + "_" + CollectionName(name)
}

// DayKeys lists the local calendar days overlapping [start, end], padded by one
// day on each side to tolerate boundary slop in how buckets were written.
func DayKeys(start, end time.Time) []string {
	if end.Before(start) {
		start, end = end, start
	}
	first := timewindow.LocalMidnight(start).AddDate(0, 0, -1)
	last := timewindow.LocalMidnight(end).AddDate(0, 0, 1)
	var keys []string
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		keys = append(keys, day.Format(timewindow.DateLayout))
	}
	return keys
}

// SortPoints orders points by instant, keeping the original order for ties.
func SortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
}

// Flatten normalizes a set of records into one ascending point list.
func Flatten[R Record](records []R) ([]Point, int, error) {
	var all []Point
	skipped := 0
	for _, rec := range records {
		pts, n, err := rec.Points()
		if err != nil {
			return nil, skipped, err
		}
		skipped += n
		all = append(all, pts...)
	}
	SortPoints(all)
	return all, skipped, nil
}
