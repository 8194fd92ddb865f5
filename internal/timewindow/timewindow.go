// Package timewindow resolves a request's named range or explicit calendar date
// into concrete UTC instants. All day boundaries are computed in the fixed
// reference zone (UTC+7) and converted back to UTC exactly once.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Zone is the fixed reference timezone for every local-midnight and end-of-day calculation.
var Zone = time.FixedZone("WIB", 7*60*60)

// DateLayout is the only accepted explicit-date format.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for malformed dates and unknown range tokens.
var ErrInvalidRange = errors.New("invalid range")

// Preset identifies how a Range was produced. The presentation layer picks the
// response shape from it.
type Preset string

const (
	PresetDate        Preset = "date"
	PresetNow         Preset = "now"
	PresetToday       Preset = "today"
	PresetWeek        Preset = "1w"
	PresetMonth       Preset = "1m"
	PresetTwoMonths   Preset = "2m"
	PresetThreeMonths Preset = "3m"
)

// Presets lists the accepted range tokens in display order.
var Presets = []Preset{PresetNow, PresetToday, PresetWeek, PresetMonth, PresetTwoMonths, PresetThreeMonths}

// Range is a resolved request window. Start and End are inclusive UTC instants.
// A zero Cutover means no cutover: observation and forecast are split at the
// last observed point instead. Now is the instant the range was resolved at;
// nothing after it counts as observed, whatever the stored records claim.
type Range struct {
	Start   time.Time
	End     time.Time
	Cutover time.Time
	Now     time.Time
	Preset  Preset
}

// HasCutover reports whether the range carries an explicit history/forecast boundary.
func (r Range) HasCutover() bool {
	return !r.Cutover.IsZero()
}

// ObservedUntil is the latest instant an observation point may carry:
// min(End, Cutover, Now), with zero Cutover and Now ignored.
func (r Range) ObservedUntil() time.Time {
	until := r.End
	if r.HasCutover() && r.Cutover.Before(until) {
		until = r.Cutover
	}
	if !r.Now.IsZero() && r.Now.Before(until) {
		until = r.Now
	}
	return until
}

// Query is the raw range request. Date takes precedence over Range; both empty means today.
type Query struct {
	Date  string
	Range string
}

// Options tune the presets.
type Options struct {
	// ForwardBuffer extends today and look-back ranges past now to admit near-term forecast.
	ForwardBuffer time.Duration
	// NowSpan is the half-width of the "now" window.
	NowSpan time.Duration
}

// DefaultOptions mirror the values the dashboards were built against.
var DefaultOptions = Options{
	ForwardBuffer: 48 * time.Hour,
	NowSpan:       3 * time.Hour,
}

// Resolver turns queries into ranges using a single injected clock.
type Resolver struct {
	clock clockwork.Clock
	opts  Options
}

// NewResolver returns a Resolver. Zero option fields fall back to DefaultOptions.
func NewResolver(clock clockwork.Clock, opts Options) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.ForwardBuffer <= 0 {
		opts.ForwardBuffer = DefaultOptions.ForwardBuffer
	}
	if opts.NowSpan <= 0 {
		opts.NowSpan = DefaultOptions.NowSpan
	}
	return &Resolver{clock: clock, opts: opts}
}

// Now returns the current instant from the resolver's clock, in UTC.
func (r *Resolver) Now() time.Time {
	return r.clock.Now().UTC()
}

// Resolve resolves q against the resolver's clock.
func (r *Resolver) Resolve(q Query) (Range, error) {
	return ResolveAt(r.Now(), q, r.opts)
}

// ResolveAt resolves q against an explicit now.
func ResolveAt(now time.Time, q Query, opts Options) (Range, error) {
	now = now.UTC()
	if d := strings.TrimSpace(q.Date); d != "" {
		day, err := ParseLocalDate(d)
		if err != nil {
			return Range{}, err
		}
		return Range{
			Start:  day.UTC(),
			End:    EndOfLocalDay(day).UTC(),
			Now:    now,
			Preset: PresetDate,
		}, nil
	}

	token := Preset(strings.ToLower(strings.TrimSpace(q.Range)))
	if token == "" {
		token = PresetToday
	}
	midnight := LocalMidnight(now)
	switch token {
	case PresetNow:
		return Range{Start: now.Add(-opts.NowSpan), End: now.Add(opts.NowSpan), Now: now, Preset: token}, nil
	case PresetToday:
		return Range{Start: midnight.UTC(), End: now.Add(opts.ForwardBuffer), Now: now, Preset: token}, nil
	case PresetWeek:
		return Range{
			Start:   midnight.AddDate(0, 0, -7).UTC(),
			End:     now.Add(opts.ForwardBuffer),
			Cutover: midnight.Add(-time.Millisecond).UTC(),
			Now:     now,
			Preset:  token,
		}, nil
	case PresetMonth, PresetTwoMonths, PresetThreeMonths:
		months := monthsBack(token)
		local := now.In(Zone)
		return Range{
			Start:   time.Date(local.Year(), local.Month()-time.Month(months), 1, 0, 0, 0, 0, Zone).UTC(),
			End:     now.Add(opts.ForwardBuffer),
			Cutover: EndOfPreviousMonth(now).UTC(),
			Now:     now,
			Preset:  token,
		}, nil
	default:
		return Range{}, fmt.Errorf("%w: unknown range %q", ErrInvalidRange, q.Range)
	}
}

func monthsBack(p Preset) int {
	switch p {
	case PresetTwoMonths:
		return 2
	case PresetThreeMonths:
		return 3
	default:
		return 1
	}
}

// ParseLocalDate parses YYYY-MM-DD as local midnight in Zone. Calendar-invalid
// dates such as 2025-02-29 are rejected rather than normalized.
func ParseLocalDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRange, s)
	}
	t, err := time.ParseInLocation(DateLayout, s, Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalidRange, s, err)
	}
	return t, nil
}

// ToLocal converts an instant to reference-zone wall clock.
func ToLocal(t time.Time) time.Time {
	return t.In(Zone)
}

// LocalMidnight returns 00:00 local of the local calendar day containing t.
func LocalMidnight(t time.Time) time.Time {
	l := t.In(Zone)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, Zone)
}

// EndOfLocalDay returns 23:59:59.999 local of the local calendar day containing t.
func EndOfLocalDay(t time.Time) time.Time {
	l := t.In(Zone)
	return time.Date(l.Year(), l.Month(), l.Day(), 23, 59, 59, int(999*time.Millisecond), Zone)
}

// EndOfPreviousMonth returns the last local moment of the month before t's local month.
// Day 0 of the current month is the last day of the previous one, whatever its length.
func EndOfPreviousMonth(t time.Time) time.Time {
	l := t.In(Zone)
	return time.Date(l.Year(), l.Month(), 0, 23, 59, 59, int(999*time.Millisecond), Zone)
}
