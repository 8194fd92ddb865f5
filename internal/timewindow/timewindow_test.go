package timewindow

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestResolveAt_Presets(t *testing.T) {
	now := utc("2025-01-15T10:00:00Z") // 17:00 local

	tests := []struct {
		name        string
		q           Query
		wantStart   string
		wantEnd     string
		wantCutover string
		wantPreset  Preset
	}{
		{
			name:       "empty query behaves as today",
			q:          Query{},
			wantStart:  "2025-01-14T17:00:00Z",
			wantEnd:    "2025-01-17T10:00:00Z",
			wantPreset: PresetToday,
		},
		{
			name:       "today",
			q:          Query{Range: "today"},
			wantStart:  "2025-01-14T17:00:00Z",
			wantEnd:    "2025-01-17T10:00:00Z",
			wantPreset: PresetToday,
		},
		{
			name:       "now window",
			q:          Query{Range: "now"},
			wantStart:  "2025-01-15T07:00:00Z",
			wantEnd:    "2025-01-15T13:00:00Z",
			wantPreset: PresetNow,
		},
		{
			name:        "one week",
			q:           Query{Range: "1w"},
			wantStart:   "2025-01-07T17:00:00Z",
			wantEnd:     "2025-01-17T10:00:00Z",
			wantCutover: "2025-01-14T16:59:59.999Z",
			wantPreset:  PresetWeek,
		},
		{
			name:        "one month crosses year boundary",
			q:           Query{Range: "1m"},
			wantStart:   "2024-11-30T17:00:00Z",
			wantEnd:     "2025-01-17T10:00:00Z",
			wantCutover: "2024-12-31T16:59:59.999Z",
			wantPreset:  PresetMonth,
		},
		{
			name:        "three months",
			q:           Query{Range: "3M"},
			wantStart:   "2024-09-30T17:00:00Z",
			wantEnd:     "2025-01-17T10:00:00Z",
			wantCutover: "2024-12-31T16:59:59.999Z",
			wantPreset:  PresetThreeMonths,
		},
		{
			name:       "explicit date wins over range",
			q:          Query{Date: "2025-01-10", Range: "1w"},
			wantStart:  "2025-01-09T17:00:00Z",
			wantEnd:    "2025-01-10T16:59:59.999Z",
			wantPreset: PresetDate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveAt(now, tc.q, DefaultOptions)
			require.NoError(t, err)
			assert.Equal(t, utc(tc.wantStart), got.Start)
			assert.Equal(t, utc(tc.wantEnd), got.End)
			assert.Equal(t, tc.wantPreset, got.Preset)
			if tc.wantCutover == "" {
				assert.False(t, got.HasCutover())
			} else {
				require.True(t, got.HasCutover())
				assert.Equal(t, utc(tc.wantCutover), got.Cutover)
			}
		})
	}
}

func TestResolveAt_LocalDayAfterUTCMidnight(t *testing.T) {
	// 2025-01-15T20:00Z is already 2025-01-16 03:00 local.
	got, err := ResolveAt(utc("2025-01-15T20:00:00Z"), Query{Range: "today"}, DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, utc("2025-01-15T17:00:00Z"), got.Start)
}

func TestResolveAt_InvalidInput(t *testing.T) {
	now := utc("2025-01-15T10:00:00Z")
	for _, q := range []Query{
		{Date: "2025-02-29"},
		{Date: "2025-13-01"},
		{Date: "2025-1-5"},
		{Date: "15/01/2025"},
		{Range: "6m"},
		{Range: "yesterday"},
	} {
		_, err := ResolveAt(now, q, DefaultOptions)
		assert.Truef(t, errors.Is(err, ErrInvalidRange), "query %+v: err = %v, want ErrInvalidRange", q, err)
	}
}

func TestResolveAt_LeapDayAccepted(t *testing.T) {
	got, err := ResolveAt(utc("2024-03-01T00:00:00Z"), Query{Date: "2024-02-29"}, DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, utc("2024-02-28T17:00:00Z"), got.Start)
	assert.Equal(t, utc("2024-02-29T16:59:59.999Z"), got.End)
}

func TestResolveAt_MonthCutoverLandsOnLastCalendarDay(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{now: "2025-08-10T03:00:00Z", want: "2025-07-31T23:59:59.999+07:00"}, // 31-day month
		{now: "2025-03-10T03:00:00Z", want: "2025-02-28T23:59:59.999+07:00"}, // 28-day month
		{now: "2024-03-10T03:00:00Z", want: "2024-02-29T23:59:59.999+07:00"}, // leap February
		{now: "2025-05-01T03:00:00Z", want: "2025-04-30T23:59:59.999+07:00"}, // 30-day month
	}
	for _, tc := range tests {
		got, err := ResolveAt(utc(tc.now), Query{Range: "1m"}, DefaultOptions)
		require.NoError(t, err)
		assert.True(t, utc(tc.want).Equal(got.Cutover), "now=%s cutover=%s want %s", tc.now, got.Cutover, tc.want)
	}
}

func TestResolveAt_OrderingInvariant(t *testing.T) {
	start := utc("2024-01-01T00:00:00Z")
	for h := 0; h < 366*24; h += 5 {
		now := start.Add(time.Duration(h) * time.Hour)
		for _, p := range Presets {
			r, err := ResolveAt(now, Query{Range: string(p)}, DefaultOptions)
			require.NoError(t, err)
			require.False(t, r.End.Before(r.Start), "%s at %s: end before start", p, now)
			if r.HasCutover() {
				require.False(t, r.Cutover.Before(r.Start), "%s at %s: cutover before start", p, now)
				require.False(t, r.Cutover.After(r.End), "%s at %s: cutover after end", p, now)
				assert.Equal(t, r.Cutover, r.ObservedUntil())
			}
		}
	}
}

func TestLocalMidnight_RoundTripsEveryDayOfLeapYear(t *testing.T) {
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, Zone)
	for day.Year() == 2024 {
		asUTC := LocalMidnight(day).UTC()
		back := ToLocal(asUTC)
		require.Equal(t, day.Format(time.RFC3339Nano), back.Format(time.RFC3339Nano))
		require.Equal(t, 17, asUTC.Hour(), "local midnight is 17:00 UTC the day before")

		eod := EndOfLocalDay(asUTC)
		require.Equal(t, day.Day(), ToLocal(eod.UTC()).Day())
		require.Equal(t, 24*time.Hour-time.Millisecond, eod.Sub(LocalMidnight(asUTC)))
		day = day.AddDate(0, 0, 1)
	}
}

func TestResolver_UsesInjectedClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(utc("2025-01-15T10:00:00Z"))
	r := NewResolver(clock, Options{})

	first, err := r.Resolve(Query{Range: "now"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := r.Resolve(Query{Range: "now"})
	require.NoError(t, err)

	assert.Equal(t, time.Hour, second.Start.Sub(first.Start))
	assert.Equal(t, time.UTC, r.Now().Location())
}

func TestObservedUntil_NeverPassesNow(t *testing.T) {
	now := utc("2025-01-15T03:00:00Z") // 10:00 local

	tests := []struct {
		name string
		q    Query
		want string
	}{
		{name: "today stops at now", q: Query{Range: "today"}, want: "2025-01-15T03:00:00Z"},
		{name: "now window stops at now", q: Query{Range: "now"}, want: "2025-01-15T03:00:00Z"},
		{name: "current date stops at now", q: Query{Date: "2025-01-15"}, want: "2025-01-15T03:00:00Z"},
		{name: "past date keeps end of day", q: Query{Date: "2025-01-10"}, want: "2025-01-10T16:59:59.999Z"},
		{name: "cutover is earlier than now", q: Query{Range: "1w"}, want: "2025-01-14T16:59:59.999Z"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveAt(now, tc.q, DefaultOptions)
			require.NoError(t, err)
			assert.Equal(t, now, got.Now)
			assert.Equal(t, utc(tc.want), got.ObservedUntil())
		})
	}

	future, err := ResolveAt(now, Query{Date: "2025-01-20"}, DefaultOptions)
	require.NoError(t, err)
	assert.True(t, future.ObservedUntil().Before(future.Start), "a future date has no observable instants")
}
