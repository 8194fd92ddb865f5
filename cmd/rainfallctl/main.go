// Command rainfallctl resolves ranges and queries rainfall series from the
// command line, using the same pipeline as the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/pumphouse-rainfall-service/internal/observability"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/present"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/radar"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/service"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/store"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/timewindow"
	"github.com/kjstillabower/pumphouse-rainfall-service/internal/validation"
)

// Globals are flags shared by every subcommand.
type Globals struct {
	LogLevel      string        `help:"Log level (debug, info, warn, error)." default:"warn" env:"LOG_LEVEL"`
	MongoURI      string        `help:"MongoDB connection string." default:"mongodb://localhost:27017" env:"MONGODB_URI"`
	ObservationDB string        `help:"Observation database." default:"db_curah_hujan"`
	ForecastDB    string        `help:"Forecast database." default:"db-predict-ch"`
	Timeout       time.Duration `help:"Overall command timeout." default:"15s"`
	ForwardBuffer time.Duration `help:"Forward buffer for today and look-back ranges." default:"48h"`
	NowSpan       time.Duration `help:"Half-width of the now window." default:"3h"`

	out io.Writer `kong:"-"`
}

// CLI is the rainfallctl command tree.
type CLI struct {
	Globals

	Resolve   ResolveCmd   `cmd:"" help:"Print the UTC window a range token or date resolves to."`
	Series    SeriesCmd    `cmd:"" help:"Fetch, stitch and print the series for a pump house."`
	Locations LocationsCmd `cmd:"" help:"List pump houses known to the observation store."`
	Alerts    AlertsCmd    `cmd:"" help:"Print today's radar scans at or above a rain rate."`
}

// RangeFlags select the window. Date wins over Range.
type RangeFlags struct {
	Range string `help:"Named range: now, today, 1w, 1m, 2m, 3m." short:"r"`
	Date  string `help:"Calendar date in the reference zone (YYYY-MM-DD)." short:"d"`
}

func (f RangeFlags) query() (timewindow.Query, error) {
	rq := validation.RangeQuery{Date: f.Date, Range: f.Range}
	if err := validation.ValidateRangeQuery(rq); err != nil {
		return timewindow.Query{}, err
	}
	return rq.Query(), nil
}

// ResolveCmd prints a resolved range without touching any store.
type ResolveCmd struct {
	RangeFlags
	At string `help:"Resolve against this RFC3339 instant instead of the current time."`
}

type resolvedRange struct {
	Preset  string `json:"preset"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Cutover string `json:"cutover,omitempty"`
}

func (c *ResolveCmd) Run(g *Globals) error {
	q, err := c.query()
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()
	if c.At != "" {
		at, err := time.Parse(time.RFC3339, c.At)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		clock = clockwork.NewFakeClockAt(at)
	}
	rng, err := timewindow.NewResolver(clock, g.windowOptions()).Resolve(q)
	if err != nil {
		return err
	}
	out := resolvedRange{
		Preset: string(rng.Preset),
		Start:  present.FormatTime(rng.Start),
		End:    present.FormatTime(rng.End),
	}
	if rng.HasCutover() {
		out.Cutover = present.FormatTime(rng.Cutover)
	}
	return g.printJSON(out)
}

// SeriesCmd runs the full pipeline against MongoDB.
type SeriesCmd struct {
	RangeFlags
	Name string `arg:"" help:"Pump-house name (fuzzy matched)."`
}

func (c *SeriesCmd) Run(g *Globals) error {
	name, err := validation.ValidatePumpName(c.Name, 1, 100)
	if err != nil {
		return err
	}
	q, err := c.query()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	logger, err := observability.NewLogger("rainfallctl", g.LogLevel)
	if err != nil {
		return err
	}
	m, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = observability.FlushAndClose(context.Background(), logger, m.Close) }()

	guard := store.NewGuard(m, m, store.GuardConfig{})
	resolver := timewindow.NewResolver(clockwork.NewRealClock(), g.windowOptions())
	svc := service.NewRainfallService(guard, guard, resolver, service.Options{})

	series, err := svc.GetSeries(context.WithValue(ctx, "logger", logger), name, q)
	if err != nil {
		return err
	}
	return g.printJSON(present.FromSeries(series))
}

// LocationsCmd lists location names straight from the observation store.
type LocationsCmd struct{}

func (c *LocationsCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	m, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(context.Background()) }()

	names, err := m.Locations(ctx)
	if err != nil {
		return err
	}
	return g.printJSON(map[string][]string{"locations": names})
}

// AlertsCmd prints today's radar alerts.
type AlertsCmd struct {
	MinRainRate float64 `help:"Rain rate threshold in mm/h." default:"5" name:"min-rain-rate"`
	Summary     bool    `help:"Print today's radar summary instead of the alert scans."`
}

func (c *AlertsCmd) Run(g *Globals) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.Timeout)
	defer cancel()

	m, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(context.Background()) }()

	svc := radar.NewService(m, clockwork.NewRealClock())
	if c.Summary {
		sum, err := svc.SummaryToday(ctx)
		if err != nil {
			return err
		}
		return g.printJSON(sum)
	}
	recs, err := svc.AlertsToday(ctx, c.MinRainRate)
	if err != nil {
		return err
	}
	return g.printJSON(map[string]interface{}{"records": recs, "count": len(recs)})
}

func (g *Globals) windowOptions() timewindow.Options {
	return timewindow.Options{ForwardBuffer: g.ForwardBuffer, NowSpan: g.NowSpan}
}

func (g *Globals) connect(ctx context.Context) (*store.Mongo, error) {
	return store.ConnectMongo(ctx, store.MongoConfig{
		URI:            g.MongoURI,
		ObservationDB:  g.ObservationDB,
		ForecastDB:     g.ForecastDB,
		ConnectTimeout: g.Timeout,
	})
}

func (g *Globals) printJSON(v interface{}) error {
	w := g.out
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("rainfallctl"),
		kong.Description("Pump-house rainfall series from the command line."),
		kong.UsageOnError(),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rainfallctl: %v\n", err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}
