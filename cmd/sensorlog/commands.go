package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwulff/sensorlog/internal/app"
	"github.com/jwulff/sensorlog/internal/capture"
	"github.com/jwulff/sensorlog/internal/config"
	"github.com/jwulff/sensorlog/internal/export"
	"github.com/jwulff/sensorlog/internal/mcpserver"
	"github.com/jwulff/sensorlog/internal/prefs"
	"github.com/jwulff/sensorlog/internal/recorder"
	"github.com/jwulff/sensorlog/internal/sensor"
	"github.com/jwulff/sensorlog/internal/source"
)

// newSource picks the sample source named by cfg.
func newSource(cfg config.Config, clk clock.Clock, log *zap.Logger) capture.Source {
	if cfg.Source == config.SourceStream {
		return source.NewStream(cfg.StreamAddr, clk, log)
	}
	return source.NewSimulated(clk, log)
}

func sourceName(cfg config.Config) string {
	if cfg.Source == config.SourceStream {
		return cfg.Source + " " + cfg.StreamAddr
	}
	return cfg.Source
}

// parseID reads the record id from the first argument.
func parseID(c *cli.Context) (int64, error) {
	arg := c.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("%s: record id is required", c.Command.Name)
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: invalid record id %q", c.Command.Name, arg)
	}
	return id, nil
}

// selections returns every component of the named kinds, or the saved
// preferences when none are named.
func (e *env) selections(names []string) (map[sensor.Kind]sensor.Selection, error) {
	if len(names) == 0 {
		p, err := prefs.Load(e.cfg.PrefsPath)
		if err != nil {
			return nil, err
		}
		return p.Selections(), nil
	}
	out := make(map[sensor.Kind]sensor.Selection, len(names))
	for _, n := range names {
		k, err := sensor.ParseKind(n)
		if err != nil {
			return nil, err
		}
		out[k] = sensor.SelectAll(k)
	}
	return out, nil
}

func (e *env) tuiCommand() *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "browse and record sessions interactively (default)",
		Action: e.tuiAction,
	}
}

func (e *env) tuiAction(c *cli.Context) error {
	store, err := e.openStore(c.Context)
	if err != nil {
		return err
	}
	p, err := prefs.Load(e.cfg.PrefsPath)
	if err != nil {
		return err
	}
	clk := clock.New()
	m := app.New(c.Context, app.Deps{
		Store:      store,
		Recorder:   recorder.New(store, clk, e.log),
		Exporter:   export.New(e.cfg.ExportDir, e.log),
		Prefs:      p,
		Source:     newSource(e.cfg, clk, e.log),
		SourceName: sourceName(e.cfg),
		Clock:      clk,
		Logger:     e.log,
		Countdown:  e.cfg.Countdown,
		Rate:       e.cfg.SampleRate(),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(c.Context)).Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func (e *env) recordCommand() *cli.Command {
	return &cli.Command{
		Name:  "record",
		Usage: "capture one session without the TUI and save it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true, Usage: "record title"},
			&cli.StringFlag{Name: "notes", Usage: "free-form notes"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "how long to record after the countdown"},
			&cli.DurationFlag{Name: "countdown", Usage: "delay before capture starts (default from config)"},
			&cli.StringFlag{Name: "source", Usage: "simulated or stream (default from config)"},
			&cli.StringFlag{Name: "rate", Usage: "ui, normal, game or fastest (default from config)"},
			&cli.StringSliceFlag{
				Name:    "sensor",
				Aliases: []string{"s"},
				Usage:   "record every component of this sensor; repeatable, defaults to the saved preferences",
			},
		},
		Action: e.recordAction,
	}
}

// overrideConfig applies the per-command source, rate and countdown flags
// to a copy of the loaded config.
func (e *env) overrideConfig(c *cli.Context) (config.Config, error) {
	cfg := e.cfg
	if s := c.String("source"); s != "" {
		cfg.Source = s
	}
	if r := c.String("rate"); r != "" {
		cfg.Rate = r
	}
	if c.IsSet("countdown") {
		cfg.Countdown = c.Duration("countdown")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (e *env) recordAction(c *cli.Context) error {
	ctx := c.Context
	cfg, err := e.overrideConfig(c)
	if err != nil {
		return err
	}
	duration := c.Duration("duration")
	if duration <= 0 {
		return fmt.Errorf("record: duration must be positive")
	}

	sel, err := e.selections(c.StringSlice("sensor"))
	if err != nil {
		return err
	}
	store, err := e.openStore(ctx)
	if err != nil {
		return err
	}

	clk := clock.New()
	countdown := cfg.Countdown
	if countdown <= 0 {
		countdown = capture.DefaultCountdown
	}
	s, err := capture.NewSession(newSource(cfg, clk, e.log), sel, capture.Options{
		Countdown: countdown,
		Rate:      cfg.SampleRate(),
		Clock:     clk,
		Logger:    e.log,
	})
	if err != nil {
		return err
	}
	if err := s.Arm(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Recording %s in %s for %s...\n", kindNames(s.Kinds()), countdown, duration)

	interrupted := false
	select {
	case <-clk.After(countdown + duration):
	case <-ctx.Done():
		interrupted = true
	}
	var buf *capture.Buffer
	saveCtx := ctx
	if interrupted {
		buf, err = s.Interrupt()
		// The interrupted session is still saved.
		saveCtx = context.WithoutCancel(ctx)
	} else {
		buf, err = s.Stop()
	}
	if err != nil {
		e.log.Warn("stop session", zap.Error(err))
	}

	id, err := recorder.New(store, clk, e.log).Save(saveCtx, c.String("title"), c.String("notes"), buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Saved record #%d (%s)\n", id, formatDuration(s.Elapsed()))
	writeCounts(c.App.Writer, buf)
	return nil
}

func (e *env) watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print live sensor readings without recording them",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long (default until interrupted)"},
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "time between printed readings"},
			&cli.StringFlag{Name: "source", Usage: "simulated or stream (default from config)"},
			&cli.StringFlag{Name: "rate", Usage: "ui, normal, game or fastest (default from config)"},
			&cli.StringSliceFlag{
				Name:    "sensor",
				Aliases: []string{"s"},
				Usage:   "watch this sensor; repeatable, defaults to every sensor",
			},
		},
		Action: e.watchAction,
	}
}

func (e *env) watchAction(c *cli.Context) error {
	ctx := c.Context
	cfg, err := e.overrideConfig(c)
	if err != nil {
		return err
	}
	interval := c.Duration("interval")
	if interval <= 0 {
		return fmt.Errorf("watch: interval must be positive")
	}
	var kinds []sensor.Kind
	for _, n := range c.StringSlice("sensor") {
		k, err := sensor.ParseKind(n)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	clk := clock.New()
	mon := capture.NewMonitor(newSource(cfg, clk, e.log), e.log)
	if err := mon.Start(ctx, kinds, cfg.SampleRate()); err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "Watching %s at %s...\n", kindNames(mon.Kinds()), cfg.SampleRate().Label())

	ticker := clk.Ticker(interval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if d := c.Duration("duration"); d > 0 {
		deadline = clk.After(d)
	}
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			writeReadings(w, mon.Readings())
		}
	}
	if err := mon.Stop(); err != nil {
		return err
	}
	writeReadings(w, mon.Readings())
	return nil
}

func (e *env) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the configuration, the record count and the sample source",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			n, err := store.CountRecords(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Database: %s (%d records)\n", e.cfg.DBPath, n)
			fmt.Fprintf(w, "Exports:  %s\n", e.cfg.ExportDir)
			fmt.Fprintf(w, "Rate:     %s\n", e.cfg.SampleRate().Label())
			fmt.Fprintf(w, "Source:   %s\n", sourceName(e.cfg))
			if e.cfg.Source != config.SourceStream {
				return nil
			}
			resp, err := source.QueryStatus(e.cfg.StreamAddr)
			if err != nil {
				return fmt.Errorf("query phone %s: %w", e.cfg.StreamAddr, err)
			}
			fmt.Fprintf(w, "Phone:    %s\n", resp.Device)
			if len(resp.Sensors) > 0 {
				fmt.Fprintf(w, "Sensors:  %s\n", strings.Join(resp.Sensors, ", "))
			}
			return nil
		},
	}
}

func (e *env) listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "list saved records, newest first",
		Action: func(c *cli.Context) error {
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			records, err := store.ListRecords(c.Context)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(c.App.Writer, "No records")
				return nil
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tTITLE\tSENSORS")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Title, kindNames(r.Kinds))
			}
			return tw.Flush()
		},
	}
}

func (e *env) showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "show one record and its point counts",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			id, err := parseID(c)
			if err != nil {
				return err
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			rec, buf, err := recorder.New(store, nil, e.log).Load(c.Context, id)
			if rec.ID != 0 {
				w := c.App.Writer
				fmt.Fprintf(w, "#%d %s\n", rec.ID, rec.Title)
				fmt.Fprintf(w, "Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05.000"))
				if rec.Notes != "" {
					fmt.Fprintf(w, "Notes:   %s\n", rec.Notes)
				}
				writeCounts(w, buf)
			}
			return err
		},
	}
}

func (e *env) renameCommand() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "change the title and notes of a record",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true, Usage: "new title"},
			&cli.StringFlag{Name: "notes", Usage: "new notes (kept when omitted)"},
		},
		Action: func(c *cli.Context) error {
			id, err := parseID(c)
			if err != nil {
				return err
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			rec, err := store.GetRecord(c.Context, id)
			if err != nil {
				return err
			}
			notes := rec.Notes
			if c.IsSet("notes") {
				notes = c.String("notes")
			}
			if _, err := store.UpdateRecord(c.Context, id, c.String("title"), notes); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Renamed #%d to %q\n", id, c.String("title"))
			return nil
		},
	}
}

func (e *env) rmCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "delete a record",
		ArgsUsage: "ID",
		Action: func(c *cli.Context) error {
			id, err := parseID(c)
			if err != nil {
				return err
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			found, err := store.DeleteRecord(c.Context, id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("rm: record %d not found", id)
			}
			fmt.Fprintf(c.App.Writer, "Deleted #%d\n", id)
			return nil
		},
	}
}

func (e *env) exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "write one CSV file per sensor of a record",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "output directory (default from config)"},
		},
		Action: func(c *cli.Context) error {
			id, err := parseID(c)
			if err != nil {
				return err
			}
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			rec, buf, err := recorder.New(store, nil, e.log).Load(c.Context, id)
			if err != nil {
				return err
			}
			dir := e.cfg.ExportDir
			if d := c.String("dir"); d != "" {
				dir = d
			}
			files, err := export.New(dir, e.log).Export(rec.CreatedAt, buf)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(c.App.Writer, f)
			}
			return nil
		},
	}
}

func (e *env) mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "serve saved records as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			store, err := e.openStore(c.Context)
			if err != nil {
				return err
			}
			return mcpserver.New(store, recorder.New(store, nil, e.log), e.cfg.ExportDir, e.log).Serve()
		},
	}
}

func kindNames(kinds []sensor.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// writeCounts prints the point count of each recorded component.
func writeCounts(w io.Writer, buf *capture.Buffer) {
	if buf == nil {
		return
	}
	for _, k := range buf.Kinds() {
		n := buf.Len(k)
		for _, comp := range buf.Selection(k).Components() {
			fmt.Fprintf(w, "  %-24s %d points\n", k.String()+" "+k.ComponentLabel(comp), n)
		}
	}
}

// writeReadings prints the latest values of each kind on one line.
func writeReadings(w io.Writer, readings []capture.Reading) {
	for _, r := range readings {
		parts := make([]string, 0, len(r.Values))
		for c, v := range r.Values {
			if c >= r.Kind.Components() {
				break
			}
			parts = append(parts, fmt.Sprintf("%s=%.4f", r.Kind.ComponentLabel(sensor.Component(c)), v))
		}
		fmt.Fprintf(w, "  %-16s %s  (%d samples)\n", r.Kind.String(), strings.Join(parts, " "), r.Count)
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
