// Command sensorlog records phone or simulated sensor sessions, stores them
// in SQLite and exports them as CSV.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/config"
	"github.com/jwulff/sensorlog/internal/db"
	"github.com/jwulff/sensorlog/internal/logging"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
)

// env is the process state built by the Before hook.
type env struct {
	cfg      config.Config
	log      *zap.Logger
	closeLog func() error
	store    *db.Store
}

// openStore opens the record database once per process.
func (e *env) openStore(ctx context.Context) (*db.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	store, err := db.Open(ctx, e.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	e.store = store
	return store, nil
}

func (e *env) close() error {
	var err error
	if e.store != nil {
		err = multierr.Append(err, e.store.Close())
	}
	if e.closeLog != nil {
		err = multierr.Append(err, e.closeLog())
	}
	return err
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:  "sensorlog",
		Usage: "record, browse and export sensor sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultPath(),
				Usage:   "path to the YAML config file",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "log at debug level and also to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String(flagConfig), c.IsSet(flagConfig))
			if err != nil {
				return err
			}
			opts := logging.Options{Path: cfg.LogPath, Level: cfg.LogLevel}
			if c.Bool(flagDebug) {
				opts.Level = "debug"
				opts.Stderr = true
			}
			log, closeLog, err := logging.New(opts)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			e.cfg, e.log, e.closeLog = cfg, log, closeLog
			log.Debug("config loaded",
				zap.String("db", cfg.DBPath),
				zap.String("source", cfg.Source),
				zap.String("rate", cfg.Rate))
			return nil
		},
		After: func(*cli.Context) error {
			return e.close()
		},
		Action: e.tuiAction,
		Commands: []*cli.Command{
			e.tuiCommand(),
			e.recordCommand(),
			e.watchCommand(),
			e.statusCommand(),
			e.listCommand(),
			e.showCommand(),
			e.renameCommand(),
			e.rmCommand(),
			e.exportCommand(),
			e.mcpCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{}
	if err := newApp(e).RunContext(ctx, os.Args); err != nil {
		if e.log != nil {
			e.log.Error("command failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "sensorlog:", describe(err))
		stop()
		os.Exit(1)
	}
}

// describe returns the user message for coded errors and the full error
// otherwise.
func describe(err error) string {
	if apperr.GetCode(err) == apperr.CodeUnknown {
		return err.Error()
	}
	return fmt.Sprintf("%s (%v)", apperr.UserMessage(err), err)
}
