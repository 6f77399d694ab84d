package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spindle/internal/formatter"
	"github.com/desertthunder/spindle/internal/repositories"
	"github.com/desertthunder/spindle/internal/shared"
	"github.com/desertthunder/spindle/internal/tasks"
	"github.com/urfave/cli/v3"
)

func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute one pipeline run immediately",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the run summary as JSON",
			},
		},
		Action: r.RunPipeline,
	}
}

func startCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run the daily scheduler in the foreground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "at",
				Usage: "Daily fire time (HH:MM, 24-hour); overrides etl.fire_at",
			},
			&cli.BoolFlag{
				Name:  "now",
				Usage: "Fire one run immediately before scheduling",
			},
		},
		Action: r.StartScheduler,
	}
}

func checkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Run the post-load quality checks against the store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "User ID to check (defaults to the stored profile)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the report as JSON",
			},
		},
		Action: r.CheckQuality,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Export recent listening history as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "user",
				Usage: "User ID to export (defaults to the stored profile)",
			},
			&cli.IntFlag{
				Name:  "days",
				Usage: "Lookback window in days",
				Value: 7,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum rows to export",
				Value: 500,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit rows as JSON instead of CSV",
			},
		},
		Action: r.ExportHistory,
	}
}

// RunPipeline executes one full extract/transform/load/check pass and prints
// the summary.
func (r *Runner) RunPipeline(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.requireService()
	if err != nil {
		return err
	}
	if err := r.authenticateFromConfig(ctx, svc); err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewETLEngine(svc, db, r.config.ETL, r.logger)

	progress := make(chan tasks.ProgressUpdate, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("[%s] %s\n", update.Phase, update.Message)
		}
	}()

	summary, runErr := engine.Run(ctx, progress)
	close(progress)
	<-done

	r.refreshPersistedToken(svc)

	if summary != nil {
		if cmd.Bool("json") {
			if err := r.writeJSON(summary, true); err != nil {
				return err
			}
		} else {
			r.writePlain("%s", formatter.FormatRunSummary(summary))
		}
	}

	return runErr
}

// StartScheduler blocks, firing one pipeline run per day at the configured
// time.
func (r *Runner) StartScheduler(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.requireService()
	if err != nil {
		return err
	}
	if err := r.authenticateFromConfig(ctx, svc); err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewETLEngine(svc, db, r.config.ETL, r.logger)

	fireAt := r.config.ETL.FireAt
	if at := cmd.String("at"); at != "" {
		fireAt = at
	}

	scheduler, err := tasks.NewScheduler(engine, fireAt, r.logger)
	if err != nil {
		return err
	}

	if cmd.Bool("now") {
		summary, runErr := engine.Run(ctx, nil)
		r.refreshPersistedToken(svc)
		if runErr != nil {
			r.logger.Error("initial run failed", "error", runErr)
		} else {
			r.writePlain("%s", formatter.FormatRunSummary(summary))
		}
	}

	err = scheduler.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CheckQuality runs the post-load checks on demand, without a pipeline run.
func (r *Runner) CheckQuality(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	userID, err := r.resolveUser(ctx, cmd.String("user"), db)
	if err != nil {
		return err
	}

	checker := tasks.NewQualityChecker(db, r.config.ETL.LookbackDays, r.logger)
	report, err := checker.Check(ctx, userID, 0)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}
	return r.writePlain("%s", formatter.FormatQualityReport(report))
}

// ExportHistory writes recent listening events as CSV, to stdout or a file.
func (r *Runner) ExportHistory(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	userID, err := r.resolveUser(ctx, cmd.String("user"), db)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -int(cmd.Int("days")))
	events, err := repositories.NewHistoryRepository(db).Recent(ctx, userID, cutoff, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(events, true)
	}

	if out := cmd.String("out"); out != "" {
		path, err := formatter.WriteHistoryExport(events, userID, out)
		if err != nil {
			return err
		}
		return r.writePlain("Wrote %d events to %s\n", len(events), path)
	}

	data, err := formatter.HistoryToCSV(events)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// resolveUser returns the explicit user ID when given, otherwise the
// earliest stored profile's ID.
func (r *Runner) resolveUser(ctx context.Context, userID string, db *sql.DB) (string, error) {
	if userID != "" {
		return userID, nil
	}
	first, err := repositories.NewUserRepository(db).First(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: no profile loaded yet, run `spindle run` or pass --user", shared.ErrInvalidInput)
	}
	return first, nil
}
