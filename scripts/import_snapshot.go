package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutear/gestor-turnos/internal/database"
	"github.com/scoutear/gestor-turnos/internal/export"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

// Imports a flat snapshot export (the snapshot.json endpoint, or a browser-local copy
// in the same shape) into the sqlite reservation store.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		snapshotPath = flag.String("snapshot", "snapshot.json", "path to snapshot json")
		dbPath       = flag.String("db", "./data/turnos.db", "path to sqlite db")
		dryRun       = flag.Bool("dry-run", false, "validate without writing")
	)
	flag.Parse()

	data, err := os.ReadFile(*snapshotPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	records, err := export.ParseSnapshot(data)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no reservations in snapshot")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	imported := 0
	skipped := 0
	for _, rec := range records {
		if _, err := rec.Anchor(); err != nil {
			logger.Warn().Str("date", rec.Date).Str("time", rec.Time).Err(err).Msg("skipping entry")
			skipped++
			continue
		}
		if _, err := schedule.ParseDate(rec.Date, time.UTC); err != nil {
			logger.Warn().Str("date", rec.Date).Err(err).Msg("skipping entry")
			skipped++
			continue
		}
		// legacy entries carry no ID; give them the stable derived one
		rec.ID = rec.ReservationID().String()
		if *dryRun {
			imported++
			continue
		}
		if err := db.Commit(ctx, rec); err != nil {
			return fmt.Errorf("commit %s %s: %w", rec.Date, rec.Time, err)
		}
		imported++
	}

	logger.Info().Int("imported", imported).Int("skipped", skipped).Bool("dry_run", *dryRun).Msg("snapshot import complete")
	return nil
}
