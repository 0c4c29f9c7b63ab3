package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/urbanflow/urbanflow/internal/model"
)

//go:embed cities.json
var citySeed []byte

// excludedCities are hidden from listing and detail endpoints while
// remaining in the dataset for aggregate metrics.
var excludedCities = map[string]bool{
	"kochi":  true,
	"nagpur": true,
	"salem":  true,
}

// Seed populates the cities table from the embedded dataset. It is a
// no-op when the table already has rows, so restarting the server
// never duplicates or resets data.
func (db *DB) Seed(ctx context.Context) error {
	n, err := db.CountCities(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		db.logger.Debug("city dataset already seeded", "rows", n)
		return nil
	}

	var records []model.CityRecord
	if err := json.Unmarshal(citySeed, &records); err != nil {
		return fmt.Errorf("storage: parse city seed: %w", err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cities (`+cityColumns+`, excluded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare seed insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		slug := NormalizeKey(rec.City)
		issues, err := json.Marshal(rec.Issues)
		if err != nil {
			return fmt.Errorf("storage: marshal issues for %s: %w", slug, err)
		}
		actions, err := json.Marshal(rec.RecommendedActions)
		if err != nil {
			return fmt.Errorf("storage: marshal actions for %s: %w", slug, err)
		}
		excluded := 0
		if excludedCities[slug] {
			excluded = 1
		}
		if _, err := stmt.ExecContext(ctx, slug, rec.City, rec.State,
			rec.Classification, rec.PopulationMillions, rec.AvgPeakSpeedKmph,
			rec.AvgDelayMinutes, rec.VehicleMix, string(issues), string(actions),
			rec.ImageURL, rec.ImageCredit, rec.ImageSource,
			rec.LandmarkName, rec.LandmarkURL, excluded); err != nil {
			return fmt.Errorf("storage: seed %s: %w", slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit seed: %w", err)
	}
	db.logger.Info("city dataset seeded", "rows", len(records))
	return nil
}
