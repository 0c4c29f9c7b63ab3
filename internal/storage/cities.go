package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/urbanflow/urbanflow/internal/model"
)

// NormalizeKey canonicalizes a city name or URL slug for lookup.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

const cityColumns = `slug, city, state, classification, population_millions,
	avg_peak_speed_kmph, avg_delay_minutes, vehicle_mix, issues,
	recommended_actions, image_url, image_credit, image_source,
	landmark_name, landmark_url`

// ListCities returns non-excluded cities. With an empty query the full
// dataset is returned ordered by delay (worst first) then name; with a
// query, cities whose name, state or classification contains the
// needle, capped at 50 matches.
func (db *DB) ListCities(ctx context.Context, query string) ([]model.CityRecord, error) {
	needle := NormalizeKey(query)

	var rows *sql.Rows
	var err error
	if needle == "" {
		rows, err = db.sql.QueryContext(ctx, `
			SELECT `+cityColumns+`
			FROM cities
			WHERE excluded = 0
			ORDER BY avg_delay_minutes DESC, city ASC`)
	} else {
		rows, err = db.sql.QueryContext(ctx, `
			SELECT `+cityColumns+`
			FROM cities
			WHERE excluded = 0
			  AND instr(lower(city || ' ' || state || ' ' || classification), ?) > 0
			ORDER BY city ASC
			LIMIT 50`, needle)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list cities: %w", err)
	}
	defer rows.Close()

	var out []model.CityRecord
	for rows.Next() {
		rec, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AllCities returns every row, excluded ones included. Used for
// aggregate metrics, which cover the full dataset.
func (db *DB) AllCities(ctx context.Context) ([]model.CityRecord, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT `+cityColumns+`
		FROM cities
		ORDER BY city ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: all cities: %w", err)
	}
	defer rows.Close()

	var out []model.CityRecord
	for rows.Next() {
		rec, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetCity looks up a city by normalized key. Slugs with dashes are
// retried with dashes mapped to spaces so "navi-mumbai" finds
// "Navi Mumbai". Excluded cities report ErrNotFound.
func (db *DB) GetCity(ctx context.Context, slug string) (model.CityRecord, error) {
	rec, err := db.getCityByKey(ctx, NormalizeKey(slug))
	if errors.Is(err, ErrNotFound) && strings.Contains(slug, "-") {
		rec, err = db.getCityByKey(ctx, NormalizeKey(strings.ReplaceAll(slug, "-", " ")))
	}
	return rec, err
}

func (db *DB) getCityByKey(ctx context.Context, key string) (model.CityRecord, error) {
	row := db.sql.QueryRowContext(ctx, `
		SELECT `+cityColumns+`
		FROM cities
		WHERE slug = ? AND excluded = 0`, key)
	rec, err := scanCity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CityRecord{}, ErrNotFound
	}
	return rec, err
}

// CountCities reports the number of rows, excluded ones included.
func (db *DB) CountCities(ctx context.Context) (int, error) {
	var n int
	err := db.sql.QueryRowContext(ctx, `SELECT count(*) FROM cities`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count cities: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCity(row rowScanner) (model.CityRecord, error) {
	var rec model.CityRecord
	var issues, actions string
	err := row.Scan(&rec.Slug, &rec.City, &rec.State, &rec.Classification,
		&rec.PopulationMillions, &rec.AvgPeakSpeedKmph, &rec.AvgDelayMinutes,
		&rec.VehicleMix, &issues, &actions, &rec.ImageURL, &rec.ImageCredit,
		&rec.ImageSource, &rec.LandmarkName, &rec.LandmarkURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.CityRecord{}, err
		}
		return model.CityRecord{}, fmt.Errorf("storage: scan city: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &rec.Issues); err != nil {
		return model.CityRecord{}, fmt.Errorf("storage: city %s issues: %w", rec.Slug, err)
	}
	if err := json.Unmarshal([]byte(actions), &rec.RecommendedActions); err != nil {
		return model.CityRecord{}, fmt.Errorf("storage: city %s actions: %w", rec.Slug, err)
	}
	return rec, nil
}
