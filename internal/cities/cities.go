package cities

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urbanflow/urbanflow/internal/model"
	"github.com/urbanflow/urbanflow/internal/storage"
)

// Service answers city dataset queries: listing, search, per-city
// lookup, and the aggregate home-page metrics. Records are enriched
// with suitability scores and landmark images on the way out.
type Service struct {
	db     *storage.DB
	images *ImageCache
	logger *slog.Logger
}

// NewService wires a city service over the dataset store. images may
// be empty; enrichment is skipped for cities with no cached image.
func NewService(db *storage.DB, images *ImageCache, logger *slog.Logger) *Service {
	return &Service{db: db, images: images, logger: logger}
}

// List returns scored cities matching the query, or the full visible
// dataset ordered worst-delay-first when the query is empty.
func (s *Service) List(ctx context.Context, query string) ([]model.CityPayload, error) {
	records, err := s.db.ListCities(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	payloads := make([]model.CityPayload, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, s.enrich(rec))
	}
	return payloads, nil
}

// Get returns a single scored city by slug. Unknown or hidden cities
// yield storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, slug string) (model.CityPayload, error) {
	rec, err := s.db.GetCity(ctx, slug)
	if err != nil {
		return model.CityPayload{}, err
	}
	return s.enrich(rec), nil
}

// HomeMetrics computes the aggregate dataset figures over all records,
// including ones hidden from listings.
func (s *Service) HomeMetrics(ctx context.Context) (model.HomeMetrics, error) {
	records, err := s.db.AllCities(ctx)
	if err != nil {
		return model.HomeMetrics{}, fmt.Errorf("home metrics: %w", err)
	}
	return ComputeHomeMetrics(records), nil
}

func (s *Service) enrich(rec model.CityRecord) model.CityPayload {
	if rec.ImageURL == "" && s.images != nil {
		if img, ok := s.images.Get(storage.NormalizeKey(rec.City)); ok {
			rec.ImageURL = img
			rec.ImageSource = "Wikipedia"
			if rec.ImageCredit == "" && rec.LandmarkName != "" {
				rec.ImageCredit = rec.LandmarkName
			}
		}
	}
	return model.CityPayload{CityRecord: rec, Suitability: Score(rec)}
}
