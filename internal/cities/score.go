// Package cities serves the static city congestion dataset: suitability
// scoring, aggregate home-page metrics, and landmark image enrichment.
package cities

import (
	"fmt"
	"math"

	"github.com/urbanflow/urbanflow/internal/model"
)

// Priority bands for the composite suitability score.
const (
	PriorityHigh     = "High"
	PriorityMedium   = "Medium"
	PriorityModerate = "Moderate"
)

// Score computes the composite simulation-suitability score for a
// city. High delays, low peak speed and a large population all push a
// city up the priority list.
func Score(rec model.CityRecord) model.Suitability {
	delayScore := math.Min(1.0, rec.AvgDelayMinutes/45.0)
	speedScore := 1.0 - math.Min(1.0, rec.AvgPeakSpeedKmph/40.0)
	populationScore := math.Min(1.0, rec.PopulationMillions/15.0)
	composite := round1((delayScore*0.45 + speedScore*0.35 + populationScore*0.2) * 100)

	priority := PriorityModerate
	switch {
	case composite >= 70:
		priority = PriorityHigh
	case composite >= 45:
		priority = PriorityMedium
	}

	return model.Suitability{
		Score:    composite,
		Priority: priority,
		Rationale: []string{
			fmt.Sprintf("Average delay of %.0f minutes", rec.AvgDelayMinutes),
			fmt.Sprintf("Peak speed around %.0f km/h", rec.AvgPeakSpeedKmph),
			fmt.Sprintf("Population ~%.1fM", rec.PopulationMillions),
		},
	}
}

// ComputeHomeMetrics aggregates the dataset into the headline figures
// shown on the home page.
func ComputeHomeMetrics(records []model.CityRecord) model.HomeMetrics {
	total := len(records)
	if total == 0 {
		return model.HomeMetrics{}
	}

	var delaySum, speedSum float64
	counts := map[string]int{}
	for _, rec := range records {
		delaySum += rec.AvgDelayMinutes
		speedSum += rec.AvgPeakSpeedKmph
		counts[Score(rec).Priority]++
	}
	meanDelay := delaySum / float64(total)
	meanSpeed := speedSum / float64(total)

	density := math.Min(95.0, math.Max(15.0, meanDelay/45.0*100.0))
	pct := func(n int) int {
		return int(math.Round(float64(n) / float64(total) * 100))
	}

	return model.HomeMetrics{
		Density:             int(math.Round(density)),
		AvgWait:             int(math.Round(meanDelay)),
		TravelSpeed:         round1(meanSpeed),
		CityCount:           total,
		PriorityHighPct:     pct(counts[PriorityHigh]),
		PriorityMediumPct:   pct(counts[PriorityMedium]),
		PriorityModeratePct: pct(counts[PriorityModerate]),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
