package cities

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urbanflow/urbanflow/internal/model"
)

func TestScoreHighPriority(t *testing.T) {
	rec := model.CityRecord{
		City:               "Delhi",
		AvgDelayMinutes:    42,
		AvgPeakSpeedKmph:   23,
		PopulationMillions: 16.8,
	}
	s := Score(rec)
	assert.Equal(t, 76.9, s.Score)
	assert.Equal(t, PriorityHigh, s.Priority)
	assert.Len(t, s.Rationale, 3)
	assert.Contains(t, s.Rationale[0], "42 minutes")
}

func TestScoreClampsExtremes(t *testing.T) {
	rec := model.CityRecord{
		AvgDelayMinutes:    120, // well past the 45-minute ceiling
		AvgPeakSpeedKmph:   0,
		PopulationMillions: 40,
	}
	s := Score(rec)
	assert.Equal(t, 100.0, s.Score)
	assert.Equal(t, PriorityHigh, s.Priority)
}

func TestScoreModerate(t *testing.T) {
	rec := model.CityRecord{
		AvgDelayMinutes:    10,
		AvgPeakSpeedKmph:   38,
		PopulationMillions: 1.2,
	}
	s := Score(rec)
	assert.Less(t, s.Score, 45.0)
	assert.Equal(t, PriorityModerate, s.Priority)
}

func TestPriorityBandBoundaries(t *testing.T) {
	// delay 36 / speed 40 / pop 15 gives exactly 0.8*0.45+0+0.2 = 56.0.
	medium := Score(model.CityRecord{AvgDelayMinutes: 36, AvgPeakSpeedKmph: 40, PopulationMillions: 15})
	assert.Equal(t, 56.0, medium.Score)
	assert.Equal(t, PriorityMedium, medium.Priority)

	// delay 45 / speed 20 / pop 7.5 gives 45+17.5+10 = 72.5.
	high := Score(model.CityRecord{AvgDelayMinutes: 45, AvgPeakSpeedKmph: 20, PopulationMillions: 7.5})
	assert.Equal(t, 72.5, high.Score)
	assert.Equal(t, PriorityHigh, high.Priority)
}

func TestComputeHomeMetricsEmpty(t *testing.T) {
	assert.Equal(t, model.HomeMetrics{}, ComputeHomeMetrics(nil))
}

func TestComputeHomeMetrics(t *testing.T) {
	records := []model.CityRecord{
		{AvgDelayMinutes: 45, AvgPeakSpeedKmph: 20, PopulationMillions: 7.5},  // High, 72.5
		{AvgDelayMinutes: 36, AvgPeakSpeedKmph: 40, PopulationMillions: 15},   // Medium, 56.0
		{AvgDelayMinutes: 9, AvgPeakSpeedKmph: 40, PopulationMillions: 1.5},   // Moderate
		{AvgDelayMinutes: 18, AvgPeakSpeedKmph: 30, PopulationMillions: 3},    // Moderate
	}
	m := ComputeHomeMetrics(records)

	assert.Equal(t, 4, m.CityCount)
	assert.Equal(t, 27, m.AvgWait)         // mean delay 27.0
	assert.Equal(t, 32.5, m.TravelSpeed)   // mean speed 32.5
	assert.Equal(t, 60, m.Density)         // 27/45*100
	assert.Equal(t, 25, m.PriorityHighPct)
	assert.Equal(t, 25, m.PriorityMediumPct)
	assert.Equal(t, 50, m.PriorityModeratePct)
}

func TestComputeHomeMetricsDensityClamp(t *testing.T) {
	low := ComputeHomeMetrics([]model.CityRecord{{AvgDelayMinutes: 2}})
	assert.Equal(t, 15, low.Density)

	high := ComputeHomeMetrics([]model.CityRecord{{AvgDelayMinutes: 90}})
	assert.Equal(t, 95, high.Density)
}
