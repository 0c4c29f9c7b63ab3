// Package model defines the core domain types for UrbanFlow.
//
// Run types mirror the in-memory state owned by the run supervisor;
// city types mirror rows in the cities table. Types use strong typing
// (UUIDs, enums) and avoid interface{} wherever possible.
package model

import "github.com/google/uuid"

// RunStatus represents the lifecycle state of a simulation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusError    RunStatus = "error"
	RunStatusStopped  RunStatus = "stopped"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusError || s == RunStatusStopped
}

// RunParams are the simulation parameters for one run.
// Immutable after the run is created.
type RunParams struct {
	SimTime  int `json:"sim_time"`
	MinGreen int `json:"min_green"`
	MaxGreen int `json:"max_green"`
}

// DefaultRunParams returns the parameter defaults used when a start
// request omits a field.
func DefaultRunParams() RunParams {
	return RunParams{SimTime: 120, MinGreen: 10, MaxGreen: 60}
}

// LaneCount is the number of traffic approaches the worker reports on.
// Lane numbers outside 1..LaneCount are malformed input and ignored.
const LaneCount = 4

// LaneDetail is the per-vehicle-class breakdown for one lane.
type LaneDetail struct {
	Total    int `json:"total"`
	Car      int `json:"car"`
	Bus      int `json:"bus"`
	Truck    int `json:"truck"`
	Rickshaw int `json:"rickshaw"`
	Bike     int `json:"bike"`
}

// Stats is the statistics aggregate for one run, folded from the
// worker's output lines. Value semantics: the aggregator takes a Stats
// and returns an updated copy, so a snapshot never shares maps with
// the live record.
type Stats struct {
	Phase           string             `json:"phase"`
	Lanes           map[int]int        `json:"lanes"`
	LaneDetails     map[int]LaneDetail `json:"lane_details"`
	TotalVehicles   int                `json:"total_vehicles"`
	TotalTime       int                `json:"total_time"`
	Throughput      float64            `json:"throughput"`
	AverageWait     float64            `json:"average_wait"`
	TrafficDensity  float64            `json:"traffic_density"`
	CongestionLevel float64            `json:"congestion_level"`
}

// NewStats returns a zeroed aggregate with all four lanes present.
func NewStats() Stats {
	s := Stats{
		Lanes:       make(map[int]int, LaneCount),
		LaneDetails: make(map[int]LaneDetail, LaneCount),
	}
	for lane := 1; lane <= LaneCount; lane++ {
		s.Lanes[lane] = 0
		s.LaneDetails[lane] = LaneDetail{}
	}
	return s
}

// Clone returns a deep copy of the aggregate. The maps are copied so
// callers can hand the result across a lock boundary.
func (s Stats) Clone() Stats {
	out := s
	out.Lanes = make(map[int]int, len(s.Lanes))
	for k, v := range s.Lanes {
		out.Lanes[k] = v
	}
	out.LaneDetails = make(map[int]LaneDetail, len(s.LaneDetails))
	for k, v := range s.LaneDetails {
		out.LaneDetails[k] = v
	}
	return out
}

// RunSnapshot is an atomically captured view of one run, safe to use
// after the registry lock is released.
type RunSnapshot struct {
	ID     uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
	Params RunParams `json:"params"`
	Log    []string  `json:"log"`
	Stats  Stats     `json:"stats"`
}
