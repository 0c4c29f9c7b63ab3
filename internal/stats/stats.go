// Package stats folds the worker's line-oriented telemetry into a run's
// statistics aggregate.
//
// The fold is pure: Apply takes a line plus the current aggregate and
// returns an updated copy. Malformed input never reaches the caller as
// an error; a recognized line that fails to parse is discarded and the
// aggregate is returned unchanged.
package stats

import (
	"math"
	"strconv"
	"strings"

	"github.com/urbanflow/urbanflow/internal/model"
)

// Event is the side-channel signal extracted from a line, consumed by
// the supervisor. Stats itself never acts on it.
type Event int

const (
	// EventNone means the line carried no lifecycle signal.
	EventNone Event = iota
	// EventComplete means the worker announced normal completion.
	EventComplete
)

// Line prefixes and markers of the worker telemetry grammar.
// Matching is prefix-based and case-sensitive after trimming.
const (
	prefixLaneStats  = "LANE_STATS"
	prefixLaneTotal  = "Lane "
	prefixVehicles   = "Total vehicles passed"
	prefixTime       = "Total time passed"
	prefixThroughput = "No. of vehicles passed per unit time"
	prefixSummary    = "SUMMARY"
	prefixComplete   = "SIMULATION_COMPLETE"

	markerGreen  = "GREEN TS"
	markerYellow = "YELLOW TS"
)

// Apply folds one output line into the aggregate and reports any
// lifecycle event the line signals. Unrecognized lines are a no-op.
func Apply(line string, s model.Stats, params model.RunParams) (model.Stats, Event) {
	line = strings.TrimSpace(line)
	if line == "" {
		return s, EventNone
	}

	out := s.Clone()
	event := EventNone

	// Only green/yellow signal lines update the phase. Red lines are
	// skipped so the displayed phase does not flicker between cycles.
	if strings.Contains(line, markerGreen) || strings.Contains(line, markerYellow) {
		out.Phase = line
	}

	switch {
	case strings.HasPrefix(line, prefixLaneStats):
		applyLaneStats(line, &out)

	case strings.HasPrefix(line, prefixLaneTotal) && strings.Contains(line, "Total:"):
		applyLaneTotal(line, &out)

	case strings.HasPrefix(line, prefixVehicles):
		if v, ok := parseSuffixNumber(line); ok {
			out.TotalVehicles = int(v)
		}

	case strings.HasPrefix(line, prefixTime):
		if v, ok := parseSuffixNumber(line); ok {
			out.TotalTime = int(v)
		}
		recompute(&out, params)

	case strings.HasPrefix(line, prefixThroughput):
		if v, ok := parseSuffixNumber(line); ok {
			out.Throughput = v
		}
		recompute(&out, params)

	case strings.HasPrefix(line, prefixSummary):
		applySummary(line, &out)
		recompute(&out, params)

	case strings.HasPrefix(line, prefixComplete):
		event = EventComplete
	}

	return out, event
}

// laneStatsKeys are the integer fields of a LANE_STATS line. Missing
// keys default to 0; a present but non-numeric value discards the
// whole line so no partial update is ever applied.
var laneStatsKeys = []string{"lane", "total", "car", "bus", "truck", "rickshaw", "bike"}

// applyLaneStats parses "LANE_STATS lane=1 total=10 car=8 ..." and
// overwrites the lane's total and per-class detail. An invalid or
// out-of-range lane number discards the whole line.
func applyLaneStats(line string, s *model.Stats) {
	kv, ok := parseKeyValues(line)
	if !ok {
		return
	}
	vals := make(map[string]int, len(laneStatsKeys))
	for _, key := range laneStatsKeys {
		v, present := kv[key]
		if !present {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return
		}
		vals[key] = n
	}
	lane := vals["lane"]
	if lane < 1 || lane > model.LaneCount {
		return
	}
	detail := model.LaneDetail{
		Total:    vals["total"],
		Car:      vals["car"],
		Bus:      vals["bus"],
		Truck:    vals["truck"],
		Rickshaw: vals["rickshaw"],
		Bike:     vals["bike"],
	}
	s.Lanes[lane] = detail.Total
	s.LaneDetails[lane] = detail
}

// applyLaneTotal parses "Lane <n>: ... Total: <count>" and overwrites
// the lane's total only, leaving the detail breakdown untouched.
func applyLaneTotal(line string, s *model.Stats) {
	parts := strings.Split(line, ":")
	if len(parts) < 3 {
		return
	}
	laneFields := strings.Fields(parts[0])
	if len(laneFields) < 2 {
		return
	}
	lane, err := strconv.Atoi(laneFields[1])
	if err != nil || lane < 1 || lane > model.LaneCount {
		return
	}
	total, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return
	}
	s.Lanes[lane] = total
}

// applySummary parses "SUMMARY total=.. time=.. throughput=.." with all
// keys optional. All present keys must parse or the whole line is
// discarded; derived metrics are recomputed by the caller either way.
func applySummary(line string, s *model.Stats) {
	kv, ok := parseKeyValues(line)
	if !ok {
		return
	}
	vals := make(map[string]float64, 3)
	for _, key := range []string{"total", "time", "throughput"} {
		v, present := kv[key]
		if !present {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return
		}
		vals[key] = f
	}
	if v, ok := vals["total"]; ok {
		s.TotalVehicles = int(v)
	}
	if v, ok := vals["time"]; ok {
		s.TotalTime = int(v)
	}
	if v, ok := vals["throughput"]; ok {
		s.Throughput = v
	}
}

// recompute refreshes the derived metrics. Triggered only by total
// time, throughput, and SUMMARY lines; a lone total-vehicles line does
// not recompute, matching the worker protocol's observed behavior.
func recompute(s *model.Stats, params model.RunParams) {
	if s.TotalVehicles > 0 {
		wait := float64(s.TotalTime) / float64(s.TotalVehicles)
		s.AverageWait = round2(math.Max(0, wait))
	} else {
		s.AverageWait = 0
	}

	capacity := params.SimTime * model.LaneCount
	if capacity < 1 {
		capacity = 1
	}
	ratio := math.Min(1.0, float64(s.TotalVehicles)/float64(capacity))
	s.TrafficDensity = round1(ratio * 100)
	s.CongestionLevel = s.TrafficDensity
}

// parseKeyValues splits "<PREFIX> k=v k=v ..." into a map. A token
// without exactly one "=" fails the whole line, mirroring the tolerant
// all-or-nothing parse of the worker protocol.
func parseKeyValues(line string) (map[string]string, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return nil, false
	}
	kv := make(map[string]string, len(tokens)-1)
	for _, tok := range tokens[1:] {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, false
		}
		kv[key] = value
	}
	return kv, true
}

// parseSuffixNumber extracts the number after the first ":" in lines
// like "Total vehicles passed: 103.0". Fractional values are accepted
// and truncated by integer consumers.
func parseSuffixNumber(line string) (float64, bool) {
	_, rest, ok := strings.Cut(line, ":")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
