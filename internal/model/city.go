package model

// CityRecord is one row of the static city congestion dataset.
type CityRecord struct {
	Slug               string   `json:"slug"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	Classification     string   `json:"classification"`
	PopulationMillions float64  `json:"population_millions"`
	AvgPeakSpeedKmph   float64  `json:"avg_peak_speed_kmph"`
	AvgDelayMinutes    float64  `json:"avg_delay_minutes"`
	VehicleMix         string   `json:"vehicle_mix"`
	Issues             []string `json:"issues"`
	RecommendedActions []string `json:"recommended_actions"`
	ImageURL           string   `json:"image_url"`
	ImageCredit        string   `json:"image_credit"`
	ImageSource        string   `json:"image_source"`
	LandmarkName       string   `json:"landmark_name"`
	LandmarkURL        string   `json:"landmark_url"`
}

// Suitability is the composite simulation-suitability score for a city.
type Suitability struct {
	Score     float64  `json:"score"`
	Priority  string   `json:"priority"`
	Rationale []string `json:"rationale"`
}

// CityPayload is a CityRecord enriched with its suitability score and
// any image metadata resolved from the landmark cache.
type CityPayload struct {
	CityRecord
	Suitability Suitability `json:"suitability"`
}

// HomeMetrics are the aggregate dataset figures shown on the home page.
type HomeMetrics struct {
	Density             int     `json:"density"`
	AvgWait             int     `json:"avg_wait"`
	TravelSpeed         float64 `json:"travel_speed"`
	CityCount           int     `json:"city_count"`
	PriorityHighPct     int     `json:"priority_high_pct"`
	PriorityMediumPct   int     `json:"priority_medium_pct"`
	PriorityModeratePct int     `json:"priority_moderate_pct"`
}
