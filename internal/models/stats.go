package models

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
	Level    int    `json:"level"`
	Club     string `json:"club"`
}

// AttendanceSummary aggregates attendance records.
type AttendanceSummary struct {
	Total      int            `json:"total"`
	Counts     map[Status]int `json:"counts"`
	Rate       float64        `json:"rate"`
	Grade      string         `json:"grade"`
	Streak     int            `json:"streak"`
	Pattern    []string       `json:"pattern,omitempty"`
	Prediction *Prediction    `json:"prediction,omitempty"`
}

// Prediction is the attendance outlook derived from recent records.
type Prediction struct {
	Rate    float64 `json:"rate"`
	Outlook string  `json:"outlook"`
}

// RatePoint is a labelled attendance rate, used for weekday, club and daily breakdowns.
type RatePoint struct {
	Label string  `json:"label"`
	Rate  float64 `json:"rate"`
	Total int     `json:"total"`
}
