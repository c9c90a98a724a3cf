package models

import "time"

// CountByTime is one bucket of an event time series.
type CountByTime struct {
	Time      time.Time  `json:"time"`
	EventKind *EventKind `json:"eventKind,omitempty"`
	Count     uint64     `json:"count"`
}

type TopCategoryResult struct {
	Category string  `json:"category"`
	Events   uint64  `json:"events"`
	Weight   float64 `json:"weight"`
}
