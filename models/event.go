package models

import (
	"strings"
	"time"
)

// EventKind is a user behavior signal that feeds interest scoring.
type EventKind string

const (
	EventClick    EventKind = "CLICK"
	EventLongView EventKind = "LONG_VIEW"
	EventCart     EventKind = "CART"
	EventOrder    EventKind = "ORDER"
)

var eventWeights = map[EventKind]float64{
	EventClick:    1.0,
	EventLongView: 2.0,
	EventCart:     5.0,
	EventOrder:    10.0,
}

// Weight returns the fixed score contribution of kind.
// Unknown kinds count as a click.
func Weight(kind EventKind) float64 {
	if w, ok := eventWeights[kind]; ok {
		return w
	}
	return eventWeights[EventClick]
}

// ParseEventKind maps user input onto a known kind.
func ParseEventKind(s string) (EventKind, bool) {
	kind := EventKind(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := eventWeights[kind]
	return kind, ok
}

// InterestEvent is one behavior event as carried on the interest stream.
type InterestEvent struct {
	EventID   string    `json:"eventId"`
	ActorID   string    `json:"actorId"`
	ProductID int64     `json:"productId"`
	Category  string    `json:"category"`
	Kind      EventKind `json:"eventKind"`
	Timestamp time.Time `json:"timestamp"`
}

// Weight resolves the event's weight from its kind.
func (e InterestEvent) Weight() float64 {
	return Weight(e.Kind)
}

// CategoryScore is one member of an actor's interest sorted set.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}
