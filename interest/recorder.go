// Package interest turns behavior events into per-actor category scores.
//
// Recorder appends events to the stream on the request path. Aggregator is
// the standing consumer that folds them into sorted sets.
package interest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hyodream/api/metrics"
	"hyodream/api/models"
)

var ErrNoActor = errors.New("interest event without actor")

// Log is the append side of the event stream.
type Log interface {
	Append(ctx context.Context, ev models.InterestEvent) (string, error)
}

type Recorder struct {
	log Log
	now func() time.Time
}

func NewRecorder(log Log) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// Record appends one event and returns without waiting for aggregation.
// An unknown kind is recorded as-is and weighted as a click downstream.
func (r *Recorder) Record(ctx context.Context, actorID string, productID int64, category string, kind models.EventKind) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ErrNoActor
	}
	ev := models.InterestEvent{
		EventID:   uuid.NewString(),
		ActorID:   actorID,
		ProductID: productID,
		Category:  strings.TrimSpace(category),
		Kind:      kind,
		Timestamp: r.now().UTC(),
	}
	if _, err := r.log.Append(ctx, ev); err != nil {
		metrics.InterestEventsRecorded.WithLabelValues(string(kind), "error").Inc()
		return err
	}
	metrics.InterestEventsRecorded.WithLabelValues(string(kind), "ok").Inc()
	return nil
}
