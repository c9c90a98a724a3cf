package store

import (
	"context"
	"fmt"
	"time"

	"hyodream/api/database"
	"hyodream/api/logging"
	"hyodream/api/models"
	"hyodream/api/utils"
)

// AnalyticsStore archives processed interest events to ClickHouse and
// answers the stats endpoints from that archive.
type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

func (s *AnalyticsStore) InsertInterestEvents(ctx context.Context, events []models.InterestEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO interest_events (
			event_id, actor_id, product_id, category, event_kind, weight, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		ts := event.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		err := batch.Append(
			event.EventID,
			event.ActorID,
			event.ProductID,
			event.Category,
			string(event.Kind),
			event.Weight(),
			ts,
		)
		if err != nil {
			logging.Warn().Err(err).Str("event_id", event.EventID).Msg("error appending event to batch")
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	logging.Logger().Debug().Int("count", len(events)).Msg("archived interest events")
	return nil
}

func (s *AnalyticsStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, kindFilter string) ([]models.CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []any{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByKind := kindFilter != ""

	if isFilteringByKind {
		selectCols += ", event_kind"
		groupByCols += ", event_kind"
		whereClause += " AND event_kind = ?"
		args = append(args, kindFilter)
		orderByCols += ", event_kind ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM interest_events
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	var results []models.CountByTime
	for rows.Next() {
		var (
			bucket time.Time
			count  uint64
			kind   string
			result models.CountByTime
		)

		if isFilteringByKind {
			if err := rows.Scan(&bucket, &count, &kind); err != nil {
				logging.Warn().Err(err).Msg("error scanning event count row")
				continue
			}
			k := models.EventKind(kind)
			result.EventKind = &k
		} else {
			if err := rows.Scan(&bucket, &count); err != nil {
				logging.Warn().Err(err).Msg("error scanning event count row")
				continue
			}
		}

		result.Time = bucket
		result.Count = count
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts over time query: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetUniqueActorsOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.CountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(actor_id) AS unique_actors
		FROM interest_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique actors over time: %w", err)
	}
	defer rows.Close()

	var results []models.CountByTime
	for rows.Next() {
		var bucket time.Time
		var actors uint64
		if err := rows.Scan(&bucket, &actors); err != nil {
			logging.Warn().Err(err).Msg("error scanning unique actors row")
			continue
		}
		results = append(results, models.CountByTime{Time: bucket, Count: actors})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique actors: %w", err)
	}

	return results, nil
}

func (s *AnalyticsStore) GetTopCategories(ctx context.Context, start, end time.Time, limit uint64) ([]models.TopCategoryResult, error) {
	if limit == 0 {
		limit = 10
	}

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT category, count() AS events, sum(weight) AS total_weight
		FROM interest_events
		WHERE category != '' AND timestamp >= ? AND timestamp <= ?
		GROUP BY category
		ORDER BY total_weight DESC
		LIMIT ?
	`, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	var results []models.TopCategoryResult
	for rows.Next() {
		var r models.TopCategoryResult
		if err := rows.Scan(&r.Category, &r.Events, &r.Weight); err != nil {
			logging.Warn().Err(err).Msg("error scanning top category row")
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top categories: %w", err)
	}

	return results, nil
}
