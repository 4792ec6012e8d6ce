package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresHistorySink persists dispatch records for durability across
// restarts, mirroring the in-memory ring the Dispatcher always keeps.
type PostgresHistorySink struct {
	pool *pgxpool.Pool
}

// NewPostgresHistorySink constructs a PostgresHistorySink.
func NewPostgresHistorySink(pool *pgxpool.Pool) *PostgresHistorySink {
	return &PostgresHistorySink{pool: pool}
}

// Record inserts one dispatch record.
func (s *PostgresHistorySink) Record(ctx context.Context, rec DispatchRecord) error {
	query := `
		INSERT INTO alert_dispatch_history (subscriber_id, alerts, dispatched_at)
		VALUES ($1, $2, $3)
	`

	alertsJSON, err := json.Marshal(rec.Alerts)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, query, rec.SubscriberID, alertsJSON, rec.At)
	return err
}

// RecentForSubscriber returns the most recent dispatch records for one
// subscriber, newest first, bounded by limit.
func (s *PostgresHistorySink) RecentForSubscriber(ctx context.Context, subscriberID string, limit int) ([]DispatchRecord, error) {
	query := `
		SELECT subscriber_id, alerts, dispatched_at
		FROM alert_dispatch_history
		WHERE subscriber_id = $1
		ORDER BY dispatched_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, subscriberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatchRecord
	for rows.Next() {
		var (
			rec        DispatchRecord
			alertsJSON []byte
			at         time.Time
		)
		if err := rows.Scan(&rec.SubscriberID, &alertsJSON, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(alertsJSON, &rec.Alerts); err != nil {
			return nil, err
		}
		rec.At = at
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ensure PostgresHistorySink implements HistorySink.
var _ HistorySink = (*PostgresHistorySink)(nil)
