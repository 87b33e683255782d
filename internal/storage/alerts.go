package storage

import (
	"context"
	"fmt"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// InsertAlert writes one alert row.
func (s *Store) InsertAlert(ctx context.Context, a types.Alert) error {
	var price *string
	if a.Price != nil {
		v := a.Price.String()
		price = &v
	}
	var dir, sys *string
	if a.Direction != "" {
		v := string(a.Direction)
		dir = &v
	}
	if a.System != "" {
		v := string(a.System)
		sys = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, timestamp, symbol, alert_type, direction, system, price, details, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Timestamp, a.Symbol, string(a.AlertType), dir, sys, price, a.Details, a.Acknowledged,
	)
	if err != nil {
		return fmt.Errorf("inserting alert for %s: %w", a.Symbol, err)
	}
	return nil
}

// RecentAlerts returns the newest alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]types.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, symbol, alert_type, direction, system, price::text, details, acknowledged
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var (
			a         types.Alert
			alertType string
			dir, sys  *string
			price     *string
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Symbol, &alertType, &dir, &sys, &price, &a.Details, &a.Acknowledged); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.AlertType = types.AlertType(alertType)
		if dir != nil {
			a.Direction = types.Direction(*dir)
		}
		if sys != nil {
			a.System = types.System(*sys)
		}
		p, err := parseOptDecimal(price, "price")
		if err != nil {
			return nil, err
		}
		a.Price = p
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert marks an alert handled.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("acknowledging alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}
