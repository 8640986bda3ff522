package db

import (
	"context"
	"fmt"
)

// DeskStats counts the work on the reading-room desk.
type DeskStats struct {
	DatabaseSizeBytes   int64          `json:"database_size_bytes"`
	DatabaseConnections int            `json:"database_connections"`
	HoldingsByStatus    map[string]int `json:"holdings_by_status"`
	OpenReservations    int            `json:"open_reservations"`
	OpenReproductions   int            `json:"open_reproductions"`
	HoldsPending        int            `json:"holds_pending"`
}

// GetDatabaseSize returns the size of the database in bytes.
func (db *DB) GetDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := db.Pool.QueryRow(ctx, `
		SELECT pg_database_size(current_database())
	`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("get database size: %w", err)
	}
	return size, nil
}

// GetActiveConnections returns the count of active database connections.
func (db *DB) GetActiveConnections(ctx context.Context) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_stat_activity
		WHERE datname = current_database()
		AND state = 'active'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("get active connections: %w", err)
	}
	return count, nil
}

// GetDeskStats collects database and workload figures for the system health view.
func (db *DB) GetDeskStats(ctx context.Context) (*DeskStats, error) {
	stats := &DeskStats{HoldingsByStatus: make(map[string]int)}

	var err error
	if stats.DatabaseSizeBytes, err = db.GetDatabaseSize(ctx); err != nil {
		return nil, err
	}
	if stats.DatabaseConnections, err = db.GetActiveConnections(ctx); err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx, "SELECT status, COUNT(*) FROM holdings GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count holdings by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan holding count: %w", err)
		}
		stats.HoldingsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count holdings by status: %w", err)
	}

	err = db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT request_id) FILTER (WHERE kind = 'reservation' AND active),
			COUNT(DISTINCT request_id) FILTER (WHERE kind = 'reproduction' AND active),
			COUNT(*) FILTER (WHERE active AND on_hold AND NOT completed)
		FROM holding_claims
	`).Scan(&stats.OpenReservations, &stats.OpenReproductions, &stats.HoldsPending)
	if err != nil {
		return nil, fmt.Errorf("count open requests: %w", err)
	}
	return stats, nil
}
