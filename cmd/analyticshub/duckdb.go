package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// duckDBStore implements the store interface on a local DuckDB file, for
// deployments that keep analytics on-premise.
type duckDBStore struct {
	db *sql.DB
}

func newDuckDBStore(path string) (*duckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %s", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS system_metrics (
			version INTEGER,
			timestamp TIMESTAMP,
			type INTEGER,
			payload VARCHAR,
			node_id VARCHAR
		)`); err != nil {
		return nil, fmt.Errorf("creating metrics table: %s", err)
	}
	return &duckDBStore{db: db}, nil
}

// insert inserts the payload of a request into DuckDB.
func (s *duckDBStore) insert(ctx context.Context, req request) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %s", err)
	}
	for _, m := range req.Metrics {
		payload, err := m.Serialize()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("serialize: %s", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO system_metrics (version, timestamp, type, payload, node_id) VALUES (?, ?, ?, ?, ?)`,
			m.Version, m.Timestamp, int(m.Type), string(payload), req.NodeID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting metric: %s", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %s", err)
	}
	return nil
}

func (s *duckDBStore) close() error {
	return s.db.Close()
}
