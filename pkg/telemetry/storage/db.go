package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/viviendahub/go-viviendahub/pkg/telemetry"
	"github.com/viviendahub/go-viviendahub/pkg/telemetry/storage/migrations"
)

// TelemetryDatabase implements the MetricStore interface and provides storage for a metric.
type TelemetryDatabase struct {
	log   zerolog.Logger
	sqlDB *sql.DB
}

// New returns a new TelemetryDatabase backed by database/sql.
func New(dbURI string) (*TelemetryDatabase, error) {
	sqlDB, err := otelsql.Open("sqlite3", dbURI, otelsql.WithAttributes(
		attribute.String("name", "telemetrydb"),
	))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %s", err)
	}
	sqlDB.SetMaxIdleConns(1)
	if err := otelsql.RegisterDBStatsMetrics(sqlDB, otelsql.WithAttributes(
		attribute.String("name", "telemetrydb"),
	)); err != nil {
		return nil, fmt.Errorf("registering dbstats: %s", err)
	}

	log := logger.With().
		Str("component", "telemetrydb").
		Logger()

	db := &TelemetryDatabase{
		log:   log,
		sqlDB: sqlDB,
	}

	if err := db.executeMigration(); err != nil {
		return nil, fmt.Errorf("initializing db connection: %s", err)
	}

	return db, nil
}

// StoreMetric persists a metric.
func (db *TelemetryDatabase) StoreMetric(ctx context.Context, metric telemetry.Metric) error {
	payloadJSON, err := metric.Serialize()
	if err != nil {
		return fmt.Errorf("marshal json: %s", err)
	}

	_, err = db.sqlDB.ExecContext(ctx,
		`INSERT INTO system_metrics ("timestamp", "type", "payload", "published") VALUES (?1, ?2, ?3, ?4)`,
		metric.Timestamp.UnixMilli(), metric.Type, payloadJSON, 0,
	)
	if err != nil {
		return fmt.Errorf("insert into system_metrics: %s", err)
	}

	return nil
}

// FetchUnpublishedMetrics returns up to amount not yet published metrics.
func (db *TelemetryDatabase) FetchUnpublishedMetrics(ctx context.Context, amount int) ([]telemetry.Metric, error) {
	rows, err := db.sqlDB.QueryContext(ctx,
		`SELECT rowid, "timestamp", "type", "payload" FROM system_metrics WHERE published = 0 ORDER BY rowid LIMIT ?1`,
		amount,
	)
	if err != nil {
		return nil, fmt.Errorf("query unpublished metrics: %s", err)
	}
	defer func() { _ = rows.Close() }()

	var metrics []telemetry.Metric
	for rows.Next() {
		var m telemetry.Metric
		var timestampMilli int64
		var payload []byte
		if err := rows.Scan(&m.RowID, &timestampMilli, &m.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan metric row: %s", err)
		}
		m.Timestamp = time.UnixMilli(timestampMilli).UTC()
		var decoded interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, fmt.Errorf("unmarshal metric payload: %s", err)
		}
		m.Payload = decoded
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metric rows: %s", err)
	}
	return metrics, nil
}

// MarkAsPublished flags the given metric rows as published.
func (db *TelemetryDatabase) MarkAsPublished(ctx context.Context, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	tx, err := db.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %s", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE system_metrics SET published = 1 WHERE rowid = ?1`, rowID,
		); err != nil {
			return fmt.Errorf("update published flag: %s", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %s", err)
	}
	return nil
}

// Close closes the database.
func (db *TelemetryDatabase) Close() error {
	if err := db.sqlDB.Close(); err != nil {
		return fmt.Errorf("close: %s", err)
	}

	return nil
}

// executeMigration runs db migrations over the database's own pool, so an
// in-memory database keeps its schema after the migration finishes.
func (db *TelemetryDatabase) executeMigration() error {
	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating source driver: %s", err)
	}
	dbDriver, err := migratesqlite3.WithInstance(db.sqlDB, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating database driver: %s", err)
	}

	// m.Close() is skipped on purpose, it would close the pool.
	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	version, dirty, err := m.Version()
	db.log.Info().
		Uint("dbVersion", version).
		Bool("dirty", dirty).
		Err(err).
		Msg("database migration executed")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %s", err)
	}

	return nil
}
