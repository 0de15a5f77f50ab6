// Package impl implements every sqlstore port on a single SQLite database.
package impl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/viviendahub/go-viviendahub/pkg/metrics"
	"github.com/viviendahub/go-viviendahub/pkg/sqlstore/impl/migrations"
	"go.opentelemetry.io/otel/attribute"
)

// Payload sections and other open-schema columns travel as JSON text. Numbers
// decode as json.Number so monetary amounts never pass through binary floats.
var payloadJSON = jsoniter.Config{UseNumber: true}.Froze()

// Store implements every persistence port on one SQLite database.
type Store struct {
	log zerolog.Logger
	db  *sql.DB
}

// NewStore opens the database, registers its metrics and runs the schema
// migrations.
func NewStore(dbURI string) (*Store, error) {
	attrs := append([]attribute.KeyValue{
		attribute.String("name", "sqlitedb"),
	}, metrics.BaseAttrs...)
	db, err := otelsql.Open("sqlite3", dbURI, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %s", err)
	}
	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(
		attribute.String("name", "sqlitedb"),
	)); err != nil {
		return nil, fmt.Errorf("registering dbstats: %s", err)
	}

	log := logger.With().
		Str("component", "sqlitedb").
		Logger()

	s := &Store{
		log: log,
		db:  db,
	}
	if err := s.executeMigration(); err != nil {
		return nil, fmt.Errorf("initializing db connection: %s", err)
	}

	return s, nil
}

// executeMigration runs the embedded migrations over the store's own pool.
// Migrating through a separate connection would leave an in-memory database
// without its schema: the database only lives as long as some connection to
// it stays open.
func (s *Store) executeMigration() error {
	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating source driver: %s", err)
	}
	dbDriver, err := migratesqlite3.WithInstance(s.db, &migratesqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating database driver: %s", err)
	}

	// m.Close() is skipped on purpose, it would close the store's pool.
	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	version, dirty, err := m.Version()
	s.log.Info().
		Uint("dbVersion", version).
		Bool("dirty", dirty).
		Err(err).
		Msg("database migration executed")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %s", err)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing db: %s", err)
	}
	return nil
}

// withTx runs f inside one transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("opening tx: %s", err)
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("rolling back tx")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %s", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// placeholders renders "?, ?, ..." for n bound values.
func placeholders(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	return b.String()
}

// columnCount counts the columns of a comma separated column list.
func columnCount(columns string) int {
	return strings.Count(columns, ",") + 1
}

// Timestamps are stored as integer nanoseconds since the epoch so that
// history integrity hashes recompute identically after a round trip.

func tsOf(t time.Time) int64 {
	return t.UnixNano()
}

func tsPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromTS(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

func fromTSPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromTS(v.Int64)
	return &t
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := payloadJSON.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("marshaling json column: %s", err)
	}
	return raw, nil
}

func unmarshalJSON(raw sql.NullString, dst interface{}) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := payloadJSON.UnmarshalFromString(raw.String, dst); err != nil {
		return fmt.Errorf("unmarshaling json column: %s", err)
	}
	return nil
}

func nullableJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func uuidPtr(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parsing uuid column: %s", err)
	}
	return id, nil
}

func parseUUIDPtr(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := parseUUID(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
