package impl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viviendahub/go-viviendahub/tests"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(tests.Sqlite3URI())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestMigrationCreatesSchema(t *testing.T) {
	t.Parallel()

	s := newStore(t)

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	require.NoError(t, err)
	defer func() { require.NoError(t, rows.Close()) }()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{
		"contracts", "contract_sequences", "contract_history", "contract_invitations",
		"contract_objections", "contract_signatures", "contract_guarantees",
		"match_requests", "search_criteria",
		"notifications", "notification_deliveries", "notification_preferences",
		"notification_digests", "notification_analytics",
	} {
		require.True(t, tables[table], "table %s missing", table)
	}
}
