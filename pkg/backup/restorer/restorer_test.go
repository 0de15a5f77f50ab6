package restorer

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/viviendahub/go-viviendahub/pkg/backup"
)

func TestRestorer(t *testing.T) {
	t.Parallel()

	compressed := createBackupFixture(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(compressed)
		require.NoError(t, err)
		defer func() {
			_ = f.Close()
		}()
		_, err = io.Copy(w, f)
		require.NoError(t, err)
	}))
	defer ts.Close()

	dst := path.Join(t.TempDir(), "restored.db")
	br := NewBackupRestorer(ts.URL, dst)
	require.NoError(t, br.Restore())

	db, err := sql.Open("sqlite3", dst)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var count int
	err = db.QueryRow("SELECT count(1) FROM notifications").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// pending deliveries are purged, delivered ones survive
	err = db.QueryRow("SELECT count(1) FROM notification_deliveries WHERE status = 'pending'").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	err = db.QueryRow("SELECT count(1) FROM notification_deliveries").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

// createBackupFixture writes a small database containing one notification,
// one pending delivery and one delivered delivery, then compresses it.
func createBackupFixture(t *testing.T) string {
	t.Helper()

	dbPath := path.Join(t.TempDir(), "database.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE notifications (id TEXT PRIMARY KEY);
		CREATE TABLE notification_deliveries (
			id TEXT PRIMARY KEY,
			notification_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL
		);
		INSERT INTO notifications VALUES ('n1');
		INSERT INTO notification_deliveries VALUES ('d1', 'n1', 'email', 'pending');
		INSERT INTO notification_deliveries VALUES ('d2', 'n1', 'in_app', 'delivered');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	compressedPath, err := backup.Compress(dbPath)
	require.NoError(t, err)
	return compressedPath
}
