// Package restorer rebuilds a local database file from a published backup.
package restorer

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/viviendahub/go-viviendahub/pkg/backup"
)

// BackupRestorer is responsible for restoring a database from a backup file.
type BackupRestorer struct {
	url, dst string
}

// NewBackupRestorer creates a new BackupRestorer that restores the backup
// found at url into the database file at dst.
func NewBackupRestorer(url string, dst string) *BackupRestorer {
	return &BackupRestorer{
		url: url,
		dst: dst,
	}
}

// Restore restores a database from a backup file URL.
func (br *BackupRestorer) Restore() error {
	compressed := fmt.Sprintf("%s.restore.zst", br.dst)
	if err := br.downloadBackupFile(br.url, compressed); err != nil {
		return fmt.Errorf("download backup file: %s", err)
	}

	decompressed, err := backup.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("decompress: %s", err)
	}

	if err := br.load(decompressed); err != nil {
		return fmt.Errorf("loading the database: %s", err)
	}

	if err := br.cleanUp(compressed, decompressed); err != nil {
		return fmt.Errorf("cleaning up: %s", err)
	}

	return nil
}

func (br *BackupRestorer) downloadBackupFile(url, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating backup file: %s", err)
	}
	defer func() {
		_ = out.Close()
	}()

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("downloading: %s", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	_, err = io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("io copy: %s", err)
	}

	return nil
}

func (br *BackupRestorer) load(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %s", err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(br.dst)
	if err != nil {
		return fmt.Errorf("creating file: %s", err)
	}
	defer func() {
		_ = out.Close()
	}()

	_, err = io.Copy(out, in)
	if err != nil {
		return fmt.Errorf("copying file: %s", err)
	}
	return nil
}

func (br *BackupRestorer) cleanUp(files ...string) error {
	db, err := sql.Open("sqlite3", br.dst)
	if err != nil {
		return fmt.Errorf("opening restored database: %s", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// in-flight deliveries from before the backup must not be re-sent
	if _, err := db.Exec("DELETE FROM notification_deliveries WHERE status = 'pending';"); err != nil {
		return fmt.Errorf("deleting pending rows from notification_deliveries: %s", err)
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("removing file: %s", err)
		}
	}

	return nil
}
