package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viviendahub/go-viviendahub/pkg/backup"
	"github.com/viviendahub/go-viviendahub/pkg/backup/restorer"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Offers database backup utilities",
	Long:  `Offers database backup utilities`,
	Args:  cobra.ExactArgs(1),
}

var backupNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Backs up the database file right away",
	Long:  `Backs up the database file right away`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")
		dir, _ := cmd.Flags().GetString("dir")
		vacuum, _ := cmd.Flags().GetBool("vacuum")
		compress, _ := cmd.Flags().GetBool("compress")
		prune, _ := cmd.Flags().GetBool("prune")
		keep, _ := cmd.Flags().GetInt("keep")

		backuper, err := backup.NewBackuper(db, dir,
			backup.WithVacuum(vacuum),
			backup.WithCompression(compress),
			backup.WithPruning(prune),
			backup.WithKeepFiles(keep),
		)
		if err != nil {
			return fmt.Errorf("creating backuper: %s", err)
		}
		if err := backuper.Init(); err != nil {
			return fmt.Errorf("initializing backuper: %s", err)
		}
		result, err := backuper.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup: %s", err)
		}
		if err := backuper.Close(); err != nil {
			return fmt.Errorf("closing backuper: %s", err)
		}

		fmt.Printf("Backup written to %s (%d bytes, %dms)\n",
			result.Path, result.Size, result.ElapsedTime.Milliseconds())
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <url>",
	Short: "Restores the database from a backup file URL",
	Long:  `Restores the database from a backup file URL`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _ := cmd.Flags().GetString("db")

		br := restorer.NewBackupRestorer(args[0], db)
		if err := br.Restore(); err != nil {
			return fmt.Errorf("restore: %s", err)
		}
		fmt.Printf("Database restored to %s\n", db)
		return nil
	},
}
