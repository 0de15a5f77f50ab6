package main

import (
	"github.com/spf13/cobra"
)

var cliName = "toolkit"

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "toolkit is a CLI for viviendahub operators",
	Long:  `toolkit is a CLI for viviendahub operators executing mundane tasks`,
	Args:  cobra.ExactArgs(0),
}

func main() {
	rootCmd.Execute() //nolint
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(notifyCmd)

	tokenCmd.AddCommand(tokenNewCmd)
	tokenCmd.AddCommand(tokenHashCmd)
	tokenCmd.AddCommand(tokenCheckCmd)

	backupNowCmd.Flags().String("db", "viviendahub.db", "path of the database file to back up")
	backupNowCmd.Flags().String("dir", "backups", "directory where the backup file is written")
	backupNowCmd.Flags().Bool("vacuum", true, "run VACUUM INTO instead of a plain copy")
	backupNowCmd.Flags().Bool("compress", true, "compress the backup file with zstd")
	backupNowCmd.Flags().Bool("prune", false, "prune old backup files")
	backupNowCmd.Flags().Int("keep", 5, "how many backup files pruning keeps")
	backupCmd.AddCommand(backupNowCmd)

	backupRestoreCmd.Flags().String("db", "viviendahub.db", "path the backup is restored to")
	backupCmd.AddCommand(backupRestoreCmd)

	notifyWebhookCmd.Flags().String("url", "", "webhook endpoint to probe")
	notifyWebhookCmd.Flags().String("bearer-token", "", "bearer token sent with the probe")
	notifyCmd.AddCommand(notifyWebhookCmd)
}
