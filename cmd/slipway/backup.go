package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage pre-deployment backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Capture a backup of the configured components",
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE:  runBackupList,
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify ID",
	Short: "Check that a backup is complete and restorable",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupVerify,
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups past the retention policy",
	RunE:  runBackupPrune,
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupPruneCmd)

	backupCreateCmd.Flags().StringArray("component", nil, "Capture only this component (repeatable)")
	backupPruneCmd.Flags().Int("retain-count", 0, "Keep the newest N complete backups (default from config)")
	backupPruneCmd.Flags().Int("retain-days", 0, "Also drop backups older than this many days (default from config)")

	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	components, _ := cmd.Flags().GetStringArray("component")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Backing up %s...\n", app.cfg.Service)
	b, err := app.backups.Create(ctx, components...)
	if err != nil {
		return fmt.Errorf("backup failed: %v", err)
	}

	fmt.Printf("✓ Backup created: %s\n", b.ID)
	fmt.Printf("  Directory: %s\n", b.Dir)
	fmt.Printf("  Components: %s\n", strings.Join(b.Meta.Components, ", "))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	backups, err := app.backups.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	fmt.Printf("%-30s %-20s %-11s %s\n", "ID", "CREATED", "COMPLETE", "COMPONENTS")
	for _, b := range backups {
		complete := "yes"
		if !b.Complete {
			complete = "INCOMPLETE"
		}
		fmt.Printf("%-30s %-20s %-11s %s\n",
			b.ID,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			complete,
			strings.Join(b.Meta.Components, ", "))
	}
	return nil
}

func runBackupVerify(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	id := args[0]
	if err := app.backups.Validate(id); err != nil {
		return fmt.Errorf("backup %s is not restorable: %v", id, err)
	}

	fmt.Printf("✓ Backup %s is complete and restorable\n", id)
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	retainCount, _ := cmd.Flags().GetInt("retain-count")
	retainDays, _ := cmd.Flags().GetInt("retain-days")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer app.broker.Stop()

	if retainCount == 0 {
		retainCount = app.cfg.Backup.RetainCount
	}
	if retainDays == 0 {
		retainDays = app.cfg.Backup.RetainDays
	}

	pruned, err := app.backups.Prune(retainCount, retainDays)
	if err != nil {
		return err
	}
	if len(pruned) == 0 {
		fmt.Println("Nothing to prune")
		return nil
	}

	for _, id := range pruned {
		fmt.Printf("  deleted %s\n", id)
	}
	fmt.Printf("✓ Pruned %d backups\n", len(pruned))
	return nil
}
