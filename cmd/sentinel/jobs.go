package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/estatehub/sentinel/internal/jobs"
	"github.com/estatehub/sentinel/internal/objectstore"
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Event retention commands",
}

var retentionRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete one batch of expired events",
	Long: `Delete up to retention.batch_size events older than retention.max_age,
oldest first. Run it repeatedly to drain a larger backlog.`,
	RunE: runRetention,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Event log export commands",
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Snapshot the event log to object storage",
	RunE:  runExport,
}

func init() {
	retentionCmd.AddCommand(retentionRunCmd)
	exportCmd.AddCommand(exportRunCmd)
	rootCmd.AddCommand(retentionCmd, exportCmd)
}

func runRetention(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := jobs.NewRunner(jobs.NameRetention, 0, jobs.NewRetentionJob(a.store, cfg.Retention, logger).Func(), logger)
	res, err := runner.RunNow(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	objects, err := a.objects(ctx)
	if err != nil {
		return err
	}
	if objects == nil {
		return fmt.Errorf("%w: set export.s3.bucket", objectstore.ErrNotConfigured)
	}

	runner := jobs.NewRunner(jobs.NameExport, 0, jobs.NewExportJob(a.store, objects, cfg.Export.Collections, logger).Func(), logger)
	res, err := runner.RunNow(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
