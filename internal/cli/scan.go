package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/scan"
	"github.com/roach88/binderscan/internal/store"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Database      string
	Firmware      string
	Brand         string
	Product       string
	SecurityPatch string
	Release       int
	Baseline      bool
	DryRun        bool

	// IDGenerator and Clock override run ids and timing (for testing).
	IDGenerator scan.IDGenerator
	Clock       scan.Clock
}

// ScanSummary is the outcome of one scan.
type ScanSummary struct {
	RunID        string         `json:"run_id"`
	Firmware     string         `json:"firmware"`
	FirmwareID   int64          `json:"firmware_id"`
	Baseline     bool           `json:"baseline"`
	DryRun       bool           `json:"dry_run"`
	Services     int            `json:"services"`
	Transactions int            `json:"transactions"`
	Failures     int            `json:"failures"`
	ByStatus     map[string]int `json:"by_status"`
	Elapsed      string         `json:"elapsed"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <program>",
		Short: "Scan every registered service and record the results",
		Long: `Discover the Binder services a program registers, recover each one's
dispatch table and store services and transactions in a SQLite database.

A firmware that is not a baseline is compared against the baseline of the
same release; rows it shares with the baseline are flagged so that report
--new shows only what changed. Rescanning a firmware replaces its rows.

Exit codes:
  0 - Scan completed with no failures
  1 - Scan completed, some services or codes failed
  2 - Command error (missing baseline, database error, etc.)

Examples:
  binderscan scan ./aosp.yaml --db scan.db --firmware aosp/14 --release 14 --baseline
  binderscan scan ./vendor.yaml --db scan.db --firmware vendor/14 --release 14
  binderscan scan ./vendor.yaml --db scan.db --firmware vendor/14 --release 14 --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Firmware, "firmware", "", "firmware fingerprint (required)")
	cmd.Flags().StringVar(&opts.Brand, "brand", "", "firmware brand")
	cmd.Flags().StringVar(&opts.Product, "product", "", "firmware product")
	cmd.Flags().StringVar(&opts.SecurityPatch, "security-patch", "", "firmware security patch level")
	cmd.Flags().IntVar(&opts.Release, "release", 0, "OS release number")
	cmd.Flags().BoolVar(&opts.Baseline, "baseline", false, "record this firmware as the baseline of its release")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "analyse without writing services or transactions")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("firmware")

	return cmd
}

func runScan(opts *ScanOptions, programPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr())

	p, err := loadProgram(programPath, cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("opening database", "path", opts.Database, "dry_run", opts.DryRun)
	st, err := store.Open(opts.Database, store.WithDryRun(opts.DryRun))
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanOpts := []scan.Option{
		scan.WithConfig(cfg.Scan),
		scan.WithLogger(logger),
		scan.WithResolver(newResolver(cfg, logger)),
		scan.WithSummarizer(newSummarizer(p, cfg, logger)),
	}
	if opts.IDGenerator != nil {
		scanOpts = append(scanOpts, scan.WithIDGenerator(opts.IDGenerator))
	}
	if opts.Clock != nil {
		scanOpts = append(scanOpts, scan.WithClock(opts.Clock))
	}

	report, err := scan.New(p, scanOpts...).Run(ctx, st, store.Firmware{
		Fingerprint:   opts.Firmware,
		Brand:         opts.Brand,
		Product:       opts.Product,
		SecurityPatch: opts.SecurityPatch,
		Release:       opts.Release,
		Path:          programPath,
		IsBaseline:    opts.Baseline,
	})
	if err != nil {
		if ctx.Err() != nil {
			return WrapExitError(ExitCommandError, "scan interrupted", context.Cause(ctx))
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scan failed", err)
	}

	summary := summarizeScan(report, opts.DryRun)
	if opts.Format == "json" {
		if err := formatter.encode(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID}); err != nil {
			return err
		}
	} else {
		printScanText(cmd, summary)
	}

	if summary.Failures > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d failure(s)", summary.Failures))
	}
	return nil
}

func summarizeScan(r *scan.Report, dryRun bool) ScanSummary {
	byStatus := make(map[string]int)
	for status, n := range r.ByStatus() {
		byStatus[string(status)] = n
	}
	return ScanSummary{
		RunID:        r.RunID,
		Firmware:     r.Firmware.Fingerprint,
		FirmwareID:   r.Firmware.ID,
		Baseline:     r.Firmware.IsBaseline,
		DryRun:       dryRun,
		Services:     r.Services,
		Transactions: r.Transactions,
		Failures:     r.Failures,
		ByStatus:     byStatus,
		Elapsed:      r.Elapsed.Round(time.Millisecond).String(),
	}
}

func printScanText(cmd *cobra.Command, s ScanSummary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scan %s of %s\n", s.RunID, s.Firmware)
	fmt.Fprintf(w, "  services:     %s\n", humanize.Comma(int64(s.Services)))
	fmt.Fprintf(w, "  transactions: %s\n", humanize.Comma(int64(s.Transactions)))
	fmt.Fprintf(w, "  failures:     %s\n", humanize.Comma(int64(s.Failures)))

	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "    %-14s %s\n", status, humanize.Comma(int64(s.ByStatus[status])))
	}
	fmt.Fprintf(w, "  elapsed:      %s\n", s.Elapsed)
	if s.DryRun {
		fmt.Fprintln(w, "  (dry run: services and transactions not written)")
	}
}
