package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/querysql"
	"github.com/roach88/binderscan/internal/store"
	"github.com/roach88/binderscan/internal/summary"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Firmware string
	Service  string
	Kind     string
	Code     int64
	Status   string
	NewOnly  bool
	Services bool   // list services instead of transactions
	Program  string // program for --callees
	Callees  int    // callee expansion depth, 0 disables
}

// ReportRow is one transaction in a report.
type ReportRow struct {
	Service    string   `json:"service"`
	Code       int64    `json:"code"`
	Kind       string   `json:"kind"`
	Status     string   `json:"status"`
	Callee     string   `json:"callee"`
	IsEmpty    bool     `json:"is_empty"`
	Chain      []string `json:"chain,omitempty"`
	Error      string   `json:"error,omitempty"`
	InBaseline *bool    `json:"in_baseline,omitempty"`
	Callees    []string `json:"callees,omitempty"`
}

// ServiceRow is one service in a report.
type ServiceRow struct {
	Name          string `json:"name"`
	ClassName     string `json:"class"`
	ConcreteClass string `json:"concrete_class,omitempty"`
	Status        string `json:"status"`
	EntryPoint    string `json:"entry_point,omitempty"`
	InBaseline    *bool  `json:"in_baseline,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Query recorded scan results",
		Long: `List the transactions (or, with --services, the services) recorded for
a firmware. Filters combine; --new keeps only rows absent from the
baseline of the firmware's release.

With --callees N and --program, each standard transaction also lists the
methods reachable from its callee within N call levels.

Examples:
  binderscan report --db scan.db --firmware vendor/14
  binderscan report --db scan.db --firmware vendor/14 --kind custom --new
  binderscan report --db scan.db --firmware vendor/14 --services --status parse_error
  binderscan report --db scan.db --firmware vendor/14 --service foo --callees 2 --program vendor.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Firmware, "firmware", "", "firmware fingerprint (required)")
	cmd.Flags().StringVar(&opts.Service, "service", "", "only this service")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only standard or custom transactions")
	cmd.Flags().Int64Var(&opts.Code, "code", -1, "only this request code")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only rows with this status")
	cmd.Flags().BoolVar(&opts.NewOnly, "new", false, "only rows absent from the baseline")
	cmd.Flags().BoolVar(&opts.Services, "services", false, "list services instead of transactions")
	cmd.Flags().StringVar(&opts.Program, "program", "", "program to expand callees from")
	cmd.Flags().IntVar(&opts.Callees, "callees", 0, "expand callees to this depth (needs --program)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("firmware")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Kind != "" && opts.Kind != "standard" && opts.Kind != "custom" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid kind %q: must be standard or custom", opts.Kind))
	}
	if opts.Callees > 0 && opts.Program == "" {
		return NewExitError(ExitCommandError, "--callees requires --program")
	}
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	fw, err := st.FirmwareByFingerprint(ctx, opts.Firmware)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("firmware not found: %s", opts.Firmware))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read firmware", err)
	}

	if opts.Services {
		svcs, err := st.Services(ctx, querysql.ServiceFilter{
			FirmwareID: fw.ID,
			Name:       opts.Service,
			Status:     opts.Status,
			NewOnly:    opts.NewOnly,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query services", err)
		}
		rows := make([]ServiceRow, len(svcs))
		for i, s := range svcs {
			rows[i] = ServiceRow{
				Name:          s.Name,
				ClassName:     s.ClassName,
				ConcreteClass: s.ConcreteClass,
				Status:        string(s.Status),
				EntryPoint:    s.EntryPoint,
				InBaseline:    s.InBaseline,
			}
		}
		if opts.Format == "json" {
			return formatter.Success(rows)
		}
		printServicesText(cmd, fw, rows)
		return nil
	}

	filter := querysql.ReportFilter{
		FirmwareID: fw.ID,
		Service:    opts.Service,
		Kind:       opts.Kind,
		Status:     opts.Status,
		NewOnly:    opts.NewOnly,
	}
	if opts.Code >= 0 {
		code := opts.Code
		filter.Code = &code
	}
	txns, err := st.Transactions(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query transactions", err)
	}

	rows := make([]ReportRow, len(txns))
	for i, t := range txns {
		rows[i] = ReportRow{
			Service:    t.ServiceName,
			Code:       t.Code,
			Kind:       t.Kind,
			Status:     string(t.Status),
			Callee:     t.Callee,
			IsEmpty:    t.IsEmpty,
			Chain:      t.Chain,
			Error:      t.Error,
			InBaseline: t.InBaseline,
		}
	}
	if opts.Callees > 0 {
		if err := expandCallees(opts, cmd, rows); err != nil {
			return err
		}
	}

	if opts.Format == "json" {
		return formatter.Success(rows)
	}
	printTransactionsText(cmd, fw, rows)
	return nil
}

// expandCallees fills Callees for every standard row whose callee the
// program declares. Custom callees are synthetic and have no declaration.
func expandCallees(opts *ReportOptions, cmd *cobra.Command, rows []ReportRow) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr())
	p, err := loadProgram(opts.Program, cfg, logger)
	if err != nil {
		return err
	}
	sum := newSummarizer(p, cfg, logger)
	for i := range rows {
		if rows[i].Kind != "standard" {
			continue
		}
		m := p.Method(rows[i].Callee)
		if m == nil {
			logger.Debug("callee not in program", "callee", rows[i].Callee)
			continue
		}
		for _, c := range sum.Callees(m, opts.Callees, summary.DefaultSkippedPackages...) {
			rows[i].Callees = append(rows[i].Callees, c.Key())
		}
	}
	return nil
}

func printTransactionsText(cmd *cobra.Command, fw store.Firmware, rows []ReportRow) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %s transaction(s)\n", fw.Fingerprint, humanize.Comma(int64(len(rows))))
	for _, r := range rows {
		var flags []string
		if r.IsEmpty {
			flags = append(flags, "empty")
		}
		if r.InBaseline != nil && !*r.InBaseline {
			flags = append(flags, "new")
		}
		if r.Status != string(store.TransactionOK) {
			flags = append(flags, r.Status)
		}
		fmt.Fprintf(w, "  %-24s %-6d %-8s %s", r.Service, r.Code, r.Kind, r.Callee)
		if len(flags) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(flags, ","))
		}
		fmt.Fprintln(w)
		if len(r.Chain) > 0 {
			fmt.Fprintf(w, "      -> %s\n", strings.Join(r.Chain, " -> "))
		}
		if r.Error != "" {
			fmt.Fprintf(w, "      error: %s\n", r.Error)
		}
		for _, c := range r.Callees {
			fmt.Fprintf(w, "      calls %s\n", c)
		}
	}
}

func printServicesText(cmd *cobra.Command, fw store.Firmware, rows []ServiceRow) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %s service(s)\n", fw.Fingerprint, humanize.Comma(int64(len(rows))))
	for _, r := range rows {
		class := r.ClassName
		if r.ConcreteClass != "" && r.ConcreteClass != r.ClassName {
			class += " (" + r.ConcreteClass + ")"
		}
		line := fmt.Sprintf("  %-24s %-14s %s", r.Name, r.Status, class)
		if r.InBaseline != nil && !*r.InBaseline {
			line += " [new]"
		}
		fmt.Fprintln(w, line)
	}
}
