package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Param int  // code parameter index
	Slice bool // render custom handlers
}

// ResolvedEntry is one recovered code.
type ResolvedEntry struct {
	Code       int64  `json:"code"`
	Kind       string `json:"kind"`
	Caller     string `json:"caller"`
	Target     string `json:"target,omitempty"`
	Block      string `json:"block,omitempty"`
	Slice      string `json:"slice,omitempty"`
	SliceError string `json:"slice_error,omitempty"`
}

// ResolveResult is the code map of one method.
type ResolveResult struct {
	Method  string          `json:"method"`
	Param   int             `json:"param"`
	Entries []ResolvedEntry `json:"entries"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <program> <class> <method>",
		Short: "Recover the dispatch table of a method",
		Long: `Recover which request codes a dispatch method handles and where.

Standard entries name the method that implements the code. Custom entries
name the block where inline handler code starts; with --slice each one is
cut out into a synthetic method and printed.

<method> is a bare name when it is unique in the class, or a full
signature such as 'onTransact(int,android.os.Parcel,android.os.Parcel,int)boolean'.

Examples:
  binderscan resolve stub.yaml com.example.IFoo$Stub onTransact
  binderscan resolve ./service com.example.IFoo$Stub onTransact --slice
  binderscan resolve stub.yaml com.example.IFoo$Stub onTransact --format json`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], args[1], args[2], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Param, "param", 0, "index of the request-code parameter")
	cmd.Flags().BoolVar(&opts.Slice, "slice", false, "slice and print custom handlers")

	return cmd
}

func runResolve(opts *ResolveOptions, programPath, class, method string, cmd *cobra.Command) error {
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
	m, err := findMethod(p, class, method)
	if err != nil {
		_ = formatter.Error(ErrCodeNoMethod, err.Error(), nil)
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}

	formatter.VerboseLog("Resolving %s (code parameter %d)", m.Key(), opts.Param)
	codes, err := newResolver(cfg, logger).Resolve(m, opts.Param)
	if err != nil {
		_ = formatter.Error(ErrCodeResolve, err.Error(), nil)
		return WrapExitError(ExitFailure, "resolve failed", err)
	}

	result := ResolveResult{Method: m.Key(), Param: opts.Param, Entries: make([]ResolvedEntry, 0, codes.Len())}
	for _, e := range codes.Entries() {
		result.Entries = append(result.Entries, resolvedEntry(e, opts.Slice, cfg.Scan.SyntheticPrefix))
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printResolveText(cmd, result)
	return nil
}

func resolvedEntry(e engine.Entry, slice bool, prefix string) ResolvedEntry {
	out := ResolvedEntry{
		Code:   e.Code,
		Kind:   string(e.Transaction.Kind()),
		Caller: e.Transaction.Location().Key(),
	}
	switch t := e.Transaction.(type) {
	case engine.Standard:
		out.Target = t.Target.Key()
	case engine.Custom:
		out.Block = t.Entry.String()
		if !slice {
			break
		}
		sm, err := t.Slice(prefix + strconv.FormatInt(e.Code, 10))
		if err != nil {
			out.SliceError = err.Error()
			break
		}
		body, err := sm.Body()
		if err != nil {
			out.SliceError = err.Error()
			break
		}
		out.Slice = ir.Format(sm, body)
	}
	return out
}

func printResolveText(cmd *cobra.Command, result ResolveResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d code(s)\n", result.Method, len(result.Entries))
	for _, e := range result.Entries {
		switch e.Kind {
		case string(engine.KindStandard):
			fmt.Fprintf(w, "  %-6d standard  %s\n", e.Code, e.Target)
		default:
			fmt.Fprintf(w, "  %-6d custom    %s@%s\n", e.Code, e.Caller, e.Block)
		}
	}
	for _, e := range result.Entries {
		switch {
		case e.Slice != "":
			fmt.Fprintf(w, "\n%s", e.Slice)
		case e.SliceError != "":
			fmt.Fprintf(w, "\ncode %d: slice failed: %s\n", e.Code, e.SliceError)
		}
	}
}
