package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
)

// SliceOptions holds flags for the slice command.
type SliceOptions struct {
	*RootOptions
	Name string // name of the synthetic method
}

// SliceResult is one extracted handler.
type SliceResult struct {
	Method      string `json:"method"`
	Block       string `json:"block"`
	Slice       string `json:"slice"`
	Listing     string `json:"listing"`
	Fingerprint string `json:"fingerprint"`
}

// NewSliceCommand creates the slice command.
func NewSliceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SliceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "slice <program> <class> <method> <block>",
		Short: "Extract the code starting at a block into its own method",
		Long: `Extract every block reachable from <block>, plus every block that
reaches it, into a new method with a synthetic return.

<block> is a block number with or without its "b" prefix.

Examples:
  binderscan slice stub.yaml com.example.IFoo$Stub onTransact b2
  binderscan slice stub.yaml com.example.IFoo$Stub onTransact 2 --name handleTwo`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlice(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "synthetic method name (default <prefix><block>)")

	return cmd
}

func runSlice(opts *SliceOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd.ErrOrStderr())

	entry, err := parseBlockID(args[3])
	if err != nil {
		return WrapExitError(ExitCommandError, "bad block argument", err)
	}
	p, err := loadProgram(args[0], cfg, logger)
	if err != nil {
		return err
	}
	m, err := findMethod(p, args[1], args[2])
	if err != nil {
		_ = formatter.Error(ErrCodeNoMethod, err.Error(), nil)
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}
	body, err := m.Body()
	if err != nil {
		_ = formatter.Error(ErrCodeLoadFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "no body", err)
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("%s%s", cfg.Scan.SyntheticPrefix, entry)
	}
	sm, err := engine.Slice(m, body, entry, name)
	if err != nil {
		_ = formatter.Error(ErrCodeSlice, err.Error(), nil)
		return WrapExitError(ExitFailure, "slice failed", err)
	}
	sb, err := sm.Body()
	if err != nil {
		return WrapExitError(ExitFailure, "slice failed", err)
	}
	fp, err := ir.Fingerprint(sm, sb)
	if err != nil {
		return WrapExitError(ExitFailure, "fingerprint failed", err)
	}

	result := SliceResult{
		Method:      m.Key(),
		Block:       entry.String(),
		Slice:       sm.Key(),
		Listing:     ir.Format(sm, sb),
		Fingerprint: fp,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprint(w, result.Listing)
	fmt.Fprintf(w, "; fingerprint %s\n", result.Fingerprint)
	return nil
}
