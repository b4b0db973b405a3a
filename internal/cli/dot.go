package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/engine"
)

// DotOptions holds flags for the dot command.
type DotOptions struct {
	*RootOptions
	Reverse bool
}

// NewDotCommand creates the dot command.
func NewDotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dot <program> <class> <method>",
		Short: "Print a method's control-flow graph in Graphviz DOT",
		Long: `Print the block graph of a method. Each node lists the block's
statements. Pipe the output to dot(1):

  binderscan dot stub.yaml com.example.IFoo$Stub onTransact | dot -Tsvg > cfg.svg`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDot(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "draw predecessor edges instead")

	return cmd
}

func runDot(opts *DotOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	p, err := loadProgram(args[0], cfg, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	m, err := findMethod(p, args[1], args[2])
	if err != nil {
		return WrapExitError(ExitCommandError, "lookup failed", err)
	}
	body, err := m.Body()
	if err != nil {
		return WrapExitError(ExitCommandError, "no body", err)
	}

	if err := engine.WriteDOT(cmd.OutOrStdout(), body, opts.Reverse, m.Key()); err != nil {
		return WrapExitError(ExitFailure, "write dot", err)
	}
	return nil
}
