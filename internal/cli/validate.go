package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/binderscan/internal/compiler"
	"github.com/roach88/binderscan/internal/harness"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Classes  int                        `json:"classes"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Check a program's hierarchy and bodies",
		Long: `Load a program, check its class hierarchy and lift every concrete body.

All errors are reported, not just the first. Dispatch methods that
delegate to each other in a cycle are reported as warnings; they do not
fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, programPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if _, err := os.Stat(programPath); os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("program not found: %s", programPath), nil)
	}

	p, err := harness.LoadProgram(programPath, cfg.Cache.Bodies, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			return outputValidationErrors(formatter, ValidationResult{Errors: []compiler.ValidationError{{
				Field:   ce.Field,
				Message: ce.Message,
				Code:    ErrCodeLoadFailed,
				Line:    ce.Line,
			}}})
		}
		return outputValidateError(formatter, ErrCodeLoadFailed, err.Error(), nil)
	}

	result := ValidationResult{Classes: len(p.Classes())}
	formatter.VerboseLog("Loaded %d class(es) from %s", result.Classes, programPath)

	result.Errors = compiler.Validate(p)
	result.Warnings, err = compiler.AnalyzeDelegation(p, cfg.Resolver.DelegatePattern)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Program valid (%d classes)\n", result.Classes)
	printCycleWarnings(formatter, result.Warnings)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	printCycleWarnings(formatter, result.Warnings)
	return failure
}

func printCycleWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "warning: %s\n", w.Message)
	}
}
