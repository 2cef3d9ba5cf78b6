package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/undolab/saferun/internal/audit"
)

// RunCodeOptions holds flags for the run-code command.
type RunCodeOptions struct {
	*RootOptions
	File string
}

// NewRunCodeCommand creates the run-code command.
func NewRunCodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunCodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run-code [source]",
		Short: "Run generated code in the sandbox",
		Long: `Run free-form generated code inside the sandboxed interpreter.

Source comes from a positional argument, a file via --file, or stdin
when --file is "-". Code referencing a forbidden symbol is rejected
before execution; runs exceeding the configured timeout are killed
with partial output preserved.

Examples:
  saferun run-code 'print("hello")'
  saferun run-code --file script.lua
  echo 'return store.get_option("theme")' | saferun run-code --file -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCode(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", `source file, or "-" for stdin`)

	return cmd
}

func runCode(opts *RunCodeOptions, args []string, cmd *cobra.Command) error {
	source, err := loadSource(opts, args, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source", err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := app.engine.RunCode(context.Background(), source)
	if err != nil {
		var ee *audit.EngineError
		if errors.As(err, &ee) {
			// Timeout failures still carry partial output.
			if formatErr := formatter.Error(string(ee.Code), ee.Message, result.Output); formatErr != nil {
				return formatErr
			}
			return NewExitError(ExitFailure, ee.Message)
		}
		return WrapExitError(ExitCommandError, "code execution failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if result.Output != "" {
			fmt.Fprint(w, result.Output)
		}
		if result.ReturnValue != nil {
			fmt.Fprintf(w, "=> %v\n", result.ReturnValue)
		}
		for _, diag := range result.Errors {
			fmt.Fprintf(w, "[%s] %s\n", diag.Kind, diag.Message)
		}
	}

	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, result.Errors[0].Message)
	}
	return nil
}

func loadSource(opts *RunCodeOptions, args []string, stdin io.Reader) (string, error) {
	if opts.File != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("--file and positional source are mutually exclusive")
		}
		if opts.File == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return "", fmt.Errorf("read stdin: %w", err)
			}
			return string(data), nil
		}
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("source code or --file is required")
	}
	return args[0], nil
}
