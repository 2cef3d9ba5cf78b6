package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/gate"
	"github.com/undolab/saferun/internal/state"
	"github.com/undolab/saferun/internal/track"
)

// ExecuteOptions holds flags for the execute command.
type ExecuteOptions struct {
	*RootOptions
	Target       string
	Params       string
	File         string
	Capabilities []string
	ContextID    string
	MessageID    string
}

// actionFile is the YAML/JSON shape accepted by --file.
type actionFile struct {
	Type   string         `yaml:"type" json:"type"`
	Target string         `yaml:"target" json:"target"`
	Params map[string]any `yaml:"params" json:"params"`
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecuteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "execute [action-type]",
		Short: "Execute a typed action",
		Long: `Execute a typed action through the permission gate, recording
the operation and a reversible snapshot.

The action comes either from positional arguments and flags, or from a
YAML/JSON file via --file.

Examples:
  saferun execute create_post --params '{"title":"Test"}' --caps edit_posts
  saferun execute update_post --target post-1 --params '{"title":"New"}' --caps edit_posts
  saferun execute set_option --params '{"key":"theme","value":"dark"}' --caps manage_options
  saferun execute --file action.yaml --caps edit_posts`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "target entity id")
	cmd.Flags().StringVar(&opts.Params, "params", "{}", "action parameters as JSON")
	cmd.Flags().StringVar(&opts.File, "file", "", "YAML or JSON file describing the action")
	cmd.Flags().StringSliceVar(&opts.Capabilities, "caps", nil, "capabilities held by the caller")
	cmd.Flags().StringVar(&opts.ContextID, "context", "", "correlation context id")
	cmd.Flags().StringVar(&opts.MessageID, "message", "", "correlation message id")

	return cmd
}

func runExecute(opts *ExecuteOptions, args []string, cmd *cobra.Command) error {
	act, err := loadAction(opts, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid action", err)
	}

	app, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	caller := make(gate.StaticCaller, len(opts.Capabilities))
	for _, c := range opts.Capabilities {
		caller[strings.TrimSpace(c)] = true
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("executing %s (target=%q)", act.Type, act.Target)

	result := app.engine.Execute(context.Background(), act, caller, track.Context{
		ContextID: opts.ContextID,
		MessageID: opts.MessageID,
	})

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printExecuteText(cmd, result)
	}

	if !result.Success {
		return NewExitError(ExitFailure, result.Error)
	}
	return nil
}

// loadAction builds the action from --file or from args and flags.
func loadAction(opts *ExecuteOptions, args []string) (action.Action, error) {
	if opts.File != "" {
		if len(args) > 0 {
			return action.Action{}, fmt.Errorf("--file and a positional action type are mutually exclusive")
		}
		return loadActionFile(opts.File)
	}

	if len(args) == 0 {
		return action.Action{}, fmt.Errorf("an action type or --file is required")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(opts.Params), &raw); err != nil {
		return action.Action{}, fmt.Errorf("invalid --params JSON: %w", err)
	}
	params, err := state.ToObject(raw)
	if err != nil {
		return action.Action{}, fmt.Errorf("invalid --params: %w", err)
	}
	return action.New(action.Type(args[0]), params, opts.Target), nil
}

func loadActionFile(path string) (action.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return action.Action{}, err
	}

	var file actionFile
	// YAML is a superset of JSON, so one decoder serves both.
	if err := yaml.Unmarshal(data, &file); err != nil {
		return action.Action{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if file.Type == "" {
		return action.Action{}, fmt.Errorf("%s: missing action type", path)
	}
	if file.Params == nil {
		file.Params = map[string]any{}
	}

	params, err := state.ToObject(file.Params)
	if err != nil {
		return action.Action{}, fmt.Errorf("%s: %w", path, err)
	}
	return action.New(action.Type(file.Type), params, file.Target), nil
}

func printExecuteText(cmd *cobra.Command, result action.Result) {
	w := cmd.OutOrStdout()
	if result.Success {
		fmt.Fprintf(w, "OK: %s\n", result.Message)
		fmt.Fprintf(w, "  Operation: %s\n", result.OperationID)
		fmt.Fprintf(w, "  Snapshot:  %s\n", result.SnapshotID)
		if result.Target != "" {
			fmt.Fprintf(w, "  Target:    %s\n", result.Target)
		}
		return
	}
	fmt.Fprintf(w, "FAILED [%s]: %s\n", result.Code, result.Error)
	if result.OperationID != "" {
		fmt.Fprintf(w, "  Operation: %s\n", result.OperationID)
	}
}
