package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"btpctl/internal/btp"
	"btpctl/internal/command"
	"btpctl/internal/failure"
)

var (
	execParams []string
	execFlags  []string
	execLong   bool
	execShort  bool
)

var execCmd = &cobra.Command{
	Use:   "exec VERB [GROUP/OBJECT]",
	Short: "Run one btp command and print its JSON payload",
	Long: `Runs a single btp command non-interactively.

Parameters are passed with -p name=value and boolean switches with --flag name.
The verb must be one of: ` + strings.Join(command.AllowedVerbs(), ", ") + `.

Example:
  btpctl exec list accounts/subaccount
  btpctl exec get accounts/subaccount -p subaccount=0f7a0b1c-9a1e-4f1d-8d1a-2b7c6e9f0a11
  btpctl exec delete accounts/subaccount -p subaccount=... --flag confirm`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringArrayVarP(&execParams, "param", "p", nil, "Parameter as name=value (repeatable)")
	execCmd.Flags().StringArrayVar(&execFlags, "flag", nil, "Boolean switch to set (repeatable)")
	execCmd.Flags().BoolVar(&execLong, "long", false, "Use the long timeout")
	execCmd.Flags().BoolVar(&execShort, "short", false, "Use the short timeout")
	execCmd.MarkFlagsMutuallyExclusive("long", "short")
}

func runExec(cmd *cobra.Command, args []string) error {
	req, err := requestFromArgs(args, execParams, execFlags)
	if err != nil {
		return err
	}
	switch {
	case execLong:
		req = req.WithTimeout(command.TimeoutLong)
	case execShort:
		req = req.WithTimeout(command.TimeoutShort)
	}

	engine, closeFn, err := newEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := engine.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	return printResult(cmd, result)
}

// requestFromArgs assembles a request from positional args and flags.
func requestFromArgs(args, params, flags []string) (command.Request, error) {
	object := ""
	if len(args) > 1 {
		object = args[1]
	}

	values := make(map[string]interface{}, len(params)+len(flags))
	for _, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return command.Request{}, failure.New(failure.KindValidation, "parameter %q must be name=value", p)
		}
		if _, dup := values[name]; dup {
			return command.Request{}, failure.New(failure.KindValidation, "parameter %q given more than once", name)
		}
		values[name] = value
	}
	for _, f := range flags {
		if _, dup := values[f]; dup {
			return command.Request{}, failure.New(failure.KindValidation, "parameter %q given more than once", f)
		}
		values[f] = true
	}

	return command.NewRequest(args[0], object, values), nil
}

func printResult(cmd *cobra.Command, result *btp.Result) error {
	out, err := json.MarshalIndent(result.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "request=%s provenance=%s attempts=%d duration=%s\n",
			result.RequestID, result.Provenance, result.Attempts, result.Duration)
	}
	return nil
}
