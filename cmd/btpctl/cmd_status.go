package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"btpctl/internal/journal"
)

var historyLimit int

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Show which btp executable would be used",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		loc, err := engine.Locate()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", loc.Path, loc.Source)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the btp CLI is installed and logged in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, closeFn, err := newEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := engine.Ping(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(cmd, result)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent attempts from the execution journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd, entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of attempts to show")
}

func printHistory(cmd *cobra.Command, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No journal entries.")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tREQUEST\tATTEMPT\tCOMMAND\tEXIT\tDURATION\tKIND")
	for _, e := range entries {
		kind := e.Kind
		if kind == "" {
			kind = "ok"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\t%d\t%s\t%s\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(e.RequestID), e.Attempt, e.Verb, e.Object,
			e.ExitCode, e.Duration, kind)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
