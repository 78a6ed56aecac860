package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TheLazyLemur/pathscope/internal/api"
	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/scope"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCheckCommand(a *app) *cobra.Command {
	var (
		tool   string
		cwd    string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "check --tool NAME [ARGS_JSON | -]",
		Short: "Decide whether one tool call needs intervention",
		Long: `Evaluate a single tool call and print the decision as JSON.

Exits with status 2 when intervention is required.`,
		Example: `  pathscope check --tool readLocalFile --cwd /home/user/project '{"path":"/etc/passwd"}'
  echo '{"oldPath":"a","newPath":"b"}' | pathscope check --tool renameLocalFile -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var toolArgs scope.Arguments
			if len(args) == 1 {
				raw := []byte(args[0])
				if args[0] == "-" {
					data, err := a.readInput("-")
					if err != nil {
						return err
					}
					raw = data
				}
				if err := json.Unmarshal(raw, &toolArgs); err != nil {
					return errors.Wrap(err, "parsing tool arguments")
				}
			}

			gate, closeGate, err := a.gate(record, workingDir(cmd, cwd, a.cfg.WorkingDir))
			if err != nil {
				return err
			}
			defer closeGate()

			d, recordErr := gate.Check(cmd.Context(), core.Request{Tool: tool, Arguments: toolArgs})
			if err := writeJSON(a, d); err != nil {
				return err
			}
			if recordErr != nil {
				return recordErr
			}
			if d.Required {
				return errInterventionRequired
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "tool name")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (default $PATHSCOPE_WORKING_DIR)")
	cmd.Flags().BoolVar(&record, "audit", false, "record the decision in the audit log")
	cmd.MarkFlagRequired("tool")

	return cmd
}

func newScreenCommand(a *app) *cobra.Command {
	var (
		cwd    string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "screen [--cwd DIR] FILE|-",
		Short: "Screen the tool calls of an Anthropic message",
		Long: `Run every tool_use block of a Messages API response through the gate and
print one result per block.

Exits with status 2 when any call is blocked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			msg, err := api.DecodeMessage(data)
			if err != nil {
				return err
			}

			gate, closeGate, err := a.gate(record, workingDir(cmd, cwd, a.cfg.WorkingDir))
			if err != nil {
				return err
			}
			defer closeGate()

			screened, recordErr := api.ScreenMessage(cmd.Context(), gate, msg, nil)
			if screened == nil {
				screened = []api.Screened{}
			}
			if err := writeJSON(a, screened); err != nil {
				return err
			}
			if recordErr != nil {
				return recordErr
			}
			if len(api.Blocked(screened)) > 0 {
				return errInterventionRequired
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory (default $PATHSCOPE_WORKING_DIR)")
	cmd.Flags().BoolVar(&record, "audit", false, "record decisions in the audit log")

	return cmd
}

func newAuditCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent recorded decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.Errorf("invalid limit %d", limit)
			}

			store, err := audit.Open(a.cfg.AuditDB)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.out, "no decisions recorded")
				return nil
			}
			for _, r := range records {
				fmt.Fprintln(a.out, r.Summary())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of decisions to show")

	return cmd
}

func newResolversCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolvers",
		Short: "List registered dynamic resolvers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, registry, err := a.evaluator()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, strings.Join(registry.Names(), "\n"))
			return nil
		},
	}
}

// workingDir prefers an explicit --cwd, even an empty one, over the
// configured default.
func workingDir(cmd *cobra.Command, flagValue, configured string) string {
	if cmd.Flags().Changed("cwd") {
		return flagValue
	}
	return configured
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "writing output")
}
