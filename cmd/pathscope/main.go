package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/config"
	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// exit status for a call that needs a human
const exitRequired = 2

var errInterventionRequired = errors.New("intervention required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterventionRequired):
		return exitRequired
	default:
		slog.Error("fatal", "error", err)
		return 1
	}
}

type app struct {
	cfg    *config.Config
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger slog.Handler
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "pathscope",
		Short: "Decide whether agent tool calls need human intervention",
		Long: `pathscope checks the path arguments of agent tool calls against a working
directory and reports whether a human must approve the call.

Configuration comes from the environment:
  PATHSCOPE_WORKING_DIR   boundary for file tools (unset: allow everything)
  PATHSCOPE_POLICY_FILE   YAML tool policy (unset: built-in policy)
  PATHSCOPE_AUDIT_DB      SQLite decision log (default pathscope.db)
  PATHSCOPE_LOG_LEVEL     debug, info, warn or error
  DASHBOARD_PORT          port for serve (default 5005)
  DASHBOARD_PASSWORD      dashboard password (serve refuses requests without one)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return errors.Wrap(err, "loading config")
			}
			a.cfg = cfg
			a.logger = slog.NewJSONHandler(a.errOut, &slog.HandlerOptions{Level: cfg.LogLevel})
			slog.SetDefault(slog.New(a.logger))
			return nil
		},
	}

	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(newCheckCommand(a))
	root.AddCommand(newScreenCommand(a))
	root.AddCommand(newServeCommand(a))
	root.AddCommand(newAuditCommand(a))
	root.AddCommand(newResolversCommand(a))

	return root
}

// evaluator builds the registry and the configured policy.
func (a *app) evaluator() (*intervention.Evaluator, *intervention.Registry, error) {
	registry := intervention.NewRegistry()

	policy := intervention.DefaultPolicy()
	if a.cfg.PolicyFile != "" {
		p, err := intervention.LoadPolicy(a.cfg.PolicyFile)
		if err != nil {
			return nil, nil, err
		}
		policy = p
	}

	e, err := intervention.NewEvaluator(registry, policy)
	if err != nil {
		return nil, nil, err
	}
	return e, registry, nil
}

// gate wires an evaluator to the audit store when record is set. The
// returned close func is never nil.
func (a *app) gate(record bool, workingDir string) (*core.Gate, func(), error) {
	e, _, err := a.evaluator()
	if err != nil {
		return nil, nil, err
	}

	var recorder core.Recorder
	closer := func() {}
	if record {
		store, err := audit.Open(a.cfg.AuditDB)
		if err != nil {
			return nil, nil, err
		}
		recorder = store
		closer = func() { store.Close() }
	}

	return core.NewGate(e, recorder).WithDefaultWorkingDirectory(workingDir), closer, nil
}

// readInput reads a file argument, with "-" meaning stdin.
func (a *app) readInput(name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(a.in)
		return data, errors.Wrap(err, "reading stdin")
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return data, nil
}
