// Command cogo reduces total-station field books to coordinates.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/surveytools/cogo/internal/config"
	"github.com/surveytools/cogo/internal/logging"
	"github.com/surveytools/cogo/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// app carries the state shared by every subcommand once the root command
// has loaded configuration.
type app struct {
	cfgPath  string
	envFile  string
	cfg      *config.Config
	log      logging.Logger
	shutdown func(context.Context) error
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{log: logging.Noop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	observability.ShutdownWithTimeout(context.Background(), a.shutdown, a.log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cogo",
		Short:         "Coordinate geometry for total-station surveys",
		Long:          "cogo averages direct and reverse total-station pointings, checks them against tolerances and reduces them to coordinates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "cogo.yaml", "YAML configuration file (defaults apply when absent)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(
		newReduceCmd(a),
		newAngleCmd(a),
		newAverageCmd(a),
		newReducePointCmd(a),
		newInverseCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	config.LoadDotEnv(a.envFile)
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	a.log = logging.New(lc)

	tc := cfg.Tracing
	tc.Writer = cmd.ErrOrStderr()
	shutdown, err := observability.InitTracing(cmd.Context(), tc, a.log)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}
