package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runCycles int
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent loop",
	Long: `Run the agent control loop in the foreground. The loop interleaves
timeline interaction passes with content scheduling cycles until it is
interrupted or the --cycles cap is reached.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "stop after this many loop iterations (0 runs forever)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log posts and actions instead of sending them")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runCycles > 0 {
		cfg.Loop.MaxCycles = runCycles
	}
	if runDryRun {
		cfg.Social.DryRun = true
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
