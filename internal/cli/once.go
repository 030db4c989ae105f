package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var onceDryRun bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single content scheduling cycle",
	Long: `Run one content scheduling cycle and exit. Useful for trying out a
persona or a backend chain without committing to the full loop.`,
	RunE: runOnce,
}

func init() {
	onceCmd.Flags().BoolVar(&onceDryRun, "dry-run", false, "log posts instead of sending them")
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if onceDryRun {
		cfg.Social.DryRun = true
	}
	// A single cycle posts directly; the deferred queue would outlive it
	cfg.Queue.Enabled = false

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.social.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	n := rt.scheduler.RunCycle(ctx)
	fmt.Printf("Scheduled %d post(s)\n", n)
	return nil
}
