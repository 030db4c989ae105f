package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/magpie/pkg/console"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of a running agent",
	Long: `Query the ops console of a running agent and print its status. The
console must be enabled in the configuration.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Console.Enabled {
		return fmt.Errorf("console is disabled; enable console in the configuration to query status")
	}

	url := fmt.Sprintf("http://%s:%d/status", cfg.Console.Host, cfg.Console.Port)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("agent is not reachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	var st console.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Println("Status: running")
	fmt.Printf("Uptime: %s\n", st.Uptime)
	fmt.Printf("Iterations: %d\n", st.Iterations)
	fmt.Printf("Action passes: %d\n", st.ActionPasses)
	fmt.Printf("Post cycles: %d (%d posts scheduled)\n", st.PostCycles, st.PostsScheduled)
	fmt.Printf("Language backends: %v\n", st.LLMProviders)
	fmt.Printf("Vector backends: %v\n", st.VectorProviders)
	if st.QueuePending > 0 {
		fmt.Printf("Queued posts: %d\n", st.QueuePending)
	}
	return nil
}
