package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/pkg/persona"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and persona",
	Long: `Load the configuration and the persona file and report every problem
found, without touching the network.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	validator := config.NewValidator()
	problems := validator.ValidateConfig(cfg)

	if cfg.Persona.Path != "" {
		quiet := zerolog.New(os.Stderr).Level(zerolog.Disabled)
		if _, err := persona.NewLoader(quiet).Load(cfg.Persona.Path); err != nil {
			problems = append(problems, fmt.Errorf("persona: %w", err))
		}
	} else {
		fmt.Println("Note: no persona file configured")
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("Error: %v\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(problems))
	}

	fmt.Println("Configuration is valid")
	return nil
}
