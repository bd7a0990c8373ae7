package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jtmckay/decree/internal/config"
)

var (
	configShow bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and manage decree configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (DECREE_*)
  3. Project config (.decree/config.yaml)
  4. Home config (~/.decree/config.yaml)
  5. Defaults

Environment variables:
  DECREE_CONFIG                    - Explicit config file path
  DECREE_OUTPUT                    - Default output format (table, json, yaml)
  DECREE_VERBOSE                   - Enable verbose output (true/1)
  DECREE_AI_MODEL_PATH             - Path to the local model used for routing/planning
  DECREE_AI_N_GPU_LAYERS           - GPU layers offloaded when running the local model
  DECREE_COMMANDS_PLANNING         - Command invoked to produce a new spec file
  DECREE_COMMANDS_PLANNING_CONTINUE - Command invoked to continue an existing spec
  DECREE_COMMANDS_ROUTER           - Command invoked to infer a message's routine
  DECREE_MAX_RETRIES               - Dirty retry attempts before the clean-slate attempt
  DECREE_MAX_DEPTH                 - Maximum chain depth before dead-lettering
  DECREE_DEFAULT_ROUTINE           - Routine used when none can be inferred
  DECREE_NOTEBOOK_SUPPORT          - Enable the notebook routine runner (true/1)

Examples:
  decree config --show           # Show resolved configuration
  decree config --show -o json   # Output as JSON`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "Show resolved configuration with sources")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow {
		return cmd.Help()
	}

	resolved := config.Resolve(GetOutput(), GetVerbose())

	if GetOutput() == "json" {
		data, err := json.MarshalIndent(resolved, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("Decree Configuration")
	fmt.Println("====================")
	fmt.Println()

	fmt.Println("Config files:")
	homeConfig := filepath.Join(os.Getenv("HOME"), config.RuntimeDirName, "config.yaml")
	if _, err := os.Stat(homeConfig); err == nil {
		fmt.Printf("  found:     %s\n", homeConfig)
	} else {
		fmt.Printf("  not found: %s\n", homeConfig)
	}

	cwd, _ := os.Getwd()
	projectConfig := filepath.Join(cwd, config.RuntimeDirName, "config.yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		fmt.Printf("  found:     %s\n", projectConfig)
	} else {
		fmt.Printf("  not found: %s\n", projectConfig)
	}

	fmt.Println()
	fmt.Println("Resolved values:")
	fmt.Printf("  output:          %v  (from %s)\n", resolved.Output.Value, resolved.Output.Source)
	fmt.Printf("  verbose:         %v  (from %s)\n", resolved.Verbose.Value, resolved.Verbose.Source)
	fmt.Printf("  max_retries:     %v  (from %s)\n", resolved.MaxRetries.Value, resolved.MaxRetries.Source)
	fmt.Printf("  max_depth:       %v  (from %s)\n", resolved.MaxDepth.Value, resolved.MaxDepth.Source)
	fmt.Printf("  default_routine: %v  (from %s)\n", resolved.DefaultRoutine.Value, resolved.DefaultRoutine.Source)

	fmt.Println()
	fmt.Println("Environment variables (if set):")
	envVars := []string{
		"DECREE_CONFIG",
		"DECREE_OUTPUT",
		"DECREE_VERBOSE",
		"DECREE_AI_MODEL_PATH",
		"DECREE_AI_N_GPU_LAYERS",
		"DECREE_COMMANDS_PLANNING",
		"DECREE_COMMANDS_PLANNING_CONTINUE",
		"DECREE_COMMANDS_ROUTER",
		"DECREE_MAX_RETRIES",
		"DECREE_MAX_DEPTH",
		"DECREE_DEFAULT_ROUTINE",
		"DECREE_NOTEBOOK_SUPPORT",
	}
	anySet := false
	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			fmt.Printf("  %s=%s\n", env, v)
			anySet = true
		}
	}
	if !anySet {
		fmt.Println("  (none set)")
	}

	return nil
}
