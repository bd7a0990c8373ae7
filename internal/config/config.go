// Package config provides configuration management for decree.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (DECREE_*)
// 3. Project config (.decree/config.yaml in cwd)
// 4. Home config (~/.decree/config.yaml)
// 5. Defaults
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuntimeDirName is the per-project runtime directory name.
const RuntimeDirName = ".decree"

// Config holds all decree configuration.
type Config struct {
	// Output controls the default output format (table, json, yaml).
	Output string `yaml:"output" json:"output"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// AI holds settings for the embedded LLM REPL collaborator.
	AI AIConfig `yaml:"ai" json:"ai"`

	// Commands holds command-line templates for external AI collaborators.
	Commands CommandsConfig `yaml:"commands" json:"commands"`

	// MaxRetries is the number of dirty attempts per message before the
	// final clean-slate attempt. Total attempts per message is MaxRetries+1:
	// the source's retry strategy re-executes the last attempt with a
	// reverted tree and a failure-context summary, so MaxRetries counts only
	// the dirty attempts that precede it. Must be >= 1.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// MaxDepth is the maximum chain sequence depth before a follow-up
	// message is rejected with MaxDepthExceeded. Must be >= 1.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// DefaultRoutine is the routine name used when normalization cannot
	// otherwise determine one.
	DefaultRoutine string `yaml:"default_routine" json:"default_routine"`

	// NotebookSupport gates notebook-format routine discovery and execution.
	NotebookSupport bool `yaml:"notebook_support" json:"notebook_support"`

	// NotebookSupportSet tracks whether NotebookSupport was explicitly set,
	// distinguishing "not configured" from "explicitly false".
	NotebookSupportSet bool `yaml:"-" json:"-"`

	// PollIntervalSeconds is how long the daemon sleeps between inbox/cron
	// ticks.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
}

// AIConfig holds settings for the embedded LLM REPL collaborator.
type AIConfig struct {
	// ModelPath is the filesystem path to the embedded LLM model artifact.
	ModelPath string `yaml:"model_path" json:"model_path"`

	// NGPULayers is the GPU offload layer count for the REPL collaborator.
	NGPULayers int `yaml:"n_gpu_layers" json:"n_gpu_layers"`
}

// CommandsConfig holds command-line templates for invoking external AI
// collaborators. Each template contains a single "{prompt}" substitution
// site.
type CommandsConfig struct {
	// Planning is the template used by the `plan`/`sow` collaborators.
	Planning string `yaml:"planning" json:"planning"`

	// PlanningContinue is the template used to resume a planning session.
	PlanningContinue string `yaml:"planning_continue" json:"planning_continue"`

	// Router is the template used by the normalizer's router-AI fallback.
	Router string `yaml:"router" json:"router"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput          = "table"
	defaultMaxRetries      = 3
	defaultMaxDepth        = 10
	defaultRoutine         = "develop"
	defaultNotebookSupport = false
	defaultPollInterval    = 10
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:              defaultOutput,
		Verbose:             false,
		MaxRetries:          defaultMaxRetries,
		MaxDepth:            defaultMaxDepth,
		DefaultRoutine:      defaultRoutine,
		NotebookSupport:     defaultNotebookSupport,
		PollIntervalSeconds: defaultPollInterval,
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.PollIntervalSeconds < 1 {
		cfg.PollIntervalSeconds = defaultPollInterval
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, RuntimeDirName, "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("DECREE_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, RuntimeDirName, "config.yaml")
}

// RuntimeDir returns the per-project runtime directory rooted at cwd.
func RuntimeDir(cwd string) string {
	return filepath.Join(cwd, RuntimeDirName)
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("DECREE_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if os.Getenv("DECREE_VERBOSE") == "true" || os.Getenv("DECREE_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("DECREE_AI_MODEL_PATH"); v != "" {
		cfg.AI.ModelPath = v
	}
	if v := os.Getenv("DECREE_AI_N_GPU_LAYERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.NGPULayers = n
		}
	}
	if v := os.Getenv("DECREE_COMMANDS_PLANNING"); v != "" {
		cfg.Commands.Planning = v
	}
	if v := os.Getenv("DECREE_COMMANDS_PLANNING_CONTINUE"); v != "" {
		cfg.Commands.PlanningContinue = v
	}
	if v := os.Getenv("DECREE_COMMANDS_ROUTER"); v != "" {
		cfg.Commands.Router = v
	}
	if v := os.Getenv("DECREE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("DECREE_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDepth = n
		}
	}
	if v := os.Getenv("DECREE_DEFAULT_ROUTINE"); v != "" {
		cfg.DefaultRoutine = v
	}
	if v := os.Getenv("DECREE_NOTEBOOK_SUPPORT"); v == "true" || v == "1" {
		cfg.NotebookSupport = true
		cfg.NotebookSupportSet = true
	}
	if v := os.Getenv("DECREE_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalSeconds = n
		}
	}
	return cfg
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.Verbose {
		dst.Verbose = true
	}
	if src.AI.ModelPath != "" {
		dst.AI.ModelPath = src.AI.ModelPath
	}
	if src.AI.NGPULayers != 0 {
		dst.AI.NGPULayers = src.AI.NGPULayers
	}
	if src.Commands.Planning != "" {
		dst.Commands.Planning = src.Commands.Planning
	}
	if src.Commands.PlanningContinue != "" {
		dst.Commands.PlanningContinue = src.Commands.PlanningContinue
	}
	if src.Commands.Router != "" {
		dst.Commands.Router = src.Commands.Router
	}
	if src.MaxRetries != 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.MaxDepth != 0 {
		dst.MaxDepth = src.MaxDepth
	}
	if src.DefaultRoutine != "" {
		dst.DefaultRoutine = src.DefaultRoutine
	}
	if src.NotebookSupportSet {
		dst.NotebookSupport = src.NotebookSupport
		dst.NotebookSupportSet = true
	}
	if src.PollIntervalSeconds != 0 {
		dst.PollIntervalSeconds = src.PollIntervalSeconds
	}
	return dst
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.decree/config.yaml"
	SourceProject Source = ".decree/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources, for `decree config`.
type ResolvedConfig struct {
	Output         resolved `json:"output"`
	Verbose        resolved `json:"verbose"`
	MaxRetries     resolved `json:"max_retries"`
	MaxDepth       resolved `json:"max_depth"`
	DefaultRoutine resolved `json:"default_routine"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())

	var homeOutput, homeRoutine string
	var homeVerbose bool
	var homeMaxRetries, homeMaxDepth int
	if homeConfig != nil {
		homeOutput = homeConfig.Output
		homeVerbose = homeConfig.Verbose
		homeMaxRetries = homeConfig.MaxRetries
		homeMaxDepth = homeConfig.MaxDepth
		homeRoutine = homeConfig.DefaultRoutine
	}

	var projectOutput, projectRoutine string
	var projectVerbose bool
	var projectMaxRetries, projectMaxDepth int
	if projectConfig != nil {
		projectOutput = projectConfig.Output
		projectVerbose = projectConfig.Verbose
		projectMaxRetries = projectConfig.MaxRetries
		projectMaxDepth = projectConfig.MaxDepth
		projectRoutine = projectConfig.DefaultRoutine
	}

	envOutput, _ := getEnvString("DECREE_OUTPUT")
	envVerbose, envVerboseSet := getEnvBool("DECREE_VERBOSE")
	envRoutine, _ := getEnvString("DECREE_DEFAULT_ROUTINE")

	rc := &ResolvedConfig{
		Output:         resolveStringField(homeOutput, projectOutput, envOutput, flagOutput, defaultOutput),
		Verbose:        resolved{Value: false, Source: SourceDefault},
		DefaultRoutine: resolveStringField(homeRoutine, projectRoutine, envRoutine, "", defaultRoutine),
		MaxRetries:     resolved{Value: defaultMaxRetries, Source: SourceDefault},
		MaxDepth:       resolved{Value: defaultMaxDepth, Source: SourceDefault},
	}

	if homeMaxRetries != 0 {
		rc.MaxRetries = resolved{Value: homeMaxRetries, Source: SourceHome}
	}
	if projectMaxRetries != 0 {
		rc.MaxRetries = resolved{Value: projectMaxRetries, Source: SourceProject}
	}
	if homeMaxDepth != 0 {
		rc.MaxDepth = resolved{Value: homeMaxDepth, Source: SourceHome}
	}
	if projectMaxDepth != 0 {
		rc.MaxDepth = resolved{Value: projectMaxDepth, Source: SourceProject}
	}
	if v, ok := getEnvString("DECREE_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			rc.MaxRetries = resolved{Value: n, Source: SourceEnv}
		}
	}
	if v, ok := getEnvString("DECREE_MAX_DEPTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			rc.MaxDepth = resolved{Value: n, Source: SourceEnv}
		}
	}

	if homeVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerboseSet && envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
