package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerrigan/swarm/internal/completion"
	"github.com/kerrigan/swarm/internal/dispatch"
	"github.com/kerrigan/swarm/internal/githubapi"
	"github.com/kerrigan/swarm/internal/history"
	"github.com/kerrigan/swarm/internal/output"
	"github.com/kerrigan/swarm/internal/provider"
	"github.com/kerrigan/swarm/internal/registry"
	"github.com/kerrigan/swarm/internal/roles"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	reg        *registry.Registry
	histStore  history.Store
	controller *dispatch.Controller
	intake     *dispatch.Intake

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Swarm - dispatch autonomous agent sessions for GitHub issues",
	Long: `swarm dispatches AI agent sessions against GitHub issues and supervises
their lifecycle. Eligible issues (labeled agent:go, agent:sprint, or
autonomy:override) are dispatched under a concurrency ceiling; completed
sessions publish their output as a branch, commit, and pull request.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/swarm/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "swarm")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SWARM")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "swarm")

	viper.SetDefault("swarm.max_concurrent_sessions", 10)
	viper.SetDefault("swarm.session_timeout_ms", 300000)
	viper.SetDefault("swarm.retry_attempts", 3)
	viper.SetDefault("swarm.retry_delay_ms", 1000)
	viper.SetDefault("swarm.branch_prefix", "sdk-agent")
	viper.SetDefault("swarm.state_path", filepath.Join(defaultConfigDir, "sessions.json"))
	viper.SetDefault("swarm.history_db", filepath.Join(defaultConfigDir, "swarm.db"))
	viper.SetDefault("swarm.roles_file", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	viper.SetDefault("github.owner", "")
	viper.SetDefault("github.repo", "")
	viper.SetDefault("prompts.dir", ".")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
}

// getRegistry returns the shared session registry, loading the snapshot on
// first call.
func getRegistry() *registry.Registry {
	if reg == nil {
		reg = registry.New(viper.GetString("swarm.state_path"), ui)
	}
	return reg
}

// getHistory returns the shared history store, opening and migrating the
// database on first call. An empty swarm.history_db disables history.
func getHistory() (history.Store, error) {
	if histStore != nil {
		return histStore, nil
	}

	dbPath := viper.GetString("swarm.history_db")
	if dbPath == "" {
		return nil, nil
	}

	s, err := history.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	histStore = s
	return histStore, nil
}

// getController wires the full dispatch stack: registry, GitHub client,
// completion pipeline, provider client, and controller.
func getController() (*dispatch.Controller, error) {
	if controller != nil {
		return controller, nil
	}

	hist, err := getHistory()
	if err != nil {
		return nil, err
	}

	gh := githubapi.NewClient()
	pipeline := completion.New(getRegistry(), gh, gh, hist, ui, completion.Config{
		BranchPrefix:  viper.GetString("swarm.branch_prefix"),
		RetryAttempts: viper.GetInt("swarm.retry_attempts"),
		RetryDelay:    time.Duration(viper.GetInt("swarm.retry_delay_ms")) * time.Millisecond,
	})

	client := provider.NewAnthropicClient(viper.GetString("anthropic.api_key"), viper.GetString("anthropic.model"))

	controller = dispatch.New(dispatch.Config{
		MaxConcurrentSessions: viper.GetInt("swarm.max_concurrent_sessions"),
		SessionTimeout:        time.Duration(viper.GetInt("swarm.session_timeout_ms")) * time.Millisecond,
		Model:                 viper.GetString("anthropic.model"),
	}, getRegistry(), client, pipeline, ui)
	return controller, nil
}

// getIntake builds the issue intake from config.
func getIntake() (*dispatch.Intake, error) {
	if intake != nil {
		return intake, nil
	}

	owner := viper.GetString("github.owner")
	repo := viper.GetString("github.repo")
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github.owner and github.repo must be configured (or set SWARM_GITHUB_OWNER / SWARM_GITHUB_REPO)")
	}

	table, err := roles.LoadTable(viper.GetString("swarm.roles_file"))
	if err != nil {
		return nil, err
	}

	intake = &dispatch.Intake{
		Issues:     githubapi.NewClient(),
		Roles:      table,
		Owner:      owner,
		Repo:       repo,
		PromptsDir: viper.GetString("prompts.dir"),
	}
	return intake, nil
}
