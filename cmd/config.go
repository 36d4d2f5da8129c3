package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "swarm"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage swarm configuration.

Running bare 'swarm config' is the same as 'swarm config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# swarm configuration
# See: swarm config show (for effective values and sources)

swarm:
  # Concurrency ceiling for agent sessions (default: 10)
  max_concurrent_sessions: {{ .MaxConcurrentSessions }}

  # Per-session timeout in milliseconds (default: 300000)
  session_timeout_ms: {{ .SessionTimeoutMs }}

  # Branch prefix for published agent work (default: "sdk-agent")
  branch_prefix: "{{ .BranchPrefix }}"

  # Session snapshot path
  # state_path: {{ .StatePath }}

  # Session history database; empty disables history
  # history_db: {{ .HistoryDB }}

# GitHub target repository
github:
  owner: "{{ .GitHubOwner }}"
  repo: "{{ .GitHubRepo }}"

# Anthropic API
anthropic:
  # api_key: ""
  model: "{{ .AnthropicModel }}"

# Directory holding prompts/ and artifact documents (default: ".")
prompts:
  dir: "{{ .PromptsDir }}"
`

type configTemplateData struct {
	MaxConcurrentSessions int
	SessionTimeoutMs      int
	BranchPrefix          string
	StatePath             string
	HistoryDB             string
	GitHubOwner           string
	GitHubRepo            string
	AnthropicModel        string
	PromptsDir            string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		MaxConcurrentSessions: viper.GetInt("swarm.max_concurrent_sessions"),
		SessionTimeoutMs:      viper.GetInt("swarm.session_timeout_ms"),
		BranchPrefix:          viper.GetString("swarm.branch_prefix"),
		StatePath:             viper.GetString("swarm.state_path"),
		HistoryDB:             viper.GetString("swarm.history_db"),
		GitHubOwner:           viper.GetString("github.owner"),
		GitHubRepo:            viper.GetString("github.repo"),
		AnthropicModel:        viper.GetString("anthropic.model"),
		PromptsDir:            viper.GetString("prompts.dir"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "swarm.max_concurrent_sessions", EnvVar: "SWARM_SWARM_MAX_CONCURRENT_SESSIONS"},
	{Key: "swarm.session_timeout_ms", EnvVar: "SWARM_SWARM_SESSION_TIMEOUT_MS"},
	{Key: "swarm.retry_attempts", EnvVar: "SWARM_SWARM_RETRY_ATTEMPTS"},
	{Key: "swarm.retry_delay_ms", EnvVar: "SWARM_SWARM_RETRY_DELAY_MS"},
	{Key: "swarm.branch_prefix", EnvVar: "SWARM_SWARM_BRANCH_PREFIX"},
	{Key: "swarm.state_path", EnvVar: "SWARM_SWARM_STATE_PATH"},
	{Key: "swarm.history_db", EnvVar: "SWARM_SWARM_HISTORY_DB"},
	{Key: "swarm.roles_file", EnvVar: "SWARM_SWARM_ROLES_FILE"},
	{Key: "github.owner", EnvVar: "SWARM_GITHUB_OWNER"},
	{Key: "github.repo", EnvVar: "SWARM_GITHUB_REPO"},
	{Key: "anthropic.model", EnvVar: "SWARM_ANTHROPIC_MODEL"},
	{Key: "prompts.dir", EnvVar: "SWARM_PROMPTS_DIR"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'swarm config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
