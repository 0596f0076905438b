package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/FrameExport/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage FrameExport configuration",
	Long:  `View and manage FrameExport configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current FrameExport configuration.`,
	Example: `  # Show configuration as YAML (default)
  frameexport config show

  # Show configuration as JSON
  frameexport config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  `Set a specific configuration value. The result is validated before it is saved.`,
	Example: `  # Export to stdout by default
  frameexport config set export.output -

  # Set the render loop frame rate
  frameexport config set source.fps 60

  # Set log level
  frameexport config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get the output target
  frameexport config get export.output

  # Get log level
  frameexport config get log_level`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return writeConfig(cmd.OutOrStdout(), cfg, formatFlag)
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}

// parseValue converts a command-line string to the type stored under key
func parseValue(key, value string) (interface{}, error) {
	switch key {
	case "export.quality", "source.width", "source.height", "source.fps",
		"source.frames", "source.x", "source.y", "stream.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, value)
		}
		return n, nil
	case "stream.enabled", "overlay.enabled", "log_pretty":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, value)
		}
		return b, nil
	case "export.shutdown_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		return d, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configMgr, _, err := loadConfig()
	if err != nil {
		return err
	}

	v, err := parseValue(key, value)
	if err != nil {
		return err
	}
	if err := configMgr.Set(key, v); err != nil {
		return err
	}
	if err := configMgr.Get().Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := configMgr.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	configMgr, _, err := loadConfig()
	if err != nil {
		return err
	}

	v := configMgr.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
