package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/FrameExport/internal/config"
	"github.com/bryanchriswhite/FrameExport/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "frameexport",
		Short: "FrameExport - capture rendered frames to PPM files or streams",
		Long: `FrameExport reads each rendered frame back from a framebuffer and hands it
to a background worker that flips it into top-to-bottom order and writes it out,
without stalling the render loop for longer than one queued frame.

Features:
  • Binary PPM (P6) stream to a file or stdout
  • PNG, JPEG, BMP and TIFF stills or numbered image sequences
  • H.264 encoding through a GStreamer subprocess
  • Test pattern, still image and X11 screen sources
  • Live MJPEG preview and WebSocket frame events
  • Persistent YAML configuration`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/frameexport/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logs")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig opens the config manager with command-line overrides applied
// and configures the global logger from the result
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
