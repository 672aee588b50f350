// Package main is the entry point for the prompt studio CLI and preview server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/config"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
)

// flagKeys maps command-line flags to config keys. Flags a command does not
// define are skipped.
var flagKeys = map[string]string{
	"host":              "host",
	"port":              "port",
	"templates-dir":     "templates_dir",
	"watch":             "watch",
	"log-json":          "log_json",
	"log-level":         "log_level",
	"max-include-depth": "max_include_depth",
}

var rootCmd = &cobra.Command{
	Use:   "promptstudio",
	Short: "Render and preview NPC prompt templates",
	Long: `promptstudio renders NPC prompt templates and splits the result into
chat messages.

Examples:
  promptstudio render prompts/mara.md --vars scene.yaml
  promptstudio render prompts/mara.md --base prompts/base.md --messages
  promptstudio sections rendered.txt
  promptstudio check prompts/*.md
  promptstudio serve --templates-dir prompts --watch`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v = config.New(cfgFile)
		if err := bindFlags(v, cmd.Flags()); err != nil {
			return err
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		if err := logger.Initialize(cfg.LogJSON, cfg.LogLevel); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("promptstudio version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON (env PROMPTSTUDIO_LOG_JSON)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error (env PROMPTSTUDIO_LOG_LEVEL)")
	rootCmd.PersistentFlags().Int("max-include-depth", 20, "Maximum render_file nesting (env PROMPTSTUDIO_MAX_INCLUDE_DEPTH)")

	rootCmd.AddCommand(renderCmd, sectionsCmd, checkCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}
