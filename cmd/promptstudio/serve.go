package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/api"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/logger"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/prompt"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live-preview API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env PROMPTSTUDIO_HOST)")
	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PROMPTSTUDIO_PORT)")
	serveCmd.Flags().String("templates-dir", "", "Template directory served as the library (env PROMPTSTUDIO_TEMPLATES_DIR)")
	serveCmd.Flags().Bool("watch", false, "Reload templates when files change (env PROMPTSTUDIO_WATCH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Named("serve")
	ctx := cmd.Context()
	renderer := newRenderer()

	var lib *prompt.Library
	if info, err := os.Stat(cfg.TemplatesDir); err == nil && info.IsDir() {
		lib, err = prompt.NewLibrary(cfg.TemplatesDir, renderer)
		if err != nil {
			return err
		}
		if cfg.Watch {
			lib.OnChange(func(names []string) {
				log.Infow("Templates changed", "files", names)
			})
			if err := lib.Watch(ctx); err != nil {
				return err
			}
			log.Infow("Watching templates", "dir", lib.Root())
		}
	} else {
		log.Warnw("Template directory not found, file renders disabled", "dir", cfg.TemplatesDir)
	}

	server := api.New(store.New(), renderer, lib)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Infow("Shutting down")
		if err := server.Shutdown(); err != nil {
			log.Errorw("Error during shutdown", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Infow("Prompt studio listening", "addr", addr, "version", version)
	return server.Listen(addr)
}
