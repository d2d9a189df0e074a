package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chadmichel/chadchat/internal/backend"
	"github.com/chadmichel/chadchat/internal/config"
	"github.com/chadmichel/chadchat/internal/models"
	"github.com/chadmichel/chadchat/internal/provider"
	"github.com/chadmichel/chadchat/internal/storage"
	"github.com/chadmichel/chadchat/internal/store"
	"github.com/chadmichel/chadchat/internal/tui"
)

const version = "1.0.0"

func main() {
	var (
		serviceURL string
		code       string
		configPath string
		cachePath  string
	)

	root := &cobra.Command{
		Use:           "chadchat",
		Short:         "Terminal chat client",
		Long:          "chadchat is a two-person terminal chat client with realtime delivery.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cachePath == "" {
				cachePath = storage.DefaultPath()
			}
			cache, err := storage.Open(cachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}

			if configPath == "" {
				configPath = config.DefaultPath()
			}
			cfg, err := config.Load(configPath, cache)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// Flag overrides stick for the next run.
			if serviceURL != "" || code != "" {
				if serviceURL != "" {
					cfg.ServiceURL = serviceURL
				}
				if code != "" {
					cfg.Code = code
				}
				if err := config.Save(cfg, configPath); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not save config: %v\n", err)
				}
			}

			// The client reads the session through this closure so a login
			// mid-run is picked up without rebuilding the client.
			var st *store.Store
			client, err := backend.NewClient(cfg.ServiceURL, cfg.Code, func() *models.Session {
				if st == nil {
					return nil
				}
				return st.Session()
			})
			if err != nil {
				if errors.Is(err, backend.ErrNoServiceURL) {
					return fmt.Errorf("no backend configured: set service_url in %s, pass --service-url, or export CHAT_SERVICE_URL", configPath)
				}
				return err
			}

			st = store.New(client, cache, provider.NewWSChatClient)
			defer st.Close()

			restoreCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			restored := st.RestoreFromCache(restoreCtx)
			cancel()

			program := tea.NewProgram(tui.New(st, restored), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}

	root.Flags().StringVar(&serviceURL, "service-url", "", "Backend base URL (overrides config)")
	root.Flags().StringVar(&code, "code", "", "Backend API key (overrides config)")
	root.Flags().StringVar(&configPath, "config", "", "Config file path")
	root.Flags().StringVar(&cachePath, "cache", "", "Cache file path")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
