package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/reveriehq/reverie"
	"github.com/reveriehq/reverie/internal/config"
	"github.com/reveriehq/reverie/internal/logging"
	"github.com/reveriehq/reverie/pkg/adapters/httpapi"
	"github.com/reveriehq/reverie/pkg/adapters/memory"
	"github.com/reveriehq/reverie/pkg/adapters/openai"
	redisadapter "github.com/reveriehq/reverie/pkg/adapters/redis"
	"github.com/reveriehq/reverie/pkg/persistence/middleware"
	"github.com/reveriehq/reverie/pkg/ports"
	"github.com/reveriehq/reverie/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat HTTP server",
	Long:  `Starts the Reverie backend, exposing the chat and tree-navigation JSON API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Addr = addr
		}

		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger := logging.New(level)

		// Persistence: redis when configured, in-memory otherwise.
		var store ports.TreeStore
		var locker ports.DistributedLocker
		if cfg.Redis.Addr != "" {
			client := backend.NewClient(&backend.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			store = redisadapter.NewFromClient(client)
			locker = redisadapter.NewLocker(client, "reverie:")
			logger.Info("using redis tree store", "addr", cfg.Redis.Addr)
		} else {
			store = memory.NewStore()
			logger.Warn("no redis configured, trees are held in memory only")
		}

		if cfg.EncryptionKey != "" {
			key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
			if err != nil {
				return fmt.Errorf("invalid encryption key: %w", err)
			}
			if len(key) != 32 {
				return fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
			}
			store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
				ActiveKey: key,
			}))
			logger.Info("tree encryption at rest enabled")
		}

		model, err := openai.NewClient(&openai.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			OrgID:   cfg.OpenAI.OrgID,
		})
		if err != nil {
			return err
		}

		promReg := prometheus.NewRegistry()
		appOpts := []reverie.Option{
			reverie.WithTreeStore(store),
			reverie.WithModelClient(model),
			reverie.WithLogger(logger),
			reverie.WithMetrics(promReg),
		}
		if locker != nil {
			appOpts = append(appOpts, reverie.WithLocker(locker))
		}
		if cfg.Workflow != "" {
			wf, err := workflow.LoadConfig(cfg.Workflow)
			if err != nil {
				return err
			}
			appOpts = append(appOpts, reverie.WithWorkflow(wf))
		}

		app, err := reverie.New(appOpts...)
		if err != nil {
			return err
		}

		handler := httpapi.NewHandler(&httpapi.Server{
			Chat:     app.Chat,
			Trees:    app.Trees,
			Logger:   logger,
			Gatherer: promReg,
		})

		srv := &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting reverie server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("starting shutdown", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("failed to close server: %w", err)
				}
			}

			// Let in-flight background persistence finish before exiting.
			app.Engine.Wait()
			logger.Info("reverie server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}
