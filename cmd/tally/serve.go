package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/tally/internal/config"
	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shared backend",
	Long: `Serve the REST and realtime endpoints every device syncs against.

A namespace of five tables is provisioned for each configured user. When a
config file is in use it is watched, and access key changes apply without a
restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.close()
		logger := e.logger

		if _, err := e.cfg.Registry(); err != nil {
			return fmt.Errorf("user registry: %w", err)
		}

		db, err := database.Open(e.cfg.Server.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		srv, err := server.New(db, server.Config{
			Users:        e.cfg.Users,
			KeyHashes:    e.cfg.Server.AccessKeyHashes,
			RequestLimit: e.cfg.Server.RequestLimit,
		}, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv.RateLimiter().StartCleanup(5*time.Minute, ctx.Done())

		if path := watchedConfigPath(); path != "" {
			go func() {
				err := config.Watch(ctx, path, logger.With("component", "config"), func(c *config.Config) {
					srv.SetKeyHashes(c.Server.AccessKeyHashes)
				})
				if err != nil {
					logger.Warn("config watch stopped", "error", err)
				}
			}()
		}

		httpServer := &http.Server{
			Addr:        ":" + e.cfg.Server.Port,
			Handler:     srv.Router(),
			ReadTimeout: 5 * time.Second,
			IdleTimeout: 120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("tally backend listening", "addr", httpServer.Addr, "db", e.cfg.Server.DBPath)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}

// watchedConfigPath returns the config file to watch, or "" when none exists.
func watchedConfigPath() string {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return ""
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
