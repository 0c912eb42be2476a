package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/tally/internal/cloudsync"
	"github.com/dukerupert/tally/internal/mirror"
	"github.com/dukerupert/tally/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull every collection from the backend into the local mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		if err := c.sync.ManualSync(cmd.Context()); err != nil {
			if errors.Is(err, cloudsync.ErrDisabled) {
				return fmt.Errorf("sync unavailable: set remote.url and remote.access_key in config")
			}
			return err
		}
		fmt.Printf("Synced %s\n", c.ns.Current())
		return printCounts(c)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current user, sync mode and mirror contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		u := c.ns.CurrentUser()
		fmt.Printf("User:   %s (%s)\n", u.ID, u.Name)
		if c.cfg.RemoteConfigured() {
			fmt.Printf("Sync:   %s (%s)\n", c.sync.State(), c.cfg.Remote.URL)
		} else {
			fmt.Printf("Sync:   %s (no backend configured)\n", c.sync.State())
		}
		fmt.Printf("Mirror: %s\n", c.cfg.MirrorPath)
		return printCounts(c)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the local mirror current with live backend changes",
	Long: `Run the initial session sync, subscribe to change notifications for
tasks, gifts, records and requests, and pull again after changes settle.
Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		if !c.sync.Enabled() {
			return fmt.Errorf("watch unavailable: set remote.url and remote.access_key in config")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := c.sync.Init(ctx); err != nil {
			c.logger.Error("initial sync failed", "error", err)
		}

		err = c.sync.EnableRealtime(ctx, func(collection string) {
			fmt.Printf("%s updated\n", collection)
		})
		if err != nil {
			return fmt.Errorf("enable realtime: %w", err)
		}

		c.logger.Info("watching for changes", "user", c.ns.Current())
		<-ctx.Done()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload local tasks, gifts, records and requests to the backend",
	Long: `Insert every item in the local mirror into the current user's backend
tables. Items are inserted as new rows, so running this twice creates
duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := setupClient()
		if err != nil {
			return err
		}
		defer c.close()

		result := c.sync.MigrateLocalToCloud(cmd.Context())
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		if !result.Success {
			return fmt.Errorf("migration failed after %d items: %s", result.Count, result.Message)
		}
		fmt.Printf("Uploaded %d items for %s\n", result.Count, c.ns.Current())
		return nil
	},
}

var jsonOutput bool

func printCounts(c *client) error {
	counts := []struct {
		name string
		load func(mirror.Store, string) (int, error)
	}{
		{"tasks", count[model.Task]},
		{"gifts", count[model.Gift]},
		{"records", count[model.Record]},
		{"requests", count[model.Request]},
	}
	for _, n := range counts {
		total, err := n.load(c.local, c.ns.Key(n.name))
		if err != nil {
			return fmt.Errorf("read %s: %w", n.name, err)
		}
		fmt.Printf("  %-9s %d\n", n.name, total)
	}
	settings, err := mirror.LoadSettings(c.local, c.ns.Key("settings"))
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	fmt.Printf("  %-9s %d\n", "settings", len(settings))
	return nil
}

func count[T any](s mirror.Store, key string) (int, error) {
	items, err := mirror.LoadList[T](s, key)
	return len(items), err
}

func init() {
	migrateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	rootCmd.AddCommand(syncCmd, statusCmd, watchCmd, migrateCmd)
}
