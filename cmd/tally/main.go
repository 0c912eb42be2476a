package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/tally/internal/cloudsync"
	"github.com/dukerupert/tally/internal/config"
	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/logging"
	"github.com/dukerupert/tally/internal/mirror"
	"github.com/dukerupert/tally/internal/remote"
	"github.com/dukerupert/tally/internal/users"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Household task and reward tracker with cloud sync",
	Long: `tally keeps a local mirror of a household's tasks, gifts, activity
records, redemption requests and settings in step with a shared backend.

Run 'tally serve' on the machine that hosts the backend, then point each
device at it with remote.url and remote.access_key in config.yaml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/tally/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles what every command needs. close releases the log file and
// databases.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	closer []io.Closer
}

func (e *env) close() {
	for i := len(e.closer) - 1; i >= 0; i-- {
		e.closer[i].Close()
	}
}

func setup() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, logCloser := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	return &env{cfg: cfg, logger: logger, closer: []io.Closer{logCloser}}, nil
}

// client is the device side: mirror, user resolver and sync coordinator.
type client struct {
	*env
	local *mirror.SQLiteStore
	ns    *users.Resolver
	sync  *cloudsync.Coordinator
}

func setupClient() (*client, error) {
	e, err := setup()
	if err != nil {
		return nil, err
	}

	reg, err := e.cfg.Registry()
	if err != nil {
		e.close()
		return nil, fmt.Errorf("user registry: %w", err)
	}

	db, err := database.OpenMirror(e.cfg.MirrorPath)
	if err != nil {
		e.close()
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	e.closer = append(e.closer, db)

	local := mirror.NewSQLiteStore(db)
	ns := users.NewResolver(reg, local, e.logger.With("component", "users"))

	var rc remote.Client
	hc, err := remote.New(remote.Config{
		URL:       e.cfg.Remote.URL,
		AccessKey: e.cfg.Remote.AccessKey,
		Logger:    e.logger.With("component", "remote"),
	})
	switch {
	case errors.Is(err, remote.ErrNotConfigured):
		e.logger.Info("no backend configured, using local data only")
	case err != nil:
		e.logger.Warn("backend client unavailable, using local data only", "error", err)
	default:
		rc = hc
	}

	coord := cloudsync.New(rc, ns, local, mirror.NewMemoryStore(), cloudsync.Config{
		Debounce:       e.cfg.Sync.Debounce,
		SuppressWindow: e.cfg.Sync.SuppressWindow,
	}, e.logger.With("component", "cloudsync"))
	e.closer = append(e.closer, coord)

	return &client{env: e, local: local, ns: ns, sync: coord}, nil
}
