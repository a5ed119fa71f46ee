// boardd is the realtime kanban board backend. All task mutations arrive over
// the websocket channel; HTTP exposes health and a read-only task list.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/anupamxy/kanban-board/internal/api"
	"github.com/anupamxy/kanban-board/internal/db"
)

var version = "dev"

var (
	flagAddr   string
	flagDBPath string
)

var rootCmd = &cobra.Command{
	Use:   "boardd",
	Short: "Realtime collaborative kanban board server",
	Long: `boardd serves a multi-user task board: clients connect over a websocket,
mutations are conflict-resolved per field, and authoritative state is fanned
out to every observer.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log := setupLogger(cfg)

		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open board db: %w", err)
		}
		defer store.Close()

		srv := api.NewServer(cfg, store, log)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		log.Info("server started", "addr", cfg.ListenAddr, "db", cfg.DBPath, "version", version)

		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "err", err)
		}
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the board database and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("initialize board db: %w", err)
		}
		defer store.Close()
		if err := store.Ping(); err != nil {
			return err
		}
		fmt.Printf("initialized %s\n", cfg.DBPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the boardd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// loadConfig merges env configuration with command-line flag overrides.
func loadConfig() api.Config {
	cfg := api.LoadConfig()
	if flagAddr != "" {
		cfg.ListenAddr = flagAddr
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	return cfg
}

// setupLogger installs the process-wide slog handler per config: JSON or text,
// stderr or a size-rotated file.
func setupLogger(cfg api.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 3,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides BOARD_LISTEN_ADDR)")
	serveCmd.Flags().StringVar(&flagDBPath, "db", "", "database path (overrides BOARD_DB_PATH)")
	initCmd.Flags().StringVar(&flagDBPath, "db", "", "database path (overrides BOARD_DB_PATH)")
	rootCmd.AddCommand(serveCmd, initCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
