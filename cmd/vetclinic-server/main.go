package main

import (
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vetclinic/backend/internal/config"
)

const serviceName = "vetclinic-server"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Veterinary clinic availability and booking server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(gridCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("err", err))
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the JSON logger at the
// configured level as the default.
func loadConfig() (config.Config, *slog.Logger, error) {
	log := newLogger("info")
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return config.Config{}, log, err
	}

	log = newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)})).With(
		slog.String("service", serviceName),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// databaseLogArgs describes the database without leaking credentials.
func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
