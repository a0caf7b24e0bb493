package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"askrelay/internal/config"
	"askrelay/internal/metrics"
	providerfactory "askrelay/internal/provider/factory"
	"askrelay/internal/relay"
	"askrelay/internal/server"
)

const serveUsage = `Usage:
  askrelay serve [--config <path>] [--port <port>] [--env-file <path>]

Flags:
  --config   string   Path to YAML configuration file (optional)
  --port     int      Override server port from configuration
  --env-file string   Dotenv file loaded before reading the environment (default ".env")

Environment:
  OPENROUTER_API_KEY    upstream credential
  OPENROUTER_MODEL      model override
  OPENROUTER_BASE_URL   upstream base URL
  URL                   public site URL sent as HTTP-Referer
  PORT, LOG_LEVEL`

func serve(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath, envFile string
	var overridePort int
	flags.StringVar(&cfgPath, "config", "", "path to configuration file")
	flags.IntVar(&overridePort, "port", 0, "override server port")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	slog.SetDefault(newLogger(cfg.Log.Level))

	gateway, err := providerfactory.NewGateway(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("initialise gateway: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rl, err := relay.New(cfg.Upstream, gateway, m)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rl, m, reg)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}
