package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sambeau/sage/config"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/program"
	"github.com/sambeau/sage/pkg/sage/repl"
	"github.com/sambeau/sage/pkg/sage/store"
	"github.com/sambeau/sage/server"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	// Set up flags
	flags := flag.NewFlagSet("sage", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to config file")
		devMode     = flags.Bool("dev", false, "Development mode (localhost, reload program on change)")
		port        = flags.Int("port", 0, "Override listen port")
		replMode    = flags.Bool("repl", false, "Start an interactive prompt against the program's database")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)

	// Parse flags
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Handle --help
	if *showHelp {
		printUsage(stdout)
		return nil
	}

	// Handle --version
	if *showVersion {
		fmt.Fprintf(stdout, "sage version %s\n", Version)
		return nil
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, configFile, err := config.LoadWithPath(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply CLI overrides
	if *devMode {
		cfg.Server.Dev = true
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	// Full validation after CLI overrides applied
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if *replMode {
		return startREPL(ctx, cfg, stdout)
	}

	// Create and start server
	srv, err := server.New(cfg, configFile, stdout, stderr)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

// startREPL opens the database and program without migrating and runs the
// interactive prompt until the user leaves.
func startREPL(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	p, err := program.Load(cfg.Program)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, store.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	builder := evaluator.NewBuilder(p, evaluator.StdlibOptions{Locale: cfg.Locale})
	repl.Start(ctx, stdout, repl.NewSession(evaluator.New(st, p), builder, p), Version)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `sage - serve a checked sage program over HTTP

Usage:
  sage [options]

Options:
  --config PATH    Path to config file (default: auto-detect)
  --dev            Development mode (localhost, reload program on change)
  --port PORT      Override listen port
  --repl           Try expressions against the program and its database
  --version        Show version
  --help           Show this help

Config Resolution:
  1. --config flag
  2. SAGE_CONFIG environment variable
  3. ./sage.yaml
  4. ~/.config/sage/sage.yaml

Examples:
  sage                      Start with auto-detected config
  sage --dev                Development mode on localhost:8080
  sage --config site.yaml   Use specific config file
  sage --dev --port 3000    Dev mode on port 3000
  sage --repl               Interactive prompt

`)
}
