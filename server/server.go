package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sambeau/sage/config"
	"github.com/sambeau/sage/pkg/sage/evaluator"
	"github.com/sambeau/sage/pkg/sage/program"
	"github.com/sambeau/sage/pkg/sage/store"
)

// Server represents a sage web server instance serving one program.
type Server struct {
	config     *config.Config
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	store      *store.Store
	app        atomic.Pointer[app]
	server     *http.Server
	watcher    *Watcher
}

// New opens the store, loads the program and prepares its routes.
func New(cfg *config.Config, configPath string, stdout, stderr io.Writer) (*Server, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, store.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		config:     cfg,
		configPath: configPath,
		stdout:     stdout,
		stderr:     stderr,
		store:      st,
	}

	if err := s.loadProgram(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	return s, nil
}

// loadProgram reads the program file, creates its tables when migrations are
// on and installs a fresh app. The previous app keeps serving if any step fails.
func (s *Server) loadProgram(ctx context.Context) error {
	p, err := program.Load(s.config.Program)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	if s.config.Database.Migrate {
		if err := migrate(ctx, s.store, p); err != nil {
			return fmt.Errorf("migrating tables: %w", err)
		}
	}

	a := newApp(s, p, evaluator.StdlibOptions{Locale: s.config.Locale})
	s.app.Store(a)
	s.logInfo("loaded %s: %d tables, %d endpoints", s.config.Program, len(p.Tables), len(p.Endpoints))
	return nil
}

// Handler returns the complete handler chain: request logging and compression
// around the current program's router.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.app.Load().router.ServeHTTP(w, r)
	})

	handler = newCompressionHandler(handler, s.config.Compression)

	// Request logging is off when only errors are wanted
	if s.config.Logging.Level != "error" {
		handler = newRequestLogger(handler, s.stdout, s.config.Logging.Format)
	}

	return handler
}

// Close releases the database handle.
func (s *Server) Close() error {
	return s.store.Close()
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	addr := s.listenAddr()

	// In dev mode, reload the program whenever its file changes
	if s.config.Server.Dev {
		watcher, err := NewWatcher(s, s.configPath, s.stdout, s.stderr)
		if err != nil {
			s.logError("failed to create watcher: %v", err)
		} else {
			s.watcher = watcher
			if err := s.watcher.Start(ctx); err != nil {
				s.logError("failed to start watcher: %v", err)
			}
			defer s.watcher.Close()
		}
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	https := s.config.Server.HTTPS
	useTLS := https.Cert != "" && !s.config.Server.Dev
	switch {
	case useTLS:
		fmt.Fprintf(s.stdout, "Starting sage on https://%s\n", addr)
	case s.config.Server.Dev:
		fmt.Fprintf(s.stdout, "Starting sage in development mode on http://%s\n", addr)
	default:
		fmt.Fprintf(s.stdout, "Starting sage on http://%s\n", addr)
	}

	errCh := make(chan error, 1)
	go func() {
		if useTLS {
			errCh <- s.server.ListenAndServeTLS(https.Cert, https.Key)
			return
		}
		errCh <- s.server.ListenAndServe()
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		fmt.Fprintf(s.stdout, "\nShutting down gracefully...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// listenAddr returns the address to listen on based on configuration.
func (s *Server) listenAddr() string {
	host := s.config.Server.Host
	if s.config.Server.Dev && host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, s.config.Server.Port)
}

// logInfo logs an informational message
func (s *Server) logInfo(format string, args ...any) {
	if s.config.Logging.Level == "warn" || s.config.Logging.Level == "error" {
		return
	}
	fmt.Fprintf(s.stdout, "[INFO] "+format+"\n", args...)
}

// logWarn logs a warning message
func (s *Server) logWarn(format string, args ...any) {
	if s.config.Logging.Level == "error" {
		return
	}
	fmt.Fprintf(s.stderr, "[WARN] "+format+"\n", args...)
}

// logError logs an error message
func (s *Server) logError(format string, args ...any) {
	fmt.Fprintf(s.stderr, "[ERROR] "+format+"\n", args...)
}

// logDefect logs a contract violation: a state the type checker should have
// ruled out. These are kept apart from [ERROR] so checker bugs stand out.
func (s *Server) logDefect(format string, args ...any) {
	fmt.Fprintf(s.stderr, "[DEFECT] "+format+"\n", args...)
}
