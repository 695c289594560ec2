package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/mission-control/internal/api"
	"github.com/untoldecay/mission-control/internal/config"
	"github.com/untoldecay/mission-control/internal/daemon"
	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/hooks"
	"github.com/untoldecay/mission-control/internal/hub"
)

const shutdownTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the workspace and serve the board over HTTP and websocket",
	Long: `Start the synchronization daemon.

The daemon loads every mission document, watches the active and archive
areas plus the agent memory directories, and pushes each change to
websocket subscribers on /ws. Missions that reach "done" are moved to the
archive area automatically.

Only one daemon may serve a workspace at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			settings.ServerAddr = serveAddr
		}
		log, closer, err := newDaemonLogger(settings.Log)
		if err != nil {
			return err
		}
		defer func() { _ = closer.Close() }()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go watchSignals(ctx, cancel, log)

		return runServe(ctx, settings, log, nil)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

// serveLockPath is the single-instance lock for a workspace.
func serveLockPath(root string) string {
	return filepath.Join(root, config.ProjectDir, "serve.lock")
}

// runServe runs the engine and the HTTP server until ctx is canceled or
// either of them fails. ready, when non-nil, receives the bound listener
// address once the server accepts connections.
func runServe(ctx context.Context, s config.Settings, log daemonLogger, ready chan<- string) error {
	lockPath := serveLockPath(s.Root)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring serve lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another mc serve is already running for %s", s.Root)
	}
	defer func() { _ = lock.Unlock() }()

	runner := hooks.NewRunner(s.HooksDir, s.HooksTimeout, log.logger)
	defer runner.Wait()

	opts := engineOptions(s)
	opts.Logger = log.logger
	opts.Hooks = runner
	opts.HubOptions = []hub.Option{hub.WithQueueSize(s.QueueSize), hub.WithPingPeriod(s.PingPeriod)}
	eng := engine.New(opts)

	ln, err := net.Listen("tcp", s.ServerAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.ServerAddr, err)
	}
	srv := &http.Server{
		Handler:           api.New(api.Config{Engine: eng, Logger: log.logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	baseURL := listenURL(ln.Addr())
	unregister := registerDaemon(s, baseURL, log)
	defer unregister()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.Run(gctx); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		if gctx.Err() == nil {
			return errors.New("engine stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", "addr", ln.Addr().String(), "root", s.Root)
		if ready != nil {
			ready <- ln.Addr().String()
		}
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("daemon stopped", "error", err)
		return err
	}
	log.log("daemon stopped")
	return nil
}

// listenURL turns a listener address into a URL clients can dial.
func listenURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// registerDaemon records this server in the daemon registry. Failures only
// cost discovery, so they are logged and ignored.
func registerDaemon(s config.Settings, baseURL string, log daemonLogger) func() {
	reg, err := s.Registry()
	if err != nil {
		log.Warn("daemon registry unavailable", "error", err)
		return func() {}
	}
	pid := os.Getpid()
	entry := daemon.RegistryEntry{Root: s.Root, URL: baseURL, PID: pid, Version: Version, StartedAt: time.Now().UTC()}
	if err := reg.Register(entry); err != nil {
		log.Warn("registering daemon", "error", err)
		return func() {}
	}
	return func() {
		if err := reg.Unregister(s.Root, pid); err != nil {
			log.Warn("unregistering daemon", "error", err)
		}
	}
}

func watchSignals(ctx context.Context, cancel context.CancelFunc, log daemonLogger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, daemonSignals...)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if isReloadSignal(sig) {
				log.Info("received reload signal, ignoring (daemon continues running)")
				continue
			}
			log.Info("received signal, shutting down gracefully", "signal", sig)
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
