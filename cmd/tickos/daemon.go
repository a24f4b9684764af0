package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/tickos/internal/actions"
	"github.com/fentz26/tickos/internal/audit"
	"github.com/fentz26/tickos/internal/controlplane"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
	"github.com/fentz26/tickos/internal/store"
	"github.com/fentz26/tickos/internal/ticksource"
	"github.com/fentz26/tickos/internal/trace"
)

const shutdownTimeout = 10 * time.Second

var (
	listenAddr string
	dbPath     string
	retain     time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the tickos daemon",
	Long: `Starts the scheduler loop, the tick source and the HTTP control plane.
Tasks and events declared in the config file are installed before the first tick.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().Bool("no-db", false, "Disable the dispatch trace and audit log")
	daemonCmd.Flags().DurationVar(&retain, "retain", 0, "Prune dispatch records older than this at startup (0 keeps everything)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if noDB, _ := cmd.Flags().GetBool("no-db"); noDB {
		cfg.DB = ""
	}

	logger := newLogger(cfg)
	logger.Info("starting tickos daemon", "freq_hz", cfg.FreqHz, "config", configPath)

	// Persistence is optional; without it trace queries fall back to the
	// in-memory ring.
	var (
		st   *store.Store
		sess *models.Session
		sink trace.Sink
	)
	if cfg.DB != "" {
		st, err = store.New(cfg.DB)
		if err != nil {
			return err
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("database close failed", "error", err)
			}
		}()

		if retain > 0 {
			n, err := st.PruneDispatches(time.Now().Add(-retain))
			if err != nil {
				return fmt.Errorf("prune dispatches: %w", err)
			}
			logger.Info("pruned dispatch records", "deleted", n, "older_than", retain)
		}

		sess, err = st.StartSession(cfg.FreqHz, cfg.TaskCapacity, cfg.DelayCapacity, cfg.EventCapacity)
		if err != nil {
			return err
		}
		sink = st
	}

	sessionID := uuid.NewString()
	if sess != nil {
		sessionID = sess.ID
	}
	logger = logger.With("session", sessionID)

	rec := trace.NewRecorder(sessionID, sink, cfg.TraceBuffer, trace.WithLogger(logger))
	sched, err := scheduler.New(cfg.Config, scheduler.WithLogger(logger), scheduler.WithObserver(rec))
	if err != nil {
		return err
	}

	builder := actions.NewBuilder(sched, cfg.MsToTicks, logger)
	if err := builder.Install(sched, cfg); err != nil {
		return err
	}
	defer builder.Release()

	source := ticksource.New(cfg.TickPeriod(), sched, ticksource.WithLogger(logger))

	opts := []controlplane.ServiceOption{
		controlplane.WithRecorder(rec),
		controlplane.WithActions(builder),
		controlplane.WithTickCounter(source),
	}
	if st != nil {
		opts = append(opts,
			controlplane.WithStore(st, audit.NewPDRWriter(st, logger)),
			controlplane.WithSession(sess))
	}
	service := controlplane.NewService(sched, cfg, opts...)
	server := controlplane.NewServer(service, cfg.Listen, logger)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return source.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx) })
	g.Go(func() error { return server.Serve(ln) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	final := sched.Now()
	if st != nil {
		if endErr := st.EndSession(sess.ID, final); endErr != nil {
			logger.Error("end session failed", "error", endErr)
		}
	}
	logger.Info("shutdown complete", "final_tick", final, "ticks", source.Count(), "skipped", source.Skipped())
	return err
}
