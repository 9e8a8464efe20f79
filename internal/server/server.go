// Package server wires the collaboration engine into one process: the
// websocket endpoint, the admin API, peer sync, background workers and
// graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eniz1806/SyncPad/internal/api"
	"github.com/eniz1806/SyncPad/internal/auditlog"
	"github.com/eniz1806/SyncPad/internal/backup"
	"github.com/eniz1806/SyncPad/internal/config"
	"github.com/eniz1806/SyncPad/internal/identity"
	"github.com/eniz1806/SyncPad/internal/lifecycle"
	"github.com/eniz1806/SyncPad/internal/metrics"
	"github.com/eniz1806/SyncPad/internal/middleware"
	"github.com/eniz1806/SyncPad/internal/notify"
	"github.com/eniz1806/SyncPad/internal/ratelimit"
	"github.com/eniz1806/SyncPad/internal/replication"
	"github.com/eniz1806/SyncPad/internal/search"
	"github.com/eniz1806/SyncPad/internal/session"
	"github.com/eniz1806/SyncPad/internal/snapshot"
)

type Server struct {
	cfg         *config.Config
	registry    *session.Registry
	store       snapshot.Store
	provider    identity.Provider
	collector   *metrics.Collector
	notifyDisp  *notify.Dispatcher
	changeLog   *replication.ChangeLog
	syncWorker  *replication.Worker
	limiter     *ratelimit.Limiter
	bandwidth   *ratelimit.BandwidthLimiter
	audit       *auditlog.Logger
	search      *search.Index
	backupSched *backup.Scheduler
	upgrader    websocket.Upgrader

	// replicaID stamps every CRDT mutation made by this process.
	replicaID string
	peerNames []string

	notifyMu   sync.Mutex
	lastNotify map[string]time.Time
}

func New(cfg *config.Config) (*Server, error) {
	registry := session.NewRegistry()

	// Replica id doubles as the sync site id. Without sync it only has
	// to be unique per process; LWW tie-breaks are the sole consumer.
	replicaID := cfg.Sync.SiteID
	if replicaID == "" {
		replicaID = "site-" + uuid.NewString()[:8]
	}

	var store snapshot.Store
	if cfg.Snapshot.Enabled {
		if err := os.MkdirAll(cfg.Snapshot.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
		bolt, err := snapshot.NewBoltStore(filepath.Join(cfg.Snapshot.Dir, "syncpad.db"))
		if err != nil {
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		store = bolt
		slog.Info("snapshots enabled", "dir", cfg.Snapshot.Dir, "interval_secs", cfg.Snapshot.IntervalSecs)

		if cfg.Snapshot.ScrubOnStart {
			removed, err := snapshot.Scrub(store)
			if err != nil {
				slog.Warn("snapshot scrub failed", "error", err)
			} else if len(removed) > 0 {
				slog.Warn("snapshot scrub removed corrupt documents", "documents", removed)
			}
		}
	}

	provider, err := identity.New(cfg.Auth)
	if err != nil {
		closeStore(store)
		return nil, fmt.Errorf("init identity provider: %w", err)
	}
	if cfg.Auth.Mode != "" && cfg.Auth.Mode != "passthrough" {
		slog.Info("join authentication enabled", "mode", cfg.Auth.Mode)
	}

	collector := metrics.NewCollector(registry)

	nc := cfg.Notifications
	notifyDisp := notify.NewDispatcher(nc, replicaID)
	if nc.Kafka.Enabled && len(nc.Kafka.Brokers) > 0 && nc.Kafka.Topic != "" {
		notifyDisp.AddBackend(notify.NewKafkaBackend(nc.Kafka.Brokers, nc.Kafka.Topic))
	}
	if nc.NATS.Enabled && nc.NATS.URL != "" && nc.NATS.Subject != "" {
		natsBackend, err := notify.NewNATSBackend(nc.NATS.URL, nc.NATS.Subject)
		if err != nil {
			slog.Warn("nats backend failed to connect, skipping", "error", err)
		} else {
			notifyDisp.AddBackend(natsBackend)
		}
	}
	if nc.Redis.Enabled && nc.Redis.Addr != "" {
		notifyDisp.AddBackend(notify.NewRedisBackend(nc.Redis.Addr, nc.Redis.Channel, nc.Redis.ListKey))
	}
	if nc.Postgres.Enabled && nc.Postgres.ConnString != "" {
		pgBackend, err := notify.NewPostgresBackend(nc.Postgres.ConnString, nc.Postgres.Table)
		if err != nil {
			slog.Warn("postgres backend failed to open, skipping", "error", err)
		} else {
			notifyDisp.AddBackend(pgBackend)
		}
	}
	if nc.Elasticsearch.Enabled && nc.Elasticsearch.URL != "" {
		notifyDisp.AddBackend(notify.NewElasticsearchBackend(nc.Elasticsearch.URL, nc.Elasticsearch.Index))
	}

	var changeLog *replication.ChangeLog
	var syncWorker *replication.Worker
	var peerNames []string
	if cfg.Sync.Enabled && len(cfg.Sync.Peers) > 0 {
		changeLog = replication.NewChangeLog()
		syncWorker = replication.NewWorker(registry, store, changeLog, cfg.Sync)
		for _, p := range cfg.Sync.Peers {
			peerNames = append(peerNames, p.Name)
		}
		slog.Info("site sync enabled",
			"site_id", cfg.Sync.SiteID, "peers", len(peerNames), "scan_interval_secs", cfg.Sync.ScanIntervalSecs)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.MessagesPerSec, cfg.RateLimit.Burst)
		slog.Info("rate limiting enabled",
			"messages_per_sec", cfg.RateLimit.MessagesPerSec, "burst", cfg.RateLimit.Burst)
	}
	var bandwidth *ratelimit.BandwidthLimiter
	if cfg.RateLimit.DumpBytesPerSec > 0 {
		bandwidth = ratelimit.NewBandwidthLimiter(cfg.RateLimit.DumpBytesPerSec)
	}

	var audit *auditlog.Logger
	if cfg.Audit.Enabled {
		audit, err = auditlog.NewLogger(cfg.Audit.FilePath)
		if err != nil {
			closeStore(store)
			return nil, fmt.Errorf("init audit log: %w", err)
		}
		slog.Info("audit log enabled", "path", cfg.Audit.FilePath)
	}

	index := search.NewIndex()
	if store != nil {
		if err := index.Build(store); err != nil {
			slog.Warn("search index build failed", "error", err)
		} else if n := index.Count(); n > 0 {
			slog.Info("search index built", "documents", n)
		}
	}

	var backupSched *backup.Scheduler
	if cfg.Backup.Enabled && store != nil {
		backupSched = backup.NewScheduler(store, cfg.Backup)
		slog.Info("backups enabled",
			"dir", cfg.Backup.Dir, "schedule", cfg.Backup.ScheduleCron, "keep", cfg.Backup.Keep)
	}

	return &Server{
		cfg:         cfg,
		registry:    registry,
		store:       store,
		provider:    provider,
		collector:   collector,
		notifyDisp:  notifyDisp,
		changeLog:   changeLog,
		syncWorker:  syncWorker,
		limiter:     limiter,
		bandwidth:   bandwidth,
		audit:       audit,
		search:      index,
		backupSched: backupSched,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
		replicaID:  replicaID,
		peerNames:  peerNames,
		lastNotify: make(map[string]time.Time),
	}, nil
}

func closeStore(store snapshot.Store) {
	if store != nil {
		store.Close()
	}
}

// Run starts the server and blocks until a shutdown signal arrives or
// the listener fails.
func (s *Server) Run() error {
	addr := s.cfg.ListenAddr()

	apiHandler := api.NewHandler(s.registry, s.store, s.collector, s.cfg)
	apiHandler.SetSearchIndex(s.search)
	if s.syncWorker != nil {
		apiHandler.SetSyncWorker(s.syncWorker)
	}
	if s.limiter != nil {
		apiHandler.SetRateLimiter(s.limiter)
	}
	if s.bandwidth != nil {
		apiHandler.SetBandwidthLimiter(s.bandwidth)
	}
	if s.backupSched != nil {
		apiHandler.SetBackupScheduler(s.backupSched)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler(s.collector.StartTime()))
	mux.HandleFunc("/readyz", readyHandler(s.store))
	mux.Handle("/metrics", s.collector)
	mux.Handle("/api/v1/",
		middleware.PanicRecovery(middleware.RequestID(middleware.Metrics(s.collector, apiHandler))))
	mux.HandleFunc("/ws", s.handleWS)
	if s.cfg.Sync.Enabled {
		mux.HandleFunc("/internal/sync", s.handleSyncPush)
	}

	tlsCfg, challenge, err := s.listenerTLS()
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:      addr,
		Handler:   mux,
		TLSConfig: tlsCfg,
	}
	if challenge != nil {
		// The ACME HTTP-01 challenge has to answer on plain port 80.
		go func() {
			if err := http.ListenAndServe(":80", challenge); err != nil {
				slog.Warn("acme challenge listener stopped", "error", err)
			}
		}()
	}

	scheme := "ws"
	if tlsCfg != nil || s.cfg.Server.TLS.Enabled {
		scheme = "wss"
	}
	slog.Info("syncpad starting",
		"addr", addr, "endpoint", fmt.Sprintf("%s://%s/ws", scheme, addr), "replica_id", s.replicaID)

	// Reaper for abandoned sessions.
	reapCtx, reapCancel := context.WithCancel(context.Background())
	defer reapCancel()
	reaper := lifecycle.NewWorker(s.registry, s.store, s.cfg.Session.ReapIntervalSecs, s.cfg.Session.MaxIdleSecs)
	reaper.SetCloseHook(func(documentID string) {
		s.forgetDocument(documentID)
		s.reindexStored(documentID)
		s.notifyDisp.Dispatch(notify.EventSessionClosed, documentID, "", nil)
	})
	go reaper.Run(reapCtx)

	// Periodic snapshot flush of live documents.
	if s.store != nil && s.cfg.Snapshot.IntervalSecs > 0 {
		schedCtx, schedCancel := context.WithCancel(context.Background())
		defer schedCancel()
		go snapshot.NewScheduler(s.registry, s.store, s.cfg.Snapshot.IntervalSecs).Run(schedCtx)
	}

	// Webhook delivery workers.
	notifyCtx, notifyCancel := context.WithCancel(context.Background())
	defer notifyCancel()
	s.notifyDisp.Start(notifyCtx)

	// Outbound site sync.
	if s.syncWorker != nil {
		syncCtx, syncCancel := context.WithCancel(context.Background())
		defer syncCancel()
		go s.syncWorker.Run(syncCtx)
	}

	// Nightly snapshot store export.
	if s.backupSched != nil {
		backupCtx, backupCancel := context.WithCancel(context.Background())
		defer backupCancel()
		go s.backupSched.Run(backupCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		switch {
		case tlsCfg != nil:
			errCh <- httpServer.ListenAndServeTLS("", "")
		case s.cfg.Server.TLS.Enabled:
			errCh <- httpServer.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		default:
			errCh <- httpServer.ListenAndServe()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	timeout := time.Duration(s.cfg.Server.ShutdownTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Websocket connections are hijacked, Shutdown will not close them.
	// Draining the sessions first unblocks their read loops and flushes
	// final document state.
	s.drainSessions()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown timed out", "timeout", timeout, "error", err)
		return err
	}

	slog.Info("server stopped")
	return nil
}

// listenerTLS resolves the TLS setup for the main listener. AutoTLS wins
// over static cert files when both are configured.
func (s *Server) listenerTLS() (*tls.Config, http.Handler, error) {
	if !s.cfg.Server.AutoTLS.Enabled {
		return nil, nil, nil
	}
	tlsCfg, challenge, err := newAutoTLS(s.cfg.Server.AutoTLS)
	if err != nil {
		return nil, nil, fmt.Errorf("init autotls: %w", err)
	}
	return tlsCfg, challenge, nil
}

// drainSessions saves and closes every live session.
func (s *Server) drainSessions() {
	sessions := s.registry.List()
	for _, sess := range sessions {
		if s.store != nil {
			state, err := sess.DocumentState()
			if err != nil {
				slog.Error("drain error serializing document",
					"document_id", sess.DocumentID(), "error", err)
			} else if err := s.store.Save(sess.DocumentID(), state); err != nil {
				slog.Error("drain error saving document",
					"document_id", sess.DocumentID(), "error", err)
			}
		}
		sess.CloseAll()
		s.registry.Remove(sess.DocumentID())
	}
	if len(sessions) > 0 {
		slog.Info("drained live sessions", "count", len(sessions))
	}
}

func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.notifyDisp != nil {
		s.notifyDisp.Stop()
	}
	if s.audit != nil {
		s.audit.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}
