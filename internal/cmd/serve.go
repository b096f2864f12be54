package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/robert1948/localstorm-sub000/internal/errors"
	"github.com/robert1948/localstorm-sub000/internal/guard"
	"github.com/robert1948/localstorm-sub000/internal/metrics"
	"github.com/robert1948/localstorm-sub000/internal/observability"
	"github.com/robert1948/localstorm-sub000/internal/server"
	"github.com/robert1948/localstorm-sub000/internal/server/handlers"
	"github.com/robert1948/localstorm-sub000/internal/stats"
	"github.com/robert1948/localstorm-sub000/internal/store"
)

const metricsNamespace = "stormguard"

// storeHealthChecker pings the audit database.
type storeHealthChecker struct {
	st *store.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	return c.st.DB.PingContext(ctx)
}

// redisHealthChecker pings the stats sink's Redis connection.
type redisHealthChecker struct {
	sink *stats.RedisSink
}

func (c redisHealthChecker) CheckHealth(ctx context.Context) error {
	return c.sink.Ping(ctx)
}

// engineHealthChecker verifies the admission engine answers snapshots.
type engineHealthChecker struct {
	ctrl *guard.Controller
}

func (c engineHealthChecker) CheckHealth(ctx context.Context) error {
	_ = c.ctrl.Stats()
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission gateway",
	Long: `Start the admission gateway with graceful shutdown support.

Every request is run through rate limiting, burst detection and the block
list before it reaches the upstream API. Without a configured upstream the
server runs standalone and answers admitted requests with 404, which is
useful for testing policies.

Ctrl+C (SIGINT) or SIGTERM triggers a graceful shutdown: the HTTP server
drains in-flight requests, then the engine and its sinks are closed.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Bind host (overrides config)")
	serveCmd.Flags().IntP("port", "p", 0, "Bind port (overrides config)")
	serveCmd.Flags().String("upstream", "", "Upstream URL admitted requests are proxied to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return err
	}
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return err
	}
	upstream, err := cmd.Flags().GetString("upstream")
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if cmd.Flags().Changed("upstream") {
		cfg.Server.UpstreamURL = upstream
	}
	if err := cfg.Validate(); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigInvalid, err, "configuration invalid")
	}

	if err := observability.InitServerLogger("stormguard", cfg.Logging.Level, cfg.Logging.Encoding); err != nil {
		return err
	}
	log := observability.ServerLogger
	defer observability.Sync()

	apperrors.SetLogger(log)

	log.Info("Initializing stormguard",
		zap.String("version", versionInfo.Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("upstream", cfg.Server.UpstreamURL))

	// Engine sinks: the live tally always runs; Prometheus, Redis and the
	// audit writer only when configured.
	live := stats.NewLive()
	engineOpts := []guard.Option{
		guard.WithLogger(log),
		guard.WithDecisionSink(live),
		guard.WithEventSink(live),
	}

	var (
		gm          *observability.GuardMetrics
		httpMetrics *metrics.HTTP
	)
	if cfg.Metrics.Enabled {
		gm = observability.NewGuardMetrics(metricsNamespace)
		httpMetrics = metrics.NewHTTP(gm.Registry(), metricsNamespace)
		engineOpts = append(engineOpts, guard.WithDecisionSink(gm), guard.WithEventSink(gm))
	}

	var (
		rdb       *redis.Client
		redisSink *stats.RedisSink
	)
	if cfg.Stats.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.Redis.Addr,
			Password: cfg.Stats.Redis.Password,
			DB:       cfg.Stats.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		pingErr := rdb.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			// The mirror is advisory, so start anyway; the sink counts
			// what it has to drop.
			log.Warn("Redis stats sink unreachable at startup",
				zap.String("addr", cfg.Stats.Redis.Addr),
				zap.Error(pingErr))
		}
		redisSink = stats.NewRedisSink(rdb,
			stats.WithPrefix(cfg.Stats.Redis.KeyPrefix),
			stats.WithTTL(cfg.Stats.Redis.TTL),
			stats.WithRedisLogger(log))
		engineOpts = append(engineOpts, guard.WithDecisionSink(redisSink), guard.WithEventSink(redisSink))
	}

	var (
		auditStore  *store.Store
		auditWriter *store.AuditWriter
	)
	if cfg.Store.Enabled {
		auditStore, err = store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeServiceUnavailable, err, "audit store unavailable")
		}
		if err := auditStore.Migrate(cmd.Context()); err != nil {
			_ = auditStore.Close()
			return apperrors.WrapInternal(err, "audit store migration failed")
		}
		auditWriter = store.NewAuditWriter(auditStore, cfg.Store.QueueSize, cfg.Store.WritesPerSecond, log)
		engineOpts = append(engineOpts, guard.WithEventSink(auditWriter))
	}

	ctrl, err := guard.New(cfg.Guard, engineOpts...)
	if err != nil {
		return err
	}
	if gm != nil {
		gm.ObserveEngine(metricsNamespace, ctrl)
	}

	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("engine", engineHealthChecker{ctrl: ctrl})
	if auditStore != nil {
		hm.RegisterChecker("audit_store", storeHealthChecker{st: auditStore})
	}
	if redisSink != nil {
		hm.RegisterChecker("stats_redis", redisHealthChecker{sink: redisSink})
	}

	srv, err := server.New(cfg.Server, server.Options{
		Guard:        ctrl,
		Health:       hm,
		Live:         live,
		Audit:        auditStore,
		GuardMetrics: gm,
		HTTPMetrics:  httpMetrics,
		Logger:       log,
	})
	if err != nil {
		ctrl.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		ctrl.Close()
		return apperrors.WrapInternal(err, "server error")
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Stop the engine first so the sinks see no new records, then drain and
	// close them.
	ctrl.Close()
	if auditWriter != nil {
		auditWriter.Close()
	}
	if redisSink != nil {
		redisSink.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if auditStore != nil {
		if err := auditStore.Close(); err != nil {
			log.Warn("Audit store close error", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
	return nil
}
