package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/meridian/internal/admin"
	"github.com/oriys/meridian/internal/cache"
	"github.com/oriys/meridian/internal/config"
	"github.com/oriys/meridian/internal/connector"
	"github.com/oriys/meridian/internal/invoker"
	"github.com/oriys/meridian/internal/logging"
	"github.com/oriys/meridian/internal/metrics"
	"github.com/oriys/meridian/internal/node"
	"github.com/oriys/meridian/internal/observability"
	"github.com/oriys/meridian/internal/registry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var (
		httpAddr   string
		logLevel   string
		redisAddr  string
		pgDSN      string
		specPath   string
		standalone bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a hub node",
		Long:  "Run the dispatch node: remote-function invokers, the cluster admin message broker, and the relay ingress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("http") {
				cfg.Daemon.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if cmd.Flags().Changed("redis") {
				cfg.Redis.Addr = redisAddr
			}
			if cmd.Flags().Changed("pg-dsn") {
				cfg.Postgres.DSN = pgDSN
			}
			if cmd.Flags().Changed("connectors") {
				cfg.Daemon.ConnectorSpec = specPath
			}

			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
			if cfg.Daemon.AuditLog != "" {
				if err := logging.Default().SetOutput(cfg.Daemon.AuditLog); err != nil {
					return fmt.Errorf("open audit log: %w", err)
				}
				defer logging.Default().Close()
			}

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: "meridian",
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
			}

			own := node.NewIdentity()
			if cfg.Node.ID != "" {
				own = node.Identity(cfg.Node.ID)
			}

			var rdb *redis.Client
			if !standalone && cfg.Redis.Addr != "" {
				rdb = redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				if err := rdb.Ping(context.Background()).Err(); err != nil {
					return fmt.Errorf("redis connection failed: %w", err)
				}
			}

			var store registry.Store
			if cfg.Postgres.DSN != "" {
				pg, err := registry.NewPostgresStore(context.Background(), cfg.Postgres.DSN)
				if err != nil {
					return fmt.Errorf("open postgres store: %w", err)
				}
				store = pg
			} else {
				store = registry.NewMemoryStore()
			}
			defer store.Close()

			// The L2 cache owns the shared Redis client; closing the
			// cache closes the client after the transport is done.
			var contentCache cache.Cache
			if rdb != nil {
				contentCache = cache.NewTieredCache(cache.NewMemoryCache(), cache.NewRedisCacheFromClient(rdb, ""), cfg.Cache.L1TTL)
			} else {
				contentCache = cache.NewMemoryCache()
			}
			defer contentCache.Close()

			var transport admin.Transport
			if rdb != nil {
				transport = admin.NewRedisTransport(own, rdb)
			} else {
				transport = admin.NewChannelHub().Endpoint()
			}

			pool := invoker.NewPool(invoker.Options{
				GlobalExecutorBudget: cfg.Invoker.GlobalExecutorBudget,
				RequestTimeout:       cfg.RequestTimeout(),
			})

			var relay *admin.RelayClient
			if len(cfg.Cluster.RemoteURLs) > 0 {
				relay = admin.NewRelayClient(cfg.Cluster.RemoteURLs, cfg.Cluster.AdminToken, cfg.RequestTimeout())
			}

			broker, err := admin.NewBroker(admin.BrokerConfig{
				Own:       own,
				Transport: transport,
				Relay:     relay,
				Target: &admin.Target{
					Connectors: pool,
					Cache:      contentCache,
				},
			})
			if err != nil {
				return err
			}
			go broker.Listen(context.Background())

			svc, err := registry.NewService(registry.ServiceConfig{
				Store:  store,
				Cache:  contentCache,
				Broker: broker,
			})
			if err != nil {
				return err
			}
			if err := svc.Bootstrap(context.Background(), pool); err != nil {
				return err
			}
			if cfg.Daemon.ConnectorSpec != "" {
				cs, err := loadConnectorSpecs(cfg.Daemon.ConnectorSpec)
				if err != nil {
					return fmt.Errorf("load connector specs: %w", err)
				}
				for _, c := range cs {
					if err := svc.Apply(context.Background(), c, false); err != nil {
						logging.Op().Error("skipping connector from spec file", "connector", c.ID, "error", err)
					}
				}
			}

			mux := http.NewServeMux()
			admin.NewIngress(broker, cfg.Cluster.AdminToken).RegisterRoutes(mux)
			mux.Handle("GET /metrics", metrics.Global().JSONHandler())
			mux.Handle("GET /metrics/prometheus", metrics.PrometheusHandler())
			mux.Handle("GET /metrics/timeseries", metrics.Global().TimeSeriesHandler())
			mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"status":"ok","service":"meridian","node":%q}`, own.String())
			})

			server := &http.Server{
				Addr:    cfg.Daemon.HTTPAddr,
				Handler: observability.HTTPMiddleware(mux),
			}
			go func() {
				logging.Op().Info("meridian http endpoint started", "addr", cfg.Daemon.HTTPAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("http server error", "error", err)
				}
			}()

			logging.Op().Info("meridian node started",
				"node", own,
				"transport", transportName(rdb),
				"store", storeName(cfg),
				"connectors", pool.IDs(),
				"remoteClusters", len(cfg.Cluster.RemoteURLs),
				"logLevel", logging.LevelString(),
			)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			transport.Close()
			pool.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&redisAddr, "redis", "localhost:6379", "Redis address for the cluster transport and L2 cache")
	cmd.Flags().StringVar(&pgDSN, "pg-dsn", "", "Postgres DSN for the connector store")
	cmd.Flags().StringVar(&specPath, "connectors", "", "Connector spec file or directory")
	cmd.Flags().BoolVar(&standalone, "standalone", false, "Run single-node without Redis, using the in-process transport")

	return cmd
}

func loadConnectorSpecs(path string) ([]*connector.Connector, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return connector.ParseDir(path)
	}
	return connector.ParseFile(path)
}

func transportName(rdb *redis.Client) string {
	if rdb != nil {
		return "redis"
	}
	return "in-process"
}

func storeName(cfg *config.Config) string {
	if cfg.Postgres.DSN != "" {
		return "postgres"
	}
	return "memory"
}
