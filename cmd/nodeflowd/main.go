// Command nodeflowd serves the node-graph execution engine: a WebSocket
// session endpoint with progress streaming plus an HTTP surface for run
// submission, queue inspection, run history, and Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/nodeflow/nodeflow/graph"
	"github.com/nodeflow/nodeflow/graph/emit"
	"github.com/nodeflow/nodeflow/graph/store"
	"github.com/nodeflow/nodeflow/nodes"
	"github.com/nodeflow/nodeflow/nodes/anthropic"
	"github.com/nodeflow/nodeflow/nodes/gemini"
	"github.com/nodeflow/nodeflow/nodes/openai"
	"github.com/nodeflow/nodeflow/server"
)

var (
	flagListen     string
	flagStore      string
	flagSQLitePath string
	flagMySQLDSN   string
	flagRedisAddr  string
	flagTrace      bool
	flagLogJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "nodeflowd",
	Short: "Node-graph execution engine with real-time progress streaming",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key <provider> <key>",
	Short: "Store a hosted-model API key (gemini, openai, anthropic)",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := nodes.SaveAPIKey(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("stored API key for %s\n", args[0])
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", ":8188", "HTTP listen address")
	serveCmd.Flags().StringVar(&flagStore, "store", "memory", "run history store: memory, sqlite, or mysql")
	serveCmd.Flags().StringVar(&flagSQLitePath, "sqlite-path", "./nodeflow.db", "SQLite database path (store=sqlite)")
	serveCmd.Flags().StringVar(&flagMySQLDSN, "mysql-dsn", os.Getenv("NODEFLOW_MYSQL_DSN"), "MySQL DSN (store=mysql)")
	serveCmd.Flags().StringVar(&flagRedisAddr, "redis-addr", os.Getenv("NODEFLOW_REDIS_ADDR"), "Redis address for the event mirror (empty disables)")
	serveCmd.Flags().BoolVar(&flagTrace, "trace", false, "enable OpenTelemetry tracing (stdout exporter)")
	serveCmd.Flags().BoolVar(&flagLogJSON, "log-json", false, "log in JSON instead of text")

	configCmd.AddCommand(setKeyCmd)
	rootCmd.AddCommand(serveCmd, configCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = history.Close() }()

	registry := nodes.Builtin()
	for provider, register := range map[string]func(*nodes.Registry) (bool, error){
		"gemini":    gemini.RegisterIfConfigured,
		"openai":    openai.RegisterIfConfigured,
		"anthropic": anthropic.RegisterIfConfigured,
	} {
		ok, err := register(registry)
		if err != nil {
			return fmt.Errorf("failed to configure %s backend: %w", provider, err)
		}
		if ok {
			logger.Info("hosted-model backend enabled", "provider", provider)
		}
	}

	promRegistry := prometheus.NewRegistry()
	metrics := graph.NewMetrics(promRegistry)

	sessions := server.NewRegistry(logger)
	emitters := emit.Multi{
		emit.NewLogEmitter(os.Stderr, flagLogJSON),
		server.NewBroadcaster(sessions),
	}

	if flagRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: flagRedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, event mirror disabled", "addr", flagRedisAddr, "error", err)
		} else {
			emitters = append(emitters, emit.NewRedisEmitter(client, logger))
			logger.Info("redis event mirror enabled", "addr", flagRedisAddr)
		}
	}

	if flagTrace {
		tp, err := newTracerProvider()
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		otel.SetTracerProvider(tp)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("nodeflow")))
	}

	queue := graph.NewSubmissionQueue()
	executor := graph.NewExecutor(registry,
		graph.WithEmitter(emitters),
		graph.WithMetrics(metrics),
		graph.WithLogger(logger),
	)

	srv := server.New(server.Config{
		Addr:           flagListen,
		Resolver:       registry,
		Executor:       executor,
		Queue:          queue,
		Registry:       sessions,
		History:        history,
		Metrics:        metrics,
		Logger:         logger,
		MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})

	logger.Info("server starting", "addr", flagListen, "store", flagStore)
	err = srv.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		logger.Info("server stopped")
		return nil
	}
	return err
}

func newLogger() *slog.Logger {
	if flagLogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func openHistory() (store.Store, error) {
	switch flagStore {
	case "memory":
		return store.NewMemStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(flagSQLitePath)
	case "mysql":
		if flagMySQLDSN == "" {
			return nil, errors.New("store=mysql requires --mysql-dsn or NODEFLOW_MYSQL_DSN")
		}
		return store.NewMySQLStore(flagMySQLDSN)
	default:
		return nil, fmt.Errorf("unknown store %q", flagStore)
	}
}

func newTracerProvider() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("nodeflowd"),
	))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
