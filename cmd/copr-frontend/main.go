package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/copr-farm/copr/pkg/api"
	"github.com/copr-farm/copr/pkg/cleanup"
	"github.com/copr-farm/copr/pkg/config"
	"github.com/copr-farm/copr/pkg/logging"
	"github.com/copr-farm/copr/pkg/logic"
	"github.com/copr-farm/copr/pkg/metrics"
	"github.com/copr-farm/copr/pkg/ratelimit"
	"github.com/copr-farm/copr/pkg/shutdown"
	"github.com/copr-farm/copr/pkg/store"
	tlsutil "github.com/copr-farm/copr/pkg/tls"
	"github.com/copr-farm/copr/pkg/tracing"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("COPR_CONFIG"), "path to the YAML configuration file")
	generateCert := flag.Bool("generate-cert", false, "generate a self-signed certificate at server.tls.cert_file and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if *generateCert {
		tc := cfg.TLSConfig()
		if err := tlsutil.GenerateSelfSignedCert(tc.CertFile, tc.KeyFile, "copr-frontend", tc.Hosts...); err != nil {
			logger.Fatal("Failed to generate certificate", logging.Fields{"error": err.Error()})
		}
		logger.Info("Certificate generated", logging.Fields{"cert": tc.CertFile, "key": tc.KeyFile})
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Frontend stopped with error", logging.Fields{"error": err.Error()})
		logger.Close()
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	if !cfg.File {
		return logging.NewLogger(level, cfg.JSON), nil
	}
	return logging.NewFileLogger(cfg.Dir, "frontend", "", level, cfg.JSON)
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting Copr frontend", logging.Fields{
		"version":  version,
		"port":     cfg.Server.Port,
		"database": cfg.Database.Type,
		"tls":      cfg.Server.TLS.Enabled,
	})

	shut := shutdown.New(cfg.Server.ShutdownTimeout, logger)

	tracer, err := tracing.InitTracer(cfg.TracingConfig(version), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shut.Register("tracing", tracer.Shutdown)

	dataStore, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}
	shut.Register("store", shutdown.CloseResource(dataStore))
	logger.Info("Store ready", logging.Fields{"type": cfg.Database.Type})

	l := logic.New(dataStore, cfg.LogicConfig())

	var limiter *ratelimit.Limiter
	var clientIP *ratelimit.ClientIP
	if cfg.RateLimit.Enabled {
		if clientIP, err = ratelimit.NewClientIP(cfg.RateLimit.TrustedProxies); err != nil {
			return err
		}
		limiter = ratelimit.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		logger.Info("Rate limiting enabled", logging.Fields{"rps": cfg.RateLimit.RPS, "burst": cfg.RateLimit.Burst})
	}
	if cfg.Backend.Password == "" {
		logger.Warn("backend.password is empty, all /backend requests will be rejected")
	}

	handler := api.NewHandler(l, logger, api.Config{
		BackendPassword: cfg.Backend.Password,
		Limiter:         limiter,
		ClientIP:        clientIP,
	})

	router := mux.NewRouter()
	router.Use(logging.HTTPMiddleware(logger))
	router.Use(tracing.HTTPMiddleware(tracer))

	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry(dataStore)
		router.Use(metrics.NewHTTPMetrics(reg).Middleware)

		metricsRouter := mux.NewRouter()
		metricsRouter.Handle("/metrics", metrics.Handler(reg)).Methods("GET")
		metricsRouter.HandleFunc("/health", handler.Health).Methods("GET")
		metricsSrv := &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Metrics.Port),
			Handler:      metricsRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server listening", logging.Fields{"addr": metricsSrv.Addr})
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", logging.Fields{"error": err.Error()})
				shut.Trigger()
			}
		}()
		shut.Register("metrics server", shutdown.StopHTTPServer(metricsSrv))
	}

	handler.RegisterRoutes(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupCfg := cfg.CleanupConfig()
	if cleanupCfg.Enabled {
		manager := cleanup.NewManager(cleanupCfg, l, logger)
		if limiter != nil {
			manager.SetEvictor(limiter)
		}
		manager.Start(ctx)
		shut.Register("cleanup", func(context.Context) error {
			manager.Stop()
			return nil
		})
	}

	if cfg.Logging.File && cfg.Logging.RotateMaxSize > 0 {
		go rotateLogs(ctx, logger, cfg.Logging.RotateMaxSize)
	}

	tlsConfig, err := tlsutil.LoadServerConfig(cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		TLSConfig:    tlsConfig,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Frontend listening", logging.Fields{"addr": srv.Addr, "url": cfg.Frontend.URL})
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			shut.Trigger()
		}
	}()
	shut.Register("http server", shutdown.StopHTTPServer(srv))

	errs := shut.Wait(ctx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("Frontend stopped")
	return nil
}

func rotateLogs(ctx context.Context, logger *logging.Logger, maxSize int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := logger.RotateIfNeeded(maxSize); err != nil {
				logger.Error("Log rotation failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}
