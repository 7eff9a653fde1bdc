package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaostheory/staking-service/internal/application"
	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/internal/infrastructure/chain"
	"github.com/chaostheory/staking-service/internal/infrastructure/postgres"
	httpHandler "github.com/chaostheory/staking-service/internal/interfaces/http"
	"github.com/chaostheory/staking-service/pkg/config"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("Starting CHAOS staking service...",
		"hub", cfg.Staking.HubAddress.Hex(),
		"token", cfg.Staking.TokenAddress.Hex(),
		"multisig", cfg.Staking.Multisig.Hex(),
		"chain_id", cfg.RPC.ChainID,
	)

	probe := chain.NewProbe(cfg.RPC.URL, cfg.RPC.RequestTimeout, cfg.RPC.MaxRetries, cfg.RPC.RetryDelay, log)
	{
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RPC.RequestTimeout)
		err := probe.Check(ctx, cfg.RPC.ChainID)
		cancel()
		if err != nil {
			log.Fatalw("RPC endpoint check failed", "url", cfg.RPC.URL, "error", err)
		}
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.RPC.RequestTimeout)
	client, err := chain.Dial(dialCtx, cfg.RPC.URL)
	cancelDial()
	if err != nil {
		log.Fatalw("Failed to connect to RPC endpoint", "error", err)
	}
	defer client.Close()

	reader := chain.NewReader(client, cfg.RPC.RateLimit, cfg.RPC.RateBurst, cfg.RPC.RequestTimeout, log)

	// A nil interface, never a typed nil, means "no wallet connected".
	var wallet domain.Wallet
	var watched *common.Address
	switch {
	case cfg.Wallet.PrivateKey != "":
		keyed, err := chain.NewKeyedWallet(client, cfg.Wallet.PrivateKey, cfg.RPC.ChainID, log)
		if err != nil {
			log.Fatalw("Failed to load wallet", "error", err)
		}
		wallet = keyed
		addr := keyed.Address()
		watched = &addr
		log.Infow("Wallet connected", "address", addr.Hex())
	case cfg.Wallet.Address != "":
		addr := common.HexToAddress(cfg.Wallet.Address)
		watched = &addr
		log.Infow("Watching wallet without signing key", "address", addr.Hex())
	default:
		log.Info("No wallet configured, running read-only")
	}

	var recorder domain.SnapshotRecorder = postgres.NoopRecorder{}
	if cfg.Database.Enabled {
		if cfg.Database.MigrateOnStart {
			if err := postgres.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath, log); err != nil {
				log.Fatalw("Failed to run migrations", "error", err)
			}
		}

		db, err := postgres.NewConnection(&cfg.Database, log)
		if err != nil {
			log.Fatalw("Failed to connect to database", "error", err)
		}
		defer db.Close()

		repo := postgres.NewRepository(db, log)
		recorder = repo

		retention := application.NewRetention(repo, cfg.Database.Retention, log)
		if err := retention.Schedule(cfg.Database.PruneSchedule); err != nil {
			log.Fatalw("Failed to schedule snapshot retention", "error", err)
		}
		retention.Start()
		defer retention.Stop()
	}

	aggregator := application.NewAggregator(reader, recorder, &cfg.Staking, watched, log)
	if err := aggregator.Start(); err != nil {
		log.Fatalw("Failed to start dashboard refresh", "error", err)
	}
	defer aggregator.Stop()

	submitter := application.NewSubmitter(wallet, aggregator, &cfg.Staking, &cfg.Submitter, log)

	router := httpHandler.NewRouter(aggregator, submitter, probe, cfg, log)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// actions hold the request open until the transaction settles
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{
				Addr:    ":" + cfg.Metrics.Port,
				Handler: metricsMux,
			}
			log.Infow("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("Metrics server error", "error", err)
			}
		}()
	}

	go func() {
		log.Infow("Starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// closes the stream subscribers so open websockets get a close frame
	aggregator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}
