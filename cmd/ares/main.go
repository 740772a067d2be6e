package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ares_api/internal/analysisstore"
	"ares_api/internal/binance"
	"ares_api/internal/cascade"
	"ares_api/internal/config"
	"ares_api/internal/coordinator"
	"ares_api/internal/database"
	"ares_api/internal/dataprovider"
	"ares_api/internal/eventbus"
	"ares_api/internal/executionstore"
	"ares_api/internal/logger"
	"ares_api/internal/notifier"
	"ares_api/internal/observability"
	"ares_api/internal/opsapi"
	"ares_api/internal/orchestrator"
	"ares_api/internal/progressstore"
	"ares_api/internal/providers"
	"ares_api/internal/strategycatalog"

	"golang.org/x/time/rate"
)

// newHealthPing builds the /health connectivity check. For the postgres
// deployment it opens an independent database/sql connection through
// lib/pq so a gorm-level outage (e.g. a wedged prepared-statement cache)
// doesn't mask a genuinely healthy database; for sqlite it just reuses the
// existing *sql.DB, since there's no separate low-level driver to probe
// with.
func newHealthPing(c config.DBConfig, gormDB *gorm.DB) (func() error, error) {
	if c.Driver != config.DriverPostgres {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		return sqlDB.Ping, nil
	}

	pingDB, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, err
	}
	return pingDB.Ping, nil
}

func openDB(c config.DBConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{SkipDefaultTransaction: true}
	if c.Driver == config.DriverSQLite {
		return gorm.Open(sqlite.Open(c.DSN()), gormCfg)
	}
	return gorm.Open(postgres.Open(c.DSN()), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	analysisDB, err := openDB(cfg.Analysis)
	if err != nil {
		log.Fatal("analysis db connection failed: ", err)
	}
	executionDB := analysisDB
	if cfg.Execution.DSN() != cfg.Analysis.DSN() || cfg.Execution.Driver != cfg.Analysis.Driver {
		executionDB, err = openDB(cfg.Execution)
		if err != nil {
			log.Fatal("execution db connection failed: ", err)
		}
	}

	if sqlDB, err := analysisDB.DB(); err == nil {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := database.AutoMigrateAll(analysisDB); err != nil {
		log.Fatal("analysis db migration failed: ", err)
	}
	if err := database.SeedDefaultStrategies(analysisDB); err != nil {
		log.Fatal("strategy catalog seed failed: ", err)
	}
	if executionDB != analysisDB {
		if err := database.AutoMigrateAll(executionDB); err != nil {
			log.Fatal("execution db migration failed: ", err)
		}
	}

	logger.SetGlobalLogger(logger.NewLogger("ares_api", analysisDB))

	otelShutdown, err := observability.SetupOTelSDK(context.Background())
	if err != nil {
		log.Fatal("otel setup failed: ", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	progress, err := progressstore.New(cfg.ProgressStoreRoot)
	if err != nil {
		log.Fatal("progress store init failed: ", err)
	}
	retention, err := progress.StartRetentionScheduler("@hourly", cfg.ProgressRetentionHours)
	if err != nil {
		log.Fatal("progress retention scheduler failed: ", err)
	}
	defer retention.Stop()
	progress.WithEventBus(eventbus.NewEventBusWithRedis(cfg.RedisURL))

	executions := executionstore.NewWithIDFormat(executionDB, executionstore.IDFormat(cfg.ExecutionIDFormat))
	analyses := analysisstore.New(analysisDB)
	strategies := strategycatalog.New(analysisDB)
	cascadeStore := cascade.New(analysisDB)

	binanceClient := binance.NewBinanceClient()
	// The candle cache's INSERT OR IGNORE batching is sqlite syntax; the
	// postgres deployment fetches straight from the exchange instead.
	var candleCache *binance.HistoricalDataManager
	if cfg.Analysis.Driver == config.DriverSQLite {
		if sqlDB, err := analysisDB.DB(); err == nil {
			candleCache = binance.NewHistoricalDataManager(sqlDB)
		}
	}
	dataFactory := func(symbol, timeframe string) *dataprovider.AnalysisProvider {
		return providers.NewAnalysisProvider(binanceClient, candleCache, symbol, timeframe)
	}
	work := orchestrator.New(dataFactory, progress)

	healthPing, err := newHealthPing(cfg.Analysis, analysisDB)
	if err != nil {
		log.Fatal("health ping setup failed: ", err)
	}
	server := opsapi.New(nil, progress, cascadeStore, cfg.GinMode).WithDBPing(healthPing)
	notify := notifier.New(cfg.DiscordWebhookURL, rate.NewLimiter(rate.Every(time.Second), 5)).WithHub(server.Hub())

	coord := coordinator.New(executions, analyses, strategies, work, notify).WithPoolSize(cfg.WorkerPoolSize)
	server.SetCoordinator(coord)
	httpServer := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        server.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	coord.Cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatal("server forced to shutdown: ", err)
	}
	logger.Info("server exiting")
}
