// Package app wires the pipeline together and runs the role selected by
// configuration: prepare, dispatch, work, reap, or all of them in one
// process for local runs.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"openrange-backtest/api"
	"openrange-backtest/cache"
	"openrange-backtest/config"
	"openrange-backtest/database"
	"openrange-backtest/dispatcher"
	"openrange-backtest/realtime"
	"openrange-backtest/reaper"
	"openrange-backtest/staging"
	"openrange-backtest/tasks"
	"openrange-backtest/warehouse"
	"openrange-backtest/worker"
)

// App represents the main application
type App struct {
	config *config.Config

	broker *cache.RedisClient
	ranges *cache.RedisClient
	series *cache.RedisClient
	queue  *tasks.Queue

	db     *database.Database
	repo   *database.ResultRepository
	reaper *reaper.Reaper

	rtBroker *realtime.Broker
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start runs the configured role until completion or shutdown signal.
func (a *App) Start() error {
	role := a.config.Role
	switch role {
	case "prepare", "dispatch", "work", "reap", "all":
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Broker connections, one per logical database.
	log.Printf("Connecting to broker at %s...", a.config.RedisEndpoint)
	if err := a.connectBroker(); err != nil {
		return err
	}
	defer a.closeConnections()

	a.queue = tasks.NewQueue(a.broker, a.config.Backtest.QueueName)

	// 2. Durable store, required before the reaper touches any work.
	if role == "reap" || role == "all" {
		if err := a.config.RequireDatabase(); err != nil {
			return err
		}
		db, err := database.Connect(
			a.config.DatabaseEndpoint,
			a.config.DatabaseName,
			a.config.DatabaseUser,
			a.config.DatabasePassword,
		)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		a.db = db
		a.repo = database.NewResultRepository(db, a.config.DatabaseTable)
		if err := a.repo.InitSchema(); err != nil {
			return fmt.Errorf("schema initialization failed: %w", err)
		}
	}

	// 3. Batch stages run to completion and return.
	if role == "prepare" || role == "all" {
		if err := a.runPreparation(ctx); err != nil {
			return err
		}
	}
	if role == "dispatch" || role == "all" {
		d := dispatcher.New(a.queue, a.config.Backtest.TaskName, a.config.Grid)
		if _, err := d.Dispatch(ctx); err != nil {
			return fmt.Errorf("dispatch failed: %w", err)
		}
	}
	if role == "prepare" || role == "dispatch" {
		return nil
	}

	// 4. Monitor surface for the long-running roles.
	a.rtBroker = realtime.NewBroker()
	go a.rtBroker.Run()

	apiServer := api.NewServer(a.broker, a.series, a.queue, a.repo, a.rtBroker)
	go func() {
		if err := apiServer.Start(ctx, a.config.APIPort); err != nil {
			log.Printf("Monitor API failed: %v", err)
		}
	}()

	var wg sync.WaitGroup

	// 5. Worker pool.
	if role == "work" || role == "all" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := a.config.Backtest.WorkerConcurrency
			log.Printf("Starting %d backtest workers on queue %s", n, a.queue.Name())
			if err := worker.New(a.broker, a.ranges, a.series, a.queue).RunPool(ctx, n); err != nil && ctx.Err() == nil {
				log.Printf("Worker pool stopped: %v", err)
				cancel()
			}
		}()
	}

	// 6. Reaper.
	if role == "reap" || role == "all" {
		interval := time.Duration(a.config.Backtest.ReaperIntervalSeconds) * time.Second
		a.reaper = reaper.New(a.broker, a.repo, interval)
		log.Printf("Starting reaper, interval %s", interval)
		go a.reaper.Start()
	}

	// 7. Wait for interrupt and perform graceful shutdown.
	err := a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

func (a *App) connectBroker() error {
	var err error
	a.broker, err = cache.NewRedisClient(a.config.RedisEndpoint, a.config.RedisPassword, cache.BrokerDB)
	if err != nil {
		return err
	}
	a.ranges, err = cache.NewRedisClient(a.config.RedisEndpoint, a.config.RedisPassword, cache.RangesDB)
	if err != nil {
		return err
	}
	a.series, err = cache.NewRedisClient(a.config.RedisEndpoint, a.config.RedisPassword, cache.SeriesDB)
	return err
}

func (a *App) runPreparation(ctx context.Context) error {
	if a.config.WarehouseDSN == "" {
		return fmt.Errorf("WAREHOUSE_DSN is required for the preparation stage")
	}

	log.Println("Connecting to tick warehouse...")
	wh, err := warehouse.Open(a.config.WarehouseDSN)
	if err != nil {
		return err
	}
	defer wh.Close()

	writer := staging.NewWriter(a.ranges, a.series)
	preparer := staging.NewPreparer(wh, writer, a.config.Backtest)

	days, err := preparer.Run(ctx)
	if err != nil {
		return fmt.Errorf("preparation failed: %w", err)
	}
	log.Printf("Preparation complete, %d trading days staged", days)
	return nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.reaper != nil {
			log.Println("Stopping reaper...")
			a.reaper.Stop()
		}
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		log.Println("Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

func (a *App) closeConnections() {
	for _, c := range []*cache.RedisClient{a.broker, a.ranges, a.series} {
		if c != nil {
			c.Close()
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}
}
