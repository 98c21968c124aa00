package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"form4-sentinel/api"
	"form4-sentinel/app"
	"form4-sentinel/cache"
	"form4-sentinel/config"
	"form4-sentinel/llm"
	"form4-sentinel/notifications"
	"form4-sentinel/realtime"
	"form4-sentinel/universe"
)

// runServe boots the full service: database, cache, filing monitor, alert
// dispatcher, SSE broker, and the HTTP API. Blocks until SIGINT/SIGTERM.
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database + schema
	log.Println("📦 Connecting to database...")
	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Println("✅ Database ready")

	// 2. Redis cache (optional)
	redisClient := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if redisClient == nil {
		log.Println("⚠️ Redis unavailable, recommendation caching disabled")
	} else {
		defer redisClient.Close()
		log.Println("✅ Redis connected")
	}
	recCache := cache.NewRecommendationCache(redisClient)

	// 3. LLM narrator (optional)
	var narrator app.Narrator
	if cfg.LLM.Enabled {
		narrator = llm.NewClient(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model)
		log.Printf("✅ LLM recommendations ENABLED (model: %s)", cfg.LLM.Model)
	} else {
		log.Println("ℹ️ LLM recommendations DISABLED, using template fallback")
	}

	// 4. Analysis pipeline
	analyzer := app.NewAnalyzer(repo, cfg.Detection)
	composite := app.NewCompositeEngine(narrator, recCache)

	// 5. SSE broker
	broker := realtime.NewBroker()
	go broker.Run()

	// 6. Alert service, wired to the broker
	alertSvc := app.NewAlertService(repo, cfg.Detection.AnomalyThreshold)
	alertSvc.Broadcaster = broker

	// 7. Ticker universe
	tickers, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return err
	}
	log.Printf("📊 Universe loaded: %d tickers", len(tickers))

	// 8. Filing monitor (ATOM poll + batch sweep)
	edgarClient := newEdgarClient(cfg)
	monitor := app.NewFilingMonitor(repo, edgarClient, tickers, cfg.Monitor)
	monitor.OnNewFilings = broker.BroadcastTransactions
	monitor.Start(ctx)

	// 9. Alert webhook dispatcher
	dispatcher := notifications.NewAlertDispatcher(repo, cfg.AlertWebhookURL)
	dispatcher.Start(ctx)

	// 10. HTTP API
	server := api.NewServer(repo, edgarClient, analyzer, composite, nil, alertSvc, broker, tickers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(cfg.APIPort); err != nil {
			log.Printf("❌ API server error: %v", err)
		}
	}()

	err = waitForShutdown(cancel, server, monitor, dispatcher, broker)
	wg.Wait()
	return err
}

func waitForShutdown(cancel context.CancelFunc, server *api.Server,
	monitor *app.FilingMonitor, dispatcher *notifications.AlertDispatcher,
	broker *realtime.Broker) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	fmt.Println("\n🛑 Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		log.Println("📊 Stopping filing monitor...")
		monitor.Stop()
		log.Println("📊 Stopping alert dispatcher...")
		dispatcher.Stop()
		log.Println("📊 Stopping SSE broker...")
		broker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("⚠️ Shutdown timed out, forcing exit")
	}

	return server.Stop(shutdownCtx)
}
