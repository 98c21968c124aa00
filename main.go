package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"form4-sentinel/app"
	"form4-sentinel/config"
	"form4-sentinel/database"
	"form4-sentinel/edgar"
	"form4-sentinel/universe"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: form4-sentinel <command> [flags]

Commands:
  ingest            Fetch Form 4 filings for the universe (--days-back N)
  analyze           Run anomaly analysis for one ticker (--ticker T)
  scan              Analyze the whole universe and promote alerts (--days-back N)
  monitor           Run the dual-path filing monitor in the foreground
  alerts            List undelivered alerts (--limit N)
  universe-refresh  Refresh the ticker universe from the configured source
  serve             Run the HTTP API with monitor and alert dispatcher`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	var err error
	switch os.Args[1] {
	case "ingest":
		err = cmdIngest(cfg, os.Args[2:])
	case "analyze":
		err = cmdAnalyze(cfg, os.Args[2:])
	case "scan":
		err = cmdScan(cfg, os.Args[2:])
	case "monitor":
		err = cmdMonitor(cfg)
	case "alerts":
		err = cmdAlerts(cfg, os.Args[2:])
	case "universe-refresh":
		err = cmdUniverseRefresh(cfg)
	case "serve":
		err = runServe(cfg)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// connect opens the database and initializes the schema.
func connect(cfg *config.Config) (*database.Database, *database.InsiderRepository, error) {
	db, err := database.Connect(
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseName,
		cfg.DatabaseUser,
		cfg.DatabasePassword,
		database.PoolConfig{
			MinConns:       cfg.DatabaseMinConns,
			MaxConns:       cfg.DatabaseMaxConns,
			AcquireTimeout: time.Duration(cfg.DatabaseAcquireTimeout) * time.Second,
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	repo := database.NewInsiderRepository(db)
	if err := repo.InitSchema(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("schema initialization failed: %w", err)
	}
	return db, repo, nil
}

func newEdgarClient(cfg *config.Config) *edgar.Client {
	return edgar.NewClient(cfg.SEC.UserAgent, cfg.SEC.IngestRateLimit)
}

func cmdIngest(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	daysBack := fs.Int("days-back", 90, "how many days of filings to fetch")
	fs.Parse(args)

	tickers, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		return fmt.Errorf("universe is empty, run universe-refresh first")
	}

	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	client := newEdgarClient(cfg)
	results, err := client.BatchFetch(context.Background(), tickers, *daysBack)
	if err != nil {
		return err
	}

	fetched, inserted := 0, 0
	for _, txns := range results {
		fetched += len(txns)
		n, err := repo.UpsertTransactions(txns)
		if err != nil {
			return err
		}
		inserted += n
	}

	log.Printf("✅ Ingest complete: %d tickers, %d fetched, %d new", len(tickers), fetched, inserted)
	return nil
}

func cmdAnalyze(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	ticker := fs.String("ticker", "", "ticker symbol to analyze")
	fs.Parse(args)
	if *ticker == "" {
		return fmt.Errorf("analyze: --ticker is required")
	}

	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	analyzer := app.NewAnalyzer(repo, cfg.Detection)
	insiderSignal, err := analyzer.AnalyzeTicker(*ticker)
	if err != nil {
		return err
	}

	engine := app.NewCompositeEngine(nil, nil)
	enriched := engine.Compose(context.Background(), insiderSignal.Ticker, nil, insiderSignal)

	out, err := json.MarshalIndent(enriched, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdScan(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	daysBack := fs.Int("days-back", cfg.Detection.LookbackDays, "history window for the analysis")
	fs.Parse(args)
	cfg.Detection.LookbackDays = *daysBack

	tickers, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return err
	}
	if len(tickers) == 0 {
		return fmt.Errorf("universe is empty, run universe-refresh first")
	}

	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	analyzer := app.NewAnalyzer(repo, cfg.Detection)
	engine := app.NewCompositeEngine(nil, nil)
	alertSvc := app.NewAlertService(repo, cfg.Detection.AnomalyThreshold)

	var signals []*database.InsiderSignal
	for _, ticker := range tickers {
		sig, err := analyzer.AnalyzeTicker(ticker)
		if err != nil {
			log.Printf("⚠️ Analysis failed for %s: %v", ticker, err)
			continue
		}
		if sig.AnomalyScore > 0 {
			signals = append(signals, engine.Compose(context.Background(), ticker, nil, sig))
		}
	}

	actionable, err := alertSvc.Evaluate(signals)
	if err != nil {
		return err
	}

	log.Printf("📊 Scan complete: %d tickers, %d signals, %d alerts", len(tickers), len(signals), len(actionable))
	for _, sig := range actionable {
		fmt.Printf("%-6s score=%.2f sentiment=%s  %s\n",
			sig.Ticker, sig.AnomalyScore, sig.InsiderSentiment, sig.Recommendation)
	}
	return nil
}

func cmdMonitor(cfg *config.Config) error {
	tickers, err := universe.Load(cfg.UniverseFile)
	if err != nil {
		return err
	}

	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	monitor := app.NewFilingMonitor(repo, newEdgarClient(cfg), tickers, cfg.Monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, stopping monitor...")

	monitor.Stop()
	return nil
}

func cmdAlerts(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum alerts to list")
	fs.Parse(args)

	db, repo, err := connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	alertSvc := app.NewAlertService(repo, cfg.Detection.AnomalyThreshold)
	alerts, err := alertSvc.GetActive(*limit)
	if err != nil {
		return err
	}

	if len(alerts) == 0 {
		fmt.Println("No undelivered alerts.")
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("[%d] %-6s score=%.2f %s  %s\n",
			a.ID, a.Ticker, a.AnomalyScore, a.CreatedAt.Format("2006-01-02 15:04"), a.InsiderSentiment)
	}
	return nil
}

func cmdUniverseRefresh(cfg *config.Config) error {
	n, err := universe.Refresh(context.Background(), cfg.UniverseSourceURL, cfg.UniverseFile)
	if err != nil {
		return err
	}
	log.Printf("✅ Universe refreshed: %d tickers", n)
	return nil
}
