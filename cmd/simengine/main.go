package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tradesim/config"
	"tradesim/internal/api"
	"tradesim/internal/broker"
	"tradesim/internal/execution"
	"tradesim/internal/ledger"
	"tradesim/internal/logger"
	"tradesim/internal/metrics"
	"tradesim/internal/model"
	"tradesim/internal/notification"
	"tradesim/internal/portfolio"
	"tradesim/internal/quote"
	redisstore "tradesim/internal/store/redis"
	sqlitestore "tradesim/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[simengine] starting...")

	logger.Init("simengine", slog.LevelInfo)

	cfg := config.Load()
	log.Printf("[simengine] trading mode: %s", cfg.TradingMode)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(cfg.TradingMode)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Snapshot store (SQLite, off hot path) ----
	os.MkdirAll("data", 0o755)
	store, err := sqlitestore.New(sqlitestore.StoreConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[simengine] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Println("[simengine] snapshot store ready")

	// ---- Trade journal ----
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Printf("[simengine] WARNING: journal init failed: %v (continuing without journal)", err)
		journal = nil
	} else {
		defer journal.Close()
	}

	// ---- Restore ledger for the configured mode ----
	var led *ledger.Ledger
	snap, err := store.Load(cfg.TradingMode)
	if err != nil {
		log.Fatalf("[simengine] snapshot load failed: %v", err)
	}
	if snap != nil {
		led = ledger.Restore(snap, cfg.StartingFunds)
		log.Printf("[simengine] restored %s ledger: %d orders, %d positions, %d holdings",
			cfg.TradingMode, len(snap.Orders), len(snap.Positions), len(snap.Holdings))
	} else {
		led = ledger.New(cfg.TradingMode, cfg.StartingFunds)
		log.Printf("[simengine] fresh %s ledger, starting funds %d paise", cfg.TradingMode, cfg.StartingFunds)
	}

	// ---- Event bus ----
	bus := execution.NewBus(1024)
	bus.OnDrop = func(subscriberIdx int) {
		prom.EventDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	// ---- Redis event publisher (optional) ----
	var pub *redisstore.Publisher
	pub, err = redisstore.New(redisstore.PublisherConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[simengine] WARNING: redis init failed: %v (continuing without event streaming)", err)
		health.SetRedisConnected(false)
		pub = nil
	} else {
		health.SetRedisConnected(true)
		go pub.Run(ctx, bus.Subscribe())
		log.Println("[simengine] redis publisher ready")
	}

	// ---- Periodic liveness checks ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Quote cache + tick feed ----
	cache := quote.NewCache(4096)
	cache.OnDrop = func(subscriberIdx int) {
		prom.TickDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	tickCh := make(chan model.Tick, 10000)
	go cache.Run(ctx, tickCh)

	ingest, err := quote.NewIngest(quote.IngestConfig{URL: cfg.TickWSURL})
	if err != nil {
		log.Fatalf("[simengine] tick ingest init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.FeedRestarts.Inc()
	}
	go func() {
		health.SetFeedOK(true)
		if err := ingest.Start(ctx, tickCh); err != nil {
			log.Printf("[simengine] tick feed stopped: %v", err)
			health.SetFeedOK(false)
		}
	}()

	// Mark-to-market: every tick updates last prices on open rows.
	mtmCh := cache.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-mtmCh:
				if !ok {
					return
				}
				led.UpdateLastPrice(tick)
				health.SetLastTickTime(tick.TickTS)
			}
		}
	}()

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Execution core ----
	slip := execution.NewSlippage(cfg.SlippageMaxBps, time.Now().UnixNano())
	coord := execution.NewCoordinator(execution.CoordinatorConfig{
		Ledger:        led,
		Quotes:        cache,
		Store:         store,
		Bus:           bus,
		Slippage:      slip,
		Journal:       journal,
		Notifier:      notifier,
		Metrics:       prom,
		StartingFunds: cfg.StartingFunds,
	})

	sched := execution.NewScheduler(coord, cfg.EvalDelayMin, cfg.EvalDelayMax, time.Now().UnixNano(), prom)
	schedTickCh := cache.Subscribe()
	go sched.Run(ctx, schedTickCh)

	// Re-arm evaluations for orders that were pending at last shutdown.
	pending := led.PendingOrders()
	if len(pending) > 0 {
		sched.Rearm(pending)
		log.Printf("[simengine] re-armed %d pending orders from snapshot", len(pending))
	}

	// ---- Live broker (REAL mode only) ----
	var submitter model.OrderSubmitter
	if cfg.TradingMode == model.ModeReal {
		sub := broker.NewSubmitter(broker.SubmitterConfig{
			APIKey:     cfg.AngelAPIKey,
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
			Timeout:    cfg.BrokerTimeout,
		})
		submitter = sub

		// Mirror broker RMS funds into the ledger so /funds stays honest.
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					fctx, fcancel := context.WithTimeout(ctx, cfg.BrokerTimeout)
					available, used, err := sub.Funds(fctx)
					fcancel()
					if err != nil {
						log.Printf("[simengine] funds mirror failed: %v", err)
						prom.BrokerErrors.Inc()
						continue
					}
					led.SetFunds(available, used)
				}
			}
		}()
	}

	var risk *portfolio.RiskManager
	if cfg.RiskMaxOrderQty > 0 || cfg.RiskMaxOrderValue > 0 ||
		cfg.RiskMaxOpenPositions > 0 || cfg.RiskMaxExposure > 0 {
		risk = portfolio.NewRiskManager(portfolio.RiskLimits{
			MaxOrderQty:      cfg.RiskMaxOrderQty,
			MaxOrderValue:    cfg.RiskMaxOrderValue,
			MaxOpenPositions: int(cfg.RiskMaxOpenPositions),
			MaxExposure:      cfg.RiskMaxExposure,
		})
		log.Printf("[simengine] risk limits enabled: %+v", risk.Limits())
	}

	gw := execution.NewGateway(execution.GatewayConfig{
		Mode:          cfg.TradingMode,
		Coordinator:   coord,
		Scheduler:     sched,
		Quotes:        cache,
		Broker:        submitter,
		BrokerTimeout: cfg.BrokerTimeout,
		Risk:          risk,
		Metrics:       prom,
	})

	// ---- HTTP API ----
	mux := api.NewRouter(api.Deps{
		Gateway:     gw,
		Coordinator: coord,
		Journal:     journal,
	})
	apiSrv := &http.Server{Addr: cfg.APIAddr, Handler: mux}
	go func() {
		log.Printf("[simengine] api listening on %s", cfg.APIAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[simengine] api server failed: %v", err)
		}
	}()

	log.Printf("[simengine] ready: mode=%s ticks=%s api=%s metrics=%s",
		cfg.TradingMode, cfg.TickWSURL, cfg.APIAddr, cfg.MetricsAddr)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[simengine] shutdown signal received, cleaning up...")
	cancel()
	sched.DisarmAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	bus.Close()
	if pub != nil {
		pub.Close()
	}

	log.Println("[simengine] shutdown complete.")
}

// buildNotifier assembles the alert chain from config. With no external
// channels configured, alerts only reach the process log.
func buildNotifier(cfg *config.Config) notification.Notifier {
	var backends []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[simengine] telegram alerts enabled")
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
		log.Println("[simengine] webhook alerts enabled")
	}
	switch len(backends) {
	case 0:
		return notification.NewLogNotifier()
	case 1:
		return backends[0]
	default:
		return notification.NewMultiNotifier(backends...)
	}
}
