package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/coinpulse/internal/api"
	"github.com/wonny/coinpulse/internal/api/handlers"
	"github.com/wonny/coinpulse/internal/external/coingecko"
	"github.com/wonny/coinpulse/internal/external/mood"
	"github.com/wonny/coinpulse/internal/external/upbit"
	"github.com/wonny/coinpulse/internal/market/engine"
	"github.com/wonny/coinpulse/internal/scheduler"
	"github.com/wonny/coinpulse/internal/scheduler/jobs"
	"github.com/wonny/coinpulse/internal/storage"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/database"
	"github.com/wonny/coinpulse/pkg/logger"
	"github.com/wonny/coinpulse/pkg/redis"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "랭킹 엔진과 API 서버 시작",
	Long: `업비트 체결 스트림 구독, 타임프레임별 집계, REST API를 한 프로세스로 시작합니다.

이 명령어는:
- 업비트 WebSocket 체결 스트림 구독
- 타임프레임별 거래대금/급등 랭킹 집계
- 섹터 집계와 핫/블링크 추적
- 스냅샷 영속화 (PostgreSQL, Redis)
- 심볼/무드 갱신 스케줄러
- REST API 서버

Endpoints:
  GET  /health                    - Health check
  GET  /api/ranking/{timeframe}   - 거래대금 랭킹
  GET  /api/surge/{timeframe}     - 급등 랭킹
  GET  /api/sectors/{timeframe}   - 섹터 집계
  GET  /api/mood                  - 시장 무드
  GET  /api/stats                 - 처리 통계

Example:
  go run ./cmd/pulse start
  go run ./cmd/pulse start --port 8099`,
	RunE: runStart,
}

var (
	startPort string
)

func init() {
	rootCmd.AddCommand(startCmd)

	// Flags
	startCmd.Flags().StringVar(&startPort, "port", "", "API 서버 포트 (기본값: PORT 환경변수)")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== CoinPulse Engine ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if startPort != "" {
		cfg.Port = startPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":  cfg.Port,
		"env":   cfg.Env,
		"quote": cfg.Upbit.QuoteMarket,
	}).Info("Initializing engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect to database (optional: without it snapshot history is off)
	var (
		db     *database.DB
		writer *storage.Writer
		sinks  []engine.SnapshotSink
	)
	if cfg.Database.URL != "" {
		db, err = database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		writer = storage.NewWriter(db.Pool, log)
		sinks = append(sinks, writer)
		log.Info("Connected to database")
	} else {
		log.Warn("DATABASE_URL not set, snapshot history disabled")
	}

	// 4. Connect to Redis (disabled client degrades to no-op)
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, "coinpulse")
	if redisClient.Enabled() {
		sinks = append(sinks, storage.NewRedisSink(cache, log))
	}

	// 5. Create the ranking engine
	eng := engine.New(cfg, log, sinks...)

	// 6. Create external clients
	restClient := upbit.NewClient(cfg.Upbit, log)
	wsClient := upbit.NewWSClient(cfg.Upbit, log)
	geckoClient := coingecko.NewClient(cfg.CoinGecko, log)
	moodClient := mood.NewClient(cfg.Mood, log)

	// 7. Wire the trade stream into the engine
	wsClient.OnTrade(eng.Publish)
	wsClient.OnError(eng.PublishError)
	wsClient.OnDisconnect(func() {
		go func() {
			if err := wsClient.Reconnect(ctx); err != nil {
				log.WithError(err).Error("WebSocket reconnection gave up")
			}
		}()
	})

	// 8. Create scheduler and register jobs
	sched := scheduler.New(log)

	if err := sched.AddJob(jobs.NewSymbolRefreshJob(restClient, eng, wsClient, cache, cfg.Upbit.QuoteMarket, log)); err != nil {
		return fmt.Errorf("register symbol refresh job: %w", err)
	}

	var moodStore jobs.MoodStore
	if writer != nil {
		moodStore = writer
	}
	if err := sched.AddJob(jobs.NewMoodRefreshJob(geckoClient, moodClient, eng, moodStore, log)); err != nil {
		return fmt.Errorf("register mood refresh job: %w", err)
	}

	if writer != nil {
		if err := sched.AddJob(jobs.NewMaintenanceJob(writer, log)); err != nil {
			return fmt.Errorf("register maintenance job: %w", err)
		}
	}

	// 9. Start processing
	eng.Start(ctx)
	if writer != nil {
		writer.Start(ctx)
	}

	if err := wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect trade stream: %w", err)
	}

	sched.Start()

	// Prime the symbol scope and mood immediately instead of waiting for the
	// first cron tick.
	if err := sched.RunJob("symbol_refresh"); err != nil {
		log.WithError(err).Error("Initial symbol refresh failed to start")
	}
	if err := sched.RunJob("mood_refresh"); err != nil {
		log.WithError(err).Error("Initial mood refresh failed to start")
	}

	// 10. Create API server
	marketHandler := handlers.NewMarketHandler(eng, log)
	router := api.NewRouter(marketHandler, log)
	server := api.New(cfg, log, router)

	// 11. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("Engine started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/ranking/{timeframe}")
	fmt.Println("  GET  /api/surge/{timeframe}")
	fmt.Println("  GET  /api/sectors/{timeframe}")
	fmt.Println("  GET  /api/mood")
	fmt.Println("  GET  /api/stats")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Stop intake first so in-flight ticks drain, then flush and close.
	sched.Stop()
	if err := wsClient.Disconnect(); err != nil {
		log.WithError(err).Warn("WebSocket disconnect failed")
	}
	eng.Stop()
	if writer != nil {
		writer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Engine stopped")
	return nil
}
