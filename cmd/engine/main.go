package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"
	"github.com/sashabaranov/go-openai"

	"github.com/tradefork/engine/internal/adapters/ai"
	"github.com/tradefork/engine/internal/adapters/clickhouse"
	"github.com/tradefork/engine/internal/adapters/config"
	"github.com/tradefork/engine/internal/adapters/database"
	"github.com/tradefork/engine/internal/adapters/market"
	redisAdapter "github.com/tradefork/engine/internal/adapters/redis"
	"github.com/tradefork/engine/internal/adapters/telegram"
	"github.com/tradefork/engine/internal/adapters/vector"
	"github.com/tradefork/engine/internal/briefing"
	"github.com/tradefork/engine/internal/feedback"
	"github.com/tradefork/engine/internal/health"
	"github.com/tradefork/engine/internal/intel"
	"github.com/tradefork/engine/internal/patrol"
	"github.com/tradefork/engine/internal/scheduler"
	"github.com/tradefork/engine/internal/signals"
	"github.com/tradefork/engine/internal/streams"
	"github.com/tradefork/engine/internal/trades"
	"github.com/tradefork/engine/internal/triggers"
	"github.com/tradefork/engine/internal/users"
	"github.com/tradefork/engine/pkg/crypto"
	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
	"github.com/tradefork/engine/pkg/worker"
)

const (
	analyticsBatchSize = 100
	analyticsMaxWait   = 5 * time.Second
	shutdownTimeout    = 30 * time.Second
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("TRADEFORK engine starting...")

	db, redisClient, err := initInfrastructure(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer redisClient.Close()

	// Analytics is optional; every writer is nil-safe when disabled
	chRepo, usageWriter, outcomeWriter := initAnalytics(cfg)
	if chRepo != nil {
		defer chRepo.Close()
	}

	llm := ai.NewAnthropicClient(&cfg.Anthropic)

	messenger, err := telegram.NewBotMessenger(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram messenger: %w", err)
	}

	cipher, err := crypto.New(cfg.Security.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	vectors := initVectorStore(cfg)

	marketSource := market.NewSource(&cfg.Market)
	searcher := market.NewSearcher(cfg.Market.TavilyAPIKey)

	// Repositories
	userRepo := users.NewRepository(db)
	connRepo := users.NewConnectionRepository(db, cipher)
	principleRepo := users.NewPrincipleRepository(db)
	messageRepo := users.NewMessageRepository(db)
	streamRepo := streams.NewRepository(db)
	triggerRepo := triggers.NewRepository(db)
	signalRepo := signals.NewRepository(db)
	tradeRepo := trades.NewRepository(db)
	patrolRepo := patrol.NewRepository(db)

	// Domain services
	streamManager := streams.NewManager(streamRepo, redisAdapter.NewCache(redisClient), marketSource,
		cfg.Engine.HotThresholdDays, cfg.Engine.WarmThresholdDays)

	episodeRepo := intel.NewEpisodeRepository(db, vectors, userRepo, streamManager, tradeRepo)
	intelProvider := intel.NewProvider(tradeRepo, signalRepo, principleRepo, episodeRepo)

	learner := feedback.NewLearner(signalRepo, episodeRepo, outcomeWriter)

	collector := signals.NewCollector(streamManager, tradeRepo, marketSource, searcher)
	pipeline := signals.NewPipeline(collector, llm, intelProvider, userRepo, signalRepo,
		triggerRepo, episodeRepo, messageRepo, messenger, redisClient, usageWriter,
		cfg.Engine.DailySignalLimit)

	triggerEngine := triggers.NewEngine(triggerRepo, messenger, messageRepo, pipeline)

	venues := trades.CCXTVenues{}
	detector := trades.NewDetector(tradeRepo, connRepo, venues, llm, episodeRepo,
		principleRepo, messageRepo, messenger, learner, usageWriter,
		cfg.Engine.DustThresholdPercent)
	tracker := trades.NewTracker(tradeRepo, connRepo, venues, principleRepo, messageRepo, messenger)

	patrolService := patrol.NewService(streamManager, streamManager, triggerRepo, tradeRepo,
		learner, searcher, llm, patrolRepo, messageRepo, messenger, usageWriter)

	briefingService := briefing.NewService(marketSource, tradeRepo, triggerRepo, streamManager,
		intelProvider, llm, messageRepo, messenger, usageWriter)

	// Background jobs
	sched := scheduler.New(&cfg.Engine, userRepo, detector, tracker, streamManager,
		triggerEngine, triggerRepo, patrolService, briefingService)

	group := worker.NewWorkerGroup(ctx)
	sched.Register(group)
	group.Start()

	feed := startPriceFeed(ctx, cfg, streamRepo, streamManager)

	healthServer := health.NewServer(cfg.Health.Port, db, redisClient, sched, userRepo)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server failed", zap.Error(err))
		}
	}()
	healthServer.SetReady(true)

	logger.Info("TRADEFORK engine running",
		zap.Int("jobs", group.Size()),
		zap.Bool("websocket", feed != nil),
		zap.Bool("analytics", chRepo != nil),
	)

	<-ctx.Done()

	return performGracefulShutdown(healthServer, sched, group, feed, usageWriter, outcomeWriter)
}

// initConfig loads configuration and initializes the logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initInfrastructure connects Postgres, runs migrations, and connects Redis
func initInfrastructure(cfg *config.Config) (*database.DB, *redisAdapter.Client, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.DB().DB, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return db, redisClient, nil
}

// initAnalytics connects ClickHouse when enabled. A failed connection
// degrades to disabled writers instead of blocking startup.
func initAnalytics(cfg *config.Config) (*clickhouse.Repository, *clickhouse.UsageWriter, *clickhouse.OutcomeWriter) {
	if !cfg.ClickHouse.Enabled {
		logger.Info("analytics disabled")
		return nil, nil, nil
	}

	repo, err := clickhouse.Connect(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("clickhouse not available, analytics disabled", zap.Error(err))
		return nil, nil, nil
	}

	usage := clickhouse.NewUsageWriter(repo, analyticsBatchSize, analyticsMaxWait)
	outcomes := clickhouse.NewOutcomeWriter(repo, analyticsBatchSize, analyticsMaxWait)
	logger.Info("✅ analytics connected", zap.String("addr", cfg.ClickHouse.Addr))
	return repo, usage, outcomes
}

// initVectorStore builds the episode memory index. Without Pinecone
// credentials episodes stay Postgres-only.
func initVectorStore(cfg *config.Config) vector.Store {
	if cfg.Pinecone.APIKey == "" || cfg.OpenAI.APIKey == "" {
		logger.Warn("vector store disabled, episode search unavailable")
		return nil
	}

	embeddings := openai.NewClient(cfg.OpenAI.APIKey)
	logger.Info("✅ vector store initialized", zap.String("host", cfg.Pinecone.IndexHost))
	return vector.NewPineconeStore(&cfg.Pinecone, embeddings)
}

// startPriceFeed opens the websocket for hot price symbols and pumps
// ticks through the stream manager. REST polling remains the source
// of truth; a nil feed just means slower hot updates.
func startPriceFeed(ctx context.Context, cfg *config.Config, streamRepo *streams.Repository, manager *streams.Manager) *market.PriceFeed {
	if !cfg.Market.WebsocketEnabled {
		return nil
	}

	symbols := hotPriceSymbols(ctx, streamRepo)
	feed := market.NewPriceFeed(symbols)
	if err := feed.Connect(); err != nil {
		logger.Warn("price feed unavailable, falling back to polling only", zap.Error(err))
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-feed.Ticks():
				if !ok {
					return
				}
				manager.ApplyTick(ctx, models.StreamPrice, tick.Symbol, tick.Value)
			}
		}
	}()

	logger.Info("✅ price feed connected", zap.Strings("symbols", symbols))
	return feed
}

// hotPriceSymbols lists distinct symbols with a hot price stream,
// defaulting to the preset majors when the catalog is empty
func hotPriceSymbols(ctx context.Context, streamRepo *streams.Repository) []string {
	hot, err := streamRepo.GetByTemperature(ctx, models.TempHot)
	if err != nil {
		logger.Warn("failed to list hot streams for price feed", zap.Error(err))
		return []string{"BTC", "ETH"}
	}

	seen := make(map[string]bool)
	var symbols []string
	for i := range hot {
		stream := &hot[i]
		if stream.StreamType != models.StreamPrice || stream.Symbol == nil {
			continue
		}
		if seen[*stream.Symbol] {
			continue
		}
		seen[*stream.Symbol] = true
		symbols = append(symbols, *stream.Symbol)
	}

	if len(symbols) == 0 {
		return []string{"BTC", "ETH"}
	}
	return symbols
}

// performGracefulShutdown drains jobs, flushes analytics, and stops
// the health server
func performGracefulShutdown(
	healthServer *health.Server,
	sched *scheduler.Scheduler,
	group *worker.WorkerGroup,
	feed *market.PriceFeed,
	usageWriter *clickhouse.UsageWriter,
	outcomeWriter *clickhouse.OutcomeWriter,
) error {
	logger.Info("shutting down...")
	healthServer.SetReady(false)

	sched.Stop()
	group.Stop(shutdownTimeout)

	if feed != nil {
		if err := feed.Close(); err != nil {
			logger.Warn("failed to close price feed", zap.Error(err))
		}
	}

	if usageWriter != nil {
		if err := usageWriter.Close(); err != nil {
			logger.Warn("failed to flush usage writer", zap.Error(err))
		}
	}
	if outcomeWriter != nil {
		if err := outcomeWriter.Close(); err != nil {
			logger.Warn("failed to flush outcome writer", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Warn("failed to stop health server", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
