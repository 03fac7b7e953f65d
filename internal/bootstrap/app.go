package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"quotelens/internal/ai"
	"quotelens/internal/app"
	"quotelens/internal/cache"
	"quotelens/internal/config"
	"quotelens/internal/enrich"
	"quotelens/internal/extract"
	"quotelens/internal/model"
	"quotelens/internal/pkg/logx"
	"quotelens/internal/platform/database"
	"quotelens/internal/platform/objectstore"
	rabbitmqClient "quotelens/internal/platform/rabbitmq"
	redisClient "quotelens/internal/platform/redis"
	"quotelens/internal/repository"
	"quotelens/internal/worker"
)

type Services struct {
	Ingest        *app.IngestService
	Search        *app.SearchService
	Conversations *app.ConversationService
	Documents     *app.DocumentService
}

type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	ObjectStore  *objectstore.Store
	IngestWorker *worker.IngestWorker
	Services     Services
	Enricher     *enrich.Enricher
	StartedAt    time.Time
}

// Options controls which background machinery is started.
type Options struct {
	// UseBroker publishes ingest jobs to RabbitMQ when it is enabled in config.
	// Otherwise jobs run in-process.
	UseBroker bool
	// StartWorker consumes ingest jobs from RabbitMQ in this process.
	StartWorker bool
}

// New loads config and wires the full server.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logx.Setup(cfg.App.LogLevel, cfg.App.LogFormat)
	return Build(ctx, cfg, Options{UseBroker: true, StartWorker: true})
}

func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := logx.Component("bootstrap")
	a := &App{Config: cfg, StartedAt: time.Now()}

	db, err := database.New(ctx, cfg.Database, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	a.DB = db
	vectors := false
	if cfg.LLM.EmbeddingsEnabled && cfg.Database.Driver == config.DriverPostgres {
		if err := database.EnsureVectorExtension(db); err != nil {
			logger.Warn("pgvector unavailable, embeddings stored as text", "err", err)
		} else {
			vectors = true
		}
	}
	model.UseVectorColumns(vectors)
	if err := database.Migrate(db, []interface{}{&model.Document{}, &model.Conversation{}, &model.Quote{}}, repository.EnsureSearchIndex); err != nil {
		_ = a.Close()
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Redis = redisCli

	if opts.UseBroker && cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = mqConn
	}

	if cfg.ObjectStore.Enabled {
		store, err := objectstore.New(ctx, cfg.ObjectStore)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.ObjectStore = store
	}

	llm := ai.NewOpenAICompatibleClient(ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}, time.Duration(cfg.LLM.RequestTimeoutSeconds)*time.Second)

	enricher, err := enrich.New(llm,
		enrich.WithPoolSize(cfg.Ingest.QuoteWorkers),
		enrich.WithLogger(logx.Component("enrich")),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create enricher failed: %w", err)
	}
	a.Enricher = enricher

	extractor := extract.New(extract.NewTesseractOCR(extract.TesseractConfig{
		TesseractPath: cfg.OCR.TesseractPath,
		PdftoppmPath:  cfg.OCR.PdftoppmPath,
		Language:      cfg.OCR.Language,
		DPI:           cfg.OCR.DPI,
		MinImageWidth: cfg.OCR.MinImageWidth,
	}), extract.WithLogger(logx.Component("extract")))

	documentRepo := repository.NewDocumentRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	conversationRepo := repository.NewConversationRepository(db)

	deps := app.IngestDeps{
		Extractor:     extractor,
		Enricher:      enricher,
		Documents:     documentRepo,
		Quotes:        quoteRepo,
		Conversations: conversationRepo,
	}
	var remover app.ArchiveRemover
	if a.ObjectStore != nil {
		deps.Archiver = a.ObjectStore
		remover = a.ObjectStore
	}
	if cfg.LLM.EmbeddingsEnabled {
		embedder, err := ai.NewLangchainEmbedder(ai.EmbeddingConfig{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.EmbeddingModel,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		deps.Embedder = embedder
	}

	ingest, err := app.NewIngestService(deps, cfg.Ingest.FileWorkers, cfg.Ingest.MaxFiles)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Services.Ingest = ingest

	if a.MQConn != nil {
		ingest.SetDispatcher(rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue))
		if opts.StartWorker {
			ingestWorker := worker.NewIngestWorker(a.MQConn, ingest, cfg.RabbitMQ.IngestQueue)
			if err := ingestWorker.Start(ctx); err != nil {
				_ = a.Close()
				return nil, fmt.Errorf("start ingest worker failed: %w", err)
			}
			a.IngestWorker = ingestWorker
		}
	}

	a.Services.Conversations = app.NewConversationService(
		conversationRepo,
		quoteRepo,
		cache.NewHistoryCache(redisCli, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second),
		cache.NewConversationLock(redisCli, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second),
		cfg.Retrieval.AppendConflictRetries,
	)
	a.Services.Search = app.NewSearchService(quoteRepo, a.Services.Conversations, llm, cfg.Retrieval.SearchLimit, cfg.LLM.MaxContextMessage)
	a.Services.Documents = app.NewDocumentService(documentRepo, quoteRepo, remover)

	logger.Info("application wired",
		slog.String("db_driver", cfg.Database.Driver),
		slog.Bool("broker", a.MQConn != nil),
		slog.Bool("object_store", a.ObjectStore != nil),
		slog.Bool("embeddings", cfg.LLM.EmbeddingsEnabled),
		slog.Bool("vector_columns", vectors),
	)
	return a, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Services.Ingest != nil {
		a.Services.Ingest.Close()
	}
	if a.Enricher != nil {
		a.Enricher.Release()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
