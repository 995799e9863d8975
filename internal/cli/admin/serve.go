package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/corpuslabs/corpusd/internal/api/handlers"
	"github.com/corpuslabs/corpusd/internal/config"
	"github.com/corpuslabs/corpusd/internal/database"
	"github.com/corpuslabs/corpusd/internal/embedding"
	"github.com/corpuslabs/corpusd/internal/jobs"
	"github.com/corpuslabs/corpusd/internal/loader"
	"github.com/corpuslabs/corpusd/internal/notify"
	"github.com/corpuslabs/corpusd/internal/repository"
	"github.com/corpuslabs/corpusd/internal/server"
	"github.com/corpuslabs/corpusd/internal/service"
	"github.com/corpuslabs/corpusd/internal/storage"
	"github.com/corpuslabs/corpusd/internal/telemetry"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the knowledge API server",
		Long:  "Start the corpusd knowledge API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	arena, knowledgeRepo, cleanup, err := buildPersistence(ctx, cfg, noMigrate)
	if err != nil {
		return err
	}
	defer cleanup()

	providers, err := buildProviderRegistry(cfg)
	if err != nil {
		return err
	}

	var objects loader.ObjectFetcher
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		objects = s3Client
		log.Println("object storage configured for s3:// sources")
	}

	splitter, err := service.NewSplitter(service.ChunkConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("invalid chunk configuration: %w", err)
	}

	var notifier notify.Notifier = notify.NewNopNotifier()
	if cfg.NotifyOnComplete {
		notifier = notify.NewLogNotifier()
	}

	store := vectorstore.New(arena)
	loaders := loader.NewRegistry(loader.NewFetcher(cfg.DataDir, objects))
	indexer := service.NewIndexer(knowledgeRepo, store, splitter, providers, loaders, notifier)
	retriever := service.NewRetriever(knowledgeRepo, store, providers)

	// Runs interrupted by a previous shutdown or crash left their records in
	// the processing state; fail them so they can be re-triggered.
	if recovered, err := indexer.RecoverStale(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted runs: %w", err)
	} else if recovered > 0 {
		log.Printf("marked %d interrupted processing run(s) as failed", recovered)
	}

	scheduler := jobs.NewScheduler(indexer)

	router := server.NewRouter(server.RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(indexer, scheduler, cfg.EmbeddingModel()),
		SearchHandler:    handlers.NewSearchHandler(retriever),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s (store backend: %s, default model: %s)",
			cfg.Port, cfg.StoreBackend, cfg.EmbeddingModel())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	scheduler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// buildPersistence selects the arena and knowledge repository for the
// configured store backend.
func buildPersistence(ctx context.Context, cfg *config.Config, noMigrate bool) (vectorstore.Arena, service.KnowledgeRepository, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return repository.NewMemoryArena(), repository.NewMemoryKnowledgeRepository(), func() {}, nil

	case "file":
		arena, err := repository.NewFileArena(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open vector file store: %w", err)
		}
		repo, err := repository.NewFileKnowledgeRepository(cfg.DataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open knowledge file store: %w", err)
		}
		return arena, repo, func() {}, nil

	case "postgres":
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Println("connected to database")

		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				pool.Close()
				return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return repository.NewPostgresArena(pool), repository.NewPostgresKnowledgeRepository(pool), pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildProviderRegistry registers every embedding backend the configuration
// can reach. Knowledge bases pin a provider:model identifier, so both
// backends may be live at once.
func buildProviderRegistry(cfg *config.Config) (*embedding.Registry, error) {
	providers := embedding.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		providers.Register("openai:"+cfg.OpenAIModel, embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			Model:         cfg.OpenAIModel,
			BatchSize:     cfg.EmbeddingBatchSize,
			StripNewlines: cfg.StripNewlines,
			Dimensions:    cfg.EmbeddingDimensions,
		}))
	}

	if cfg.OllamaBaseURL != "" && cfg.OllamaModel != "" {
		var options map[string]any
		if cfg.OllamaOptions != "" {
			if err := json.Unmarshal([]byte(cfg.OllamaOptions), &options); err != nil {
				return nil, fmt.Errorf("invalid OLLAMA_OPTIONS: %w", err)
			}
		}
		provider, err := embedding.NewOllamaProvider(embedding.OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.OllamaModel,
			Options: options,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama provider: %w", err)
		}
		providers.Register("ollama:"+cfg.OllamaModel, provider)
	}

	if len(providers.Models()) == 0 {
		return nil, fmt.Errorf("no embedding backend configured: set OPENAI_API_KEY or OLLAMA_BASE_URL")
	}
	return providers, nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
