package config

import (
	"fmt"
	"log"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// MaxEmbeddingBatchSize is the documented per-request input cap of the hosted
// embeddings endpoint; the configured batch size is clamped to it.
const MaxEmbeddingBatchSize = 2048

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Embedding backend selection
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel         string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"0"`
	EmbeddingBatchSize  int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"512"`
	StripNewlines       bool   `envconfig:"EMBEDDING_STRIP_NEWLINES" default:"true"`

	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_EMBEDDING_MODEL" default:"nomic-embed-text"`
	// Raw JSON object of model tuning knobs (mirostat and friends), forwarded
	// to the local backend opaquely.
	OllamaOptions string `envconfig:"OLLAMA_OPTIONS"`

	// Vector and knowledge persistence: memory, file, or postgres
	StoreBackend string `envconfig:"STORE_BACKEND" default:"file"`
	DataDir      string `envconfig:"DATA_DIR" default:"./data"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	// S3-compatible object storage for s3:// source content references
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// Completion notification preference; owned by the user, checked here.
	NotifyOnComplete bool `envconfig:"NOTIFY_ON_COMPLETE" default:"true"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CORPUSD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects configurations the engine cannot run with. Chunk
// parameters are checked here so the splitter can stay a total function.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("chunk overlap must not be negative, got %d", c.ChunkOverlap))
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return domain.ErrInvalidChunkConfig
	}

	switch c.EmbeddingProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return domain.NewDomainError(domain.ErrCodeConfiguration,
				"OPENAI_API_KEY is required when the openai embedding provider is selected")
		}
	case "ollama":
		if c.OllamaBaseURL == "" {
			return domain.NewDomainError(domain.ErrCodeConfiguration,
				"OLLAMA_BASE_URL is required when the ollama embedding provider is selected")
		}
	default:
		return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("embedding provider %q", c.EmbeddingProvider), domain.ErrUnknownProvider)
	}

	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = 512
	}
	if c.EmbeddingBatchSize > MaxEmbeddingBatchSize {
		c.EmbeddingBatchSize = MaxEmbeddingBatchSize
	}

	switch c.StoreBackend {
	case "memory", "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return domain.NewDomainError(domain.ErrCodeConfiguration,
				"DATABASE_URL is required when the postgres store backend is selected")
		}
	default:
		return domain.NewDomainError(domain.ErrCodeConfiguration,
			fmt.Sprintf("unknown store backend %q", c.StoreBackend))
	}

	return nil
}

// EmbeddingModel is the provider:model identifier recorded on every new
// knowledge base, resolving to the same backend at ingestion and query time.
func (c *Config) EmbeddingModel() string {
	switch c.EmbeddingProvider {
	case "ollama":
		return "ollama:" + c.OllamaModel
	default:
		return "openai:" + c.OpenAIModel
	}
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
