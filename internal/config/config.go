package config

import "time"

// #region config-types

// Config is the full runtime configuration. Every field has a default; see Default.
type Config struct {
	LLM        LLMConfig        `koanf:"llm"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Index      IndexConfig      `koanf:"index"`
	Search     SearchConfig     `koanf:"search"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
	Routing    RoutingConfig    `koanf:"routing"`
	Retry      RetryConfig      `koanf:"retry"`
	Log        LogConfig        `koanf:"log"`
	QueryLog   QueryLogConfig   `koanf:"query_log"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Server     ServerConfig     `koanf:"server"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Codec      CodecConfig      `koanf:"codec"`
	Eval       EvalConfig       `koanf:"eval"`
}

// LLMConfig selects and parameterises the completion backend.
type LLMConfig struct {
	Provider    string        `koanf:"provider"    env:"LLM_PROVIDER"  validate:"oneof=groq openai codec"`
	APIKey      string        `koanf:"api_key"     env:"GROQ_API_KEY,LLM_API_KEY"`
	Model       string        `koanf:"model"       env:"GROQ_MODEL,LLM_MODEL" validate:"required"`
	BaseURL     string        `koanf:"base_url"    env:"LLM_BASE_URL"`
	Temperature float64       `koanf:"temperature" env:"LLM_TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens   int           `koanf:"max_tokens"  env:"LLM_MAX_TOKENS" validate:"gt=0"`
	Timeout     time.Duration `koanf:"timeout"     env:"LLM_TIMEOUT" validate:"gt=0"`
}

// EmbeddingConfig configures the embedder used by the weaviate index.
type EmbeddingConfig struct {
	Model     string `koanf:"model"      env:"EMBEDDING_MODEL"`
	BaseURL   string `koanf:"base_url"   env:"EMBEDDING_BASE_URL"`
	APIKey    string `koanf:"api_key"    env:"EMBEDDING_API_KEY,OPENAI_API_KEY"`
	CacheSize int    `koanf:"cache_size" env:"EMBEDDING_CACHE_SIZE" validate:"gte=0"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend   string `koanf:"backend"    env:"INDEX_BACKEND" validate:"oneof=bleve weaviate codec"`
	Path      string `koanf:"path"       env:"INDEX_PATH"`
	Host      string `koanf:"host"       env:"WEAVIATE_HOST"`
	Scheme    string `koanf:"scheme"     env:"WEAVIATE_SCHEME" validate:"oneof=http https"`
	ClassName string `koanf:"class_name" env:"COLLECTION_NAME" validate:"required"`
}

// SearchConfig configures the web search backend.
type SearchConfig struct {
	Provider   string        `koanf:"provider"    env:"SEARCH_PROVIDER" validate:"oneof=serper codec"`
	APIKey     string        `koanf:"api_key"     env:"SERPER_API_KEY"`
	Endpoint   string        `koanf:"endpoint"    env:"SERPER_ENDPOINT" validate:"required"`
	MaxResults int           `koanf:"max_results" env:"WEB_SEARCH_MAX_RESULTS" validate:"gt=0"`
	Timeout    time.Duration `koanf:"timeout"     env:"WEB_SEARCH_TIMEOUT" validate:"gt=0"`
	RatePerSec float64       `koanf:"rate_per_sec" env:"WEB_SEARCH_RATE" validate:"gt=0"`
}

// RetrievalConfig bounds document retrieval.
type RetrievalConfig struct {
	TopK                int     `koanf:"top_k"                env:"TOP_K_RESULTS" validate:"gte=1,lte=20"`
	SimilarityThreshold float64 `koanf:"similarity_threshold" env:"SIMILARITY_THRESHOLD" validate:"gte=0,lte=1"`
}

// GuardrailsConfig holds the input guard and gate thresholds.
type GuardrailsConfig struct {
	RelevanceThreshold     float64 `koanf:"relevance_threshold"     env:"RELEVANCE_THRESHOLD" validate:"gte=0,lte=1"`
	HallucinationThreshold float64 `koanf:"hallucination_threshold" env:"HALLUCINATION_THRESHOLD" validate:"gte=0,lte=1"`
	MaxQueryLength         int     `koanf:"max_query_length"        env:"MAX_QUERY_LENGTH" validate:"gt=0"`
}

// RoutingConfig holds the router's confidence cut.
type RoutingConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold" env:"ROUTER_CONFIDENCE_THRESHOLD" validate:"gte=0,lte=1"`
	MaxSteps            int     `koanf:"max_steps"            env:"ORCHESTRATOR_MAX_STEPS" validate:"gte=12"`
}

// RetryConfig bounds retries on external calls.
type RetryConfig struct {
	Attempts int           `koanf:"attempts" env:"RETRY_ATTEMPTS" validate:"gte=1"`
	MinDelay time.Duration `koanf:"min_delay" env:"RETRY_MIN_DELAY" validate:"gte=0"`
	MaxDelay time.Duration `koanf:"max_delay" env:"RETRY_MAX_DELAY" validate:"gtefield=MinDelay"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `koanf:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	JSON  bool   `koanf:"json"  env:"LOG_JSON"`
}

// QueryLogConfig controls where per-query records go.
type QueryLogConfig struct {
	Dir       string `koanf:"dir"        env:"LOG_DIR" validate:"required"`
	File      string `koanf:"file"       env:"QUERY_LOG_FILE" validate:"required"`
	DBPath    string `koanf:"db_path"    env:"QUERY_LOG_DB"`
	EnableDB  bool   `koanf:"enable_db"  env:"QUERY_LOG_DB_ENABLED"`
}

// IngestConfig controls document chunking.
type IngestConfig struct {
	ChunkSize    int `koanf:"chunk_size"    env:"CHUNK_SIZE" validate:"gte=100,lte=2000"`
	ChunkOverlap int `koanf:"chunk_overlap" env:"CHUNK_OVERLAP" validate:"gte=0,lte=500,ltfield=ChunkSize"`
	Workers      int `koanf:"workers"       env:"INGEST_WORKERS" validate:"gte=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr"              env:"SERVER_ADDR" validate:"required"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"  env:"SERVER_MAX_UPLOAD_BYTES" validate:"gt=0"`
	OutcomeHalfLife time.Duration `koanf:"outcome_half_life" env:"OUTCOME_HALF_LIFE" validate:"gte=0"`
}

// TelemetryConfig configures tracing export. Empty endpoint disables export.
type TelemetryConfig struct {
	ServiceName  string `koanf:"service_name"  env:"OTEL_SERVICE_NAME" validate:"required"`
	OTLPEndpoint string `koanf:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool   `koanf:"insecure"      env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// CodecConfig points at the gRPC sidecar.
type CodecConfig struct {
	Addr string `koanf:"addr" env:"CODEC_ADDR"`
}

// EvalConfig holds the health thresholds reported by /v1/stats and inspect.
type EvalConfig struct {
	MaxErrorRate       float64 `koanf:"max_error_rate"        env:"EVAL_MAX_ERROR_RATE" validate:"gte=0,lte=1"`
	MinAvgGroundedness float64 `koanf:"min_avg_groundedness"  env:"EVAL_MIN_GROUNDEDNESS" validate:"gte=0,lte=1"`
	MinQueries         int     `koanf:"min_queries"           env:"EVAL_MIN_QUERIES" validate:"gte=0"`
}

// #endregion config-types

// #region defaults

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "mixtral-8x7b-32768",
			BaseURL:     "https://api.groq.com/openai/v1",
			Temperature: 0.1,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			CacheSize: 1024,
		},
		Index: IndexConfig{
			Backend:   "bleve",
			Path:      "./data/index.bleve",
			Host:      "localhost:8080",
			Scheme:    "http",
			ClassName: "DocumentChunk",
		},
		Search: SearchConfig{
			Provider:   "serper",
			Endpoint:   "https://google.serper.dev/search",
			MaxResults: 5,
			Timeout:    10 * time.Second,
			RatePerSec: 5,
		},
		Retrieval: RetrievalConfig{
			TopK:                5,
			SimilarityThreshold: 0.7,
		},
		Guardrails: GuardrailsConfig{
			RelevanceThreshold:     0.6,
			HallucinationThreshold: 0.7,
			MaxQueryLength:         1000,
		},
		Routing: RoutingConfig{
			ConfidenceThreshold: 0.7,
			MaxSteps:            16,
		},
		Retry: RetryConfig{
			Attempts: 3,
			MinDelay: 2 * time.Second,
			MaxDelay: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		QueryLog: QueryLogConfig{
			Dir:      "./logs",
			File:     "queries.jsonl",
			DBPath:   "queries.db",
			EnableDB: true,
		},
		Ingest: IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			Workers:      4,
		},
		Server: ServerConfig{
			Addr:            ":8090",
			MaxUploadBytes:  32 << 20,
			OutcomeHalfLife: 7 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentic-rag",
		},
		Codec: CodecConfig{
			Addr: "localhost:50051",
		},
		Eval: EvalConfig{
			MaxErrorRate:       0.2,
			MinAvgGroundedness: 0.7,
			MinQueries:         5,
		},
	}
}

// #endregion defaults
