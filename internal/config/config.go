// Package config loads runtime configuration from environment variables
// (optionally a .env file), grounded on
// internal/config/loader.go's godotenv.Overload() + manual os.Getenv +
// firstNonEmpty idiom. Unlike the teacher's giant multi-subsystem
// Config, this one only carries the knobs spec.md §6 and SPEC_FULL.md §6
// name.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	Host string
	Port string

	DatabaseURL string

	VectorBackend string // "postgres" | "qdrant"
	QdrantURL     string
	QdrantCollection string

	GraphBackend string // "postgres" | "none"
	Neo4jURI     string // unused by the Postgres graph store; recognized for parity with spec.md §6
	Neo4jUser    string
	Neo4jPassword string

	LLMBackend string // "deepseek" | "openai"
	OpenAI     LLMBackendConfig
	DeepSeek   LLMBackendConfig

	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string
	EmbeddingDim     int

	SecretKey     string
	AdminPassword string

	MaxHops             int
	RAGTopK             int
	RAGMinScore         float64
	RerankCandidatesMax int
	RerankFinalLimit    int
	ContextMaxChars     int

	CleanupDaysUnused    int
	CleanupMinImportance float64

	LLMConcurrency       int
	EmbeddingConcurrency int

	LogLevel string
	LogJSON  bool
}

// LLMBackendConfig groups the per-backend key/base-url/model triple.
type LLMBackendConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads Config from the environment, applying spec.md §6's defaults
// for anything unset. Overload so a local .env file wins over ambient
// OS environment variables during development, exactly as
// internal/config/loader.go does for manifold.
func Load() Config {
	_ = godotenv.Overload()

	cfg := Config{
		Host: firstNonEmpty(os.Getenv("HOST"), "0.0.0.0"),
		Port: firstNonEmpty(os.Getenv("PORT"), "8000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		VectorBackend:    strings.ToLower(firstNonEmpty(os.Getenv("VECTOR_BACKEND"), "postgres")),
		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantCollection: firstNonEmpty(os.Getenv("QDRANT_COLLECTION"), "facts"),

		GraphBackend:  strings.ToLower(firstNonEmpty(os.Getenv("GRAPH_BACKEND"), "postgres")),
		Neo4jURI:      os.Getenv("NEO4J_URI"),
		Neo4jUser:     os.Getenv("NEO4J_USER"),
		Neo4jPassword: os.Getenv("NEO4J_PASSWORD"),

		LLMBackend: strings.ToLower(firstNonEmpty(os.Getenv("LLM_BACKEND"), "openai")),
		OpenAI: LLMBackendConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o-mini"),
		},
		DeepSeek: LLMBackendConfig{
			APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
			BaseURL: firstNonEmpty(os.Getenv("DEEPSEEK_BASE_URL"), "https://api.deepseek.com/v1"),
			Model:   firstNonEmpty(os.Getenv("DEEPSEEK_MODEL"), "deepseek-chat"),
		},

		EmbeddingAPIKey:  firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY")),
		EmbeddingBaseURL: os.Getenv("EMBEDDING_BASE_URL"),
		EmbeddingModel:   firstNonEmpty(os.Getenv("EMBEDDING_MODEL"), "text-embedding-3-small"),
		EmbeddingDim:     parseIntDefault(os.Getenv("EMBEDDING_DIM"), 1536),

		SecretKey:     os.Getenv("SECRET_KEY"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		MaxHops:             parseIntDefault(os.Getenv("MAX_HOPS"), 3),
		RAGTopK:             parseIntDefault(os.Getenv("RAG_TOP_K"), 5),
		RAGMinScore:         parseFloatDefault(os.Getenv("RAG_MIN_SCORE"), 0.7),
		RerankCandidatesMax: parseIntDefault(os.Getenv("RERANK_CANDIDATES_MAX"), 50),
		RerankFinalLimit:    parseIntDefault(os.Getenv("RERANK_FINAL_LIMIT"), 20),
		ContextMaxChars:     parseIntDefault(os.Getenv("CONTEXT_MAX_CHARS"), 2500),

		CleanupDaysUnused:    parseIntDefault(os.Getenv("CLEANUP_DAYS_UNUSED"), 30),
		CleanupMinImportance: parseFloatDefault(os.Getenv("CLEANUP_MIN_IMPORTANCE"), 2.0),

		LLMConcurrency:       parseIntDefault(os.Getenv("LLM_CONCURRENCY"), 2),
		EmbeddingConcurrency: parseIntDefault(os.Getenv("EMBEDDING_CONCURRENCY"), 2),

		LogLevel: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogJSON:  strings.EqualFold(os.Getenv("LOG_JSON"), "true") || os.Getenv("LOG_JSON") == "1",
	}

	return cfg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// ActiveLLM returns the backend config selected by LLMBackend.
func (c Config) ActiveLLM() LLMBackendConfig {
	if c.LLMBackend == "deepseek" {
		return c.DeepSeek
	}
	return c.OpenAI
}
