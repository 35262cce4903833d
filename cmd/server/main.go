// Command server wires configuration, storage, the embedder/LLM clients,
// the context engine, and the HTTP surface together and serves
// spec.md §6's API. Env-driven main() with graceful shutdown on
// SIGINT/SIGTERM, grounded directly on cmd/webui/main.go's shape
// (manifold's binaries take no flags; everything comes from env/config).
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/authjwt"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/config"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/contextengine"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/domains"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/embedder"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/graphstore"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/httpapi"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/llmclient"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/ttlcache"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

func main() {
	cfg := config.Load()

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogJSON)
	metrics, err := obs.NewOtelMetrics()
	if err != nil {
		log.Fatalf("init metrics: %v", err)
	}

	ctx := context.Background()
	pool, err := newPgPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	store, err := newVectorStore(ctx, cfg, pool, logger, metrics)
	if err != nil {
		log.Fatalf("init vector store: %v", err)
	}

	graph := newGraphStore(ctx, cfg, pool, logger)

	emb := newEmbedder(cfg, logger, metrics)
	llm := newLLMClient(cfg, logger, metrics)
	registry := domains.NewRegistry()

	engine := contextengine.New(
		store,
		contextengine.WithGraphStore(graph),
		contextengine.WithEmbedder(emb),
		contextengine.WithLLM(llm),
		contextengine.WithDomains(registry),
		contextengine.WithCache(ttlcache.New()),
		contextengine.WithLogger(logger),
		contextengine.WithMetrics(metrics),
		contextengine.WithConfig(contextengine.Config{
			MaxHops:             cfg.MaxHops,
			RAGTopK:             cfg.RAGTopK,
			RAGMinScore:         cfg.RAGMinScore,
			RerankCandidatesMax: cfg.RerankCandidatesMax,
			RerankFinalLimit:    cfg.RerankFinalLimit,
			ContextMaxChars:     cfg.ContextMaxChars,
		}),
	)

	auth := authjwt.New(cfg.SecretKey, time.Hour)

	healthCheck := func() (string, map[string]string) {
		components := map[string]string{}
		status := "ok"

		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(cctx); err != nil {
			components["postgres"] = "down"
			status = "degraded"
		} else {
			components["postgres"] = "ok"
		}

		if cfg.GraphBackend != "none" {
			components["graph"] = "ok"
		}
		return status, components
	}

	srv := httpapi.NewServer(engine, store, registry, auth, cfg, logger, healthCheck)

	addr := cfg.Host + ":" + cfg.Port
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	go func() {
		logger.Info("server listening", map[string]any{"addr": addr})
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", map[string]any{"error": err.Error()})
	} else {
		logger.Info("server stopped", nil)
	}
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pgCfg.MaxConns = 10
	pgCfg.MinConns = 2
	pgCfg.MaxConnLifetime = time.Hour
	pgCfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func newVectorStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger obs.Logger, metrics obs.Metrics) (vectorstore.Store, error) {
	pgStore, err := vectorstore.NewPostgresStore(ctx, pool, cfg.EmbeddingDim, logger, metrics)
	if err != nil {
		return nil, err
	}
	if cfg.VectorBackend != "qdrant" {
		return pgStore, nil
	}
	return vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDim, pgStore, logger, metrics)
}

func newGraphStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger obs.Logger) graphstore.Store {
	if cfg.GraphBackend == "none" {
		return graphstore.Noop{}
	}
	g, err := graphstore.NewPostgresStore(ctx, pool)
	if err != nil {
		logger.Error("graph store init failed, degrading to noop", map[string]any{"error": err.Error()})
		return graphstore.Noop{}
	}
	return g
}

func newEmbedder(cfg config.Config, logger obs.Logger, metrics obs.Metrics) embedder.Embedder {
	if cfg.EmbeddingAPIKey == "" {
		logger.Info("no embedding API key configured, using deterministic embedder", nil)
		return embedder.NewDeterministic(cfg.EmbeddingDim, true, 0)
	}
	return embedder.NewOpenAI(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbeddingConcurrency, logger, metrics)
}

func newLLMClient(cfg config.Config, logger obs.Logger, metrics obs.Metrics) llmclient.Client {
	backend := cfg.ActiveLLM()
	return llmclient.NewOpenAI(backend.APIKey, backend.BaseURL, backend.Model, cfg.LLMConcurrency, logger, metrics)
}
