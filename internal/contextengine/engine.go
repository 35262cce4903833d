// Package contextengine implements spec.md §4.7: ingest, multi-hop
// HyDE/GraphRAG retrieval, LLM reranking, and domain-audited proposal
// generation. Functional-options construction grounded on
// internal/rag/service/service.go's Service/Option pattern; pipeline
// body grounded on the literal algorithm in
// original_source/engine/context.py.
package contextengine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/domains"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/embedder"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/graphstore"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/llmclient"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/ttlcache"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/vectorstore"
)

// Clock abstracts time.Now for deterministic tests, grounded on
// internal/rag/service's Clock/SystemClock split.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds the tunables spec.md §6 lists as environment variables.
type Config struct {
	MaxHops             int
	RAGTopK             int
	RAGMinScore         float64 // preserved configured-but-unused; see DESIGN.md Open Question 1
	RerankCandidatesMax int
	RerankFinalLimit    int
	ContextMaxChars     int
}

// DefaultConfig returns spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxHops:             3,
		RAGTopK:             5,
		RAGMinScore:         0.7,
		RerankCandidatesMax: 50,
		RerankFinalLimit:    20,
		ContextMaxChars:     2500,
	}
}

// Engine is the context engine — the heart of the system.
type Engine struct {
	vector  vectorstore.Store
	graph   graphstore.Store
	emb     embedder.Embedder
	llm     llmclient.Client
	domains *domains.Registry
	cache   *ttlcache.Cache

	log     obs.Logger
	metrics obs.Metrics
	clock   Clock

	cfg Config
}

// New constructs an Engine. vector is required. An LLM client must be
// supplied via WithLLM before Search or Propose are called — there is
// no safe no-op LLM, unlike graphstore.Noop or the deterministic
// embedder default, since HyDE/entity-extraction/reranking/proposal
// generation all genuinely need one.
func New(vector vectorstore.Store, opts ...Option) *Engine {
	e := &Engine{
		vector:  vector,
		graph:   graphstore.Noop{},
		emb:     embedder.NewDeterministic(64, true, 0),
		domains: domains.NewRegistry(),
		cache:   ttlcache.New(),
		log:     obs.NoopLogger{},
		metrics: obs.NoopMetrics{},
		clock:   systemClock{},
		cfg:     DefaultConfig(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Option configures an Engine during construction.
type Option func(*Engine)

func WithGraphStore(g graphstore.Store) Option { return func(e *Engine) { e.graph = g } }
func WithEmbedder(em embedder.Embedder) Option { return func(e *Engine) { e.emb = em } }
func WithLLM(c llmclient.Client) Option         { return func(e *Engine) { e.llm = c } }
func WithDomains(d *domains.Registry) Option   { return func(e *Engine) { e.domains = d } }
func WithCache(c *ttlcache.Cache) Option       { return func(e *Engine) { e.cache = c } }
func WithLogger(l obs.Logger) Option           { return func(e *Engine) { e.log = l } }
func WithMetrics(m obs.Metrics) Option         { return func(e *Engine) { e.metrics = m } }
func WithClock(c Clock) Option                 { return func(e *Engine) { e.clock = c } }
func WithConfig(c Config) Option               { return func(e *Engine) { e.cfg = c } }

// newID is a package-level var so tests can substitute a deterministic
// id generator without threading a generator through every call.
var newID = func() string { return uuid.NewString() }
