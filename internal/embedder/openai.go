package embedder

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/retry"
)

const (
	maxEmbedChars = 8000
	embedRetries  = 3
)

// OpenAI embeds text via an OpenAI-compatible embeddings endpoint,
// grounded on original_source/adapters/embedder.py's OpenAIEmbedder
// (truncate-then-embed, bounded semaphore, 3-attempt exponential
// backoff) and on internal/llm/openai/client.go's SDK-construction
// idiom (option.WithAPIKey/WithBaseURL/WithHTTPClient).
type OpenAI struct {
	client     openai.Client
	model      string
	dim        int
	sem        *semaphore.Weighted
	log        obs.Logger
	metrics    obs.Metrics
}

// NewOpenAI constructs an OpenAI-compatible embedder. concurrency
// defaults to 2 (EMBEDDING_CONCURRENCY) when non-positive.
func NewOpenAI(apiKey, baseURL, model string, dim, concurrency int, log obs.Logger, metrics obs.Metrics) *OpenAI {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		dim:     dim,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		log:     log,
		metrics: metrics,
	}
}

func (o *OpenAI) Name() string   { return o.model }
func (o *OpenAI) Dimension() int { return o.dim }

func (o *OpenAI) Ping(ctx context.Context) error {
	_, err := o.embedOne(ctx, "ping")
	return err
}

// EmbedBatch issues one independent concurrent call per text (bounded by
// the same semaphore embedOne acquires), writing each result to its own
// slot so order is preserved regardless of completion order, per
// spec.md §4.3.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range texts {
		i, t := i, t
		g.Go(func() error {
			v, err := o.embedOne(gctx, t)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OpenAI) embedOne(ctx context.Context, text string) ([]float32, error) {
	// Truncate by rune, not byte, so multi-byte UTF-8 text isn't split
	// mid-character.
	if r := []rune(text); len(r) > maxEmbedChars {
		text = string(r[:maxEmbedChars])
	}

	var result []float32
	err := retry.Do(ctx, embedRetries, time.Second, 10*time.Second, func(attempt int) error {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransport, err)
		}
		defer o.sem.Release(1)

		start := time.Now()
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
			Model: o.model,
		})
		o.metrics.ObserveHistogram("embedding_duration_seconds", time.Since(start).Seconds(), nil)
		if err != nil {
			o.metrics.IncCounter("embedding_errors_total", map[string]string{"model": o.model})
			return fmt.Errorf("%w: %v", apperrors.ErrTransport, err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("%w: embeddings response had no data", apperrors.ErrInvalidResponse)
		}
		vec32 := make([]float32, len(resp.Data[0].Embedding))
		for i, x := range resp.Data[0].Embedding {
			vec32[i] = float32(x)
		}
		result = vec32
		o.metrics.IncCounter("embedding_calls_total", map[string]string{"model": o.model})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
