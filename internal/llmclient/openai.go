package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	tiktoken "github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/semaphore"

	"github.com/tanakaryotadayo-wq/autoforge-api/internal/apperrors"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/obs"
	"github.com/tanakaryotadayo-wq/autoforge-api/internal/retry"
)

const (
	maxInputTokens = 4000
	chatRetries    = 3
	chatMinDelay   = time.Second
	chatMaxDelay   = 15 * time.Second
)

// OpenAI is the default Client, backed by any OpenAI-compatible chat
// completions endpoint (OpenAI itself or DeepSeek, selected purely by
// base URL / API key / model at construction — the wire protocol is
// identical, per spec.md §4.4).
type OpenAI struct {
	client  openai.Client
	model   string
	enc     *tiktoken.Tiktoken
	sem     *semaphore.Weighted
	log     obs.Logger
	metrics obs.Metrics
}

// NewOpenAI constructs a Client. concurrency defaults to 2
// (LLM_CONCURRENCY) when non-positive. If the cl100k_base encoding
// cannot be loaded, truncation is skipped rather than failing
// construction — a best-effort degrade, not a hard dependency.
func NewOpenAI(apiKey, baseURL, model string, concurrency int, log obs.Logger, metrics obs.Metrics) *OpenAI {
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
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
		log.Error("tiktoken_encoding_unavailable", map[string]any{"error": err.Error()})
	}
	return &OpenAI{
		client:  openai.NewClient(opts...),
		model:   model,
		enc:     enc,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		log:     log,
		metrics: metrics,
	}
}

// truncate keeps the front MAX_INPUT_TOKENS tokens and drops the tail,
// mirroring TokenAwareLLMClient._truncate.
func (c *OpenAI) truncate(text string) string {
	if c.enc == nil {
		return text
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxInputTokens {
		return text
	}
	c.log.Info("input_truncated", map[string]any{"original_tokens": len(tokens), "limit": maxInputTokens})
	return c.enc.Decode(tokens[:maxInputTokens])
}

func (c *OpenAI) complete(ctx context.Context, system, user string, temperature float64, jsonMode bool) (string, error) {
	truncated := c.truncate(user)
	endpoint := "chat"
	if jsonMode {
		endpoint = "chat_json"
	}

	var content string
	err := retry.Do(ctx, chatRetries, chatMinDelay, chatMaxDelay, func(attempt int) error {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrTransport, err)
		}
		defer c.sem.Release(1)

		params := openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(truncated),
			},
			Temperature: openai.Float(temperature),
		}
		if jsonMode {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		}

		start := time.Now()
		comp, err := c.client.Chat.Completions.New(ctx, params)
		c.metrics.ObserveHistogram("llm_duration_seconds", time.Since(start).Seconds(), map[string]string{"model": c.model})
		if err != nil {
			c.metrics.IncCounter("llm_errors_total", map[string]string{"model": c.model})
			return fmt.Errorf("%w: %v", apperrors.ErrTransport, err)
		}
		if len(comp.Choices) == 0 {
			return fmt.Errorf("%w: chat completion returned no choices", apperrors.ErrInvalidResponse)
		}
		content = comp.Choices[0].Message.Content
		c.metrics.IncCounter("llm_calls_total", map[string]string{"model": c.model, "endpoint": endpoint})
		if comp.Usage.PromptTokens > 0 {
			c.metrics.AddCounter("llm_tokens_total", float64(comp.Usage.PromptTokens), map[string]string{"direction": "input"})
		}
		if comp.Usage.CompletionTokens > 0 {
			c.metrics.AddCounter("llm_tokens_total", float64(comp.Usage.CompletionTokens), map[string]string{"direction": "output"})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAI) Chat(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, 0.3, false)
}

// ChatJSON deliberately isolates json.Unmarshal outside the retry
// boundary: a malformed JSON reply is never retried, only transport
// failures are (spec.md §7, DESIGN.md Open Question decision #5) — a
// stricter split than the Python original's single blanket @retry.
func (c *OpenAI) ChatJSON(ctx context.Context, system, user string) (map[string]any, error) {
	content, err := c.complete(ctx, system, user, 0.2, true)
	if err != nil {
		return nil, err
	}
	if content == "" {
		content = "{}"
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidResponse, err)
	}
	return out, nil
}
