package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/okian/matchlearn/pkg/logger"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 200
)

const systemPrompt = `You explain partner-matching results to a marketplace operator.
Write one or two plain sentences. Mention the factors that contributed most and any weak factor worth checking.
Do not invent facts beyond the data given. Do not restate the numbers as a list.`

// AnthropicOption configures an Anthropic generator.
type AnthropicOption func(*Anthropic)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) AnthropicOption {
	return func(a *Anthropic) {
		if url != "" {
			a.clientOpts = append(a.clientOpts, option.WithBaseURL(url))
		}
	}
}

// WithMaxRetries sets how many times failed calls are retried by the client.
func WithMaxRetries(n int) AnthropicOption {
	return func(a *Anthropic) {
		if n >= 0 {
			a.clientOpts = append(a.clientOpts, option.WithMaxRetries(n))
		}
	}
}

// WithMaxTokens bounds the response length.
func WithMaxTokens(n int64) AnthropicOption {
	return func(a *Anthropic) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithAnthropicLogger sets a custom logger.
func WithAnthropicLogger(l logger.Logger) AnthropicOption {
	return func(a *Anthropic) {
		if l != nil {
			a.log = l
		}
	}
}

// Anthropic asks a Claude model for the rationale.
type Anthropic struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	clientOpts []option.RequestOption
	log        logger.Logger
}

// NewAnthropic builds a generator. apiKey is required; an empty model picks
// a small default.
func NewAnthropic(apiKey, modelName string, opts ...AnthropicOption) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	a := &Anthropic{
		model:     modelName,
		maxTokens: defaultMaxTokens,
		log:       logger.Get().Named("insight"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.client = anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, a.clientOpts...)...)
	return a, nil
}

// Name implements Generator.
func (a *Anthropic) Name() string { return ProviderAnthropic }

// Explain implements Generator.
func (a *Anthropic) Explain(ctx context.Context, req Request) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(req))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			a.log.Debug(ctx, "rationale generated",
				logger.String("candidate_id", req.Candidate.ID),
				logger.Int64("tokens_in", msg.Usage.InputTokens),
				logger.Int64("tokens_out", msg.Usage.OutputTokens),
			)
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", ErrEmptyResponse
}

func prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", req.Domain)
	fmt.Fprintf(&b, "Requester: %s\n", displayName(req.Requester))
	fmt.Fprintf(&b, "Candidate: %s\n", displayName(req.Candidate))
	fmt.Fprintf(&b, "Rank: %d, score %.3f, confidence %.2f", req.Rank, req.Score, req.Confidence)
	if req.Provisional {
		b.WriteString(" (provisional, little feedback so far)")
	}
	b.WriteString("\nFactor contributions to the score, largest first:\n")
	for _, fs := range req.Contributions.Ranked() {
		fmt.Fprintf(&b, "- %s: %.3f\n", fs.Factor, fs.Value)
	}
	return b.String()
}
