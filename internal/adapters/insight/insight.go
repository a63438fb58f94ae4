// Package insight turns per-factor score contributions into short
// human-readable rationales. Rationales never influence scores or order.
package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/matchlearn/internal/domain/model"
	"github.com/okian/matchlearn/internal/domain/scoring"
)

// Providers.
const (
	ProviderNone      = "none"
	ProviderTemplate  = "template"
	ProviderAnthropic = "anthropic"
)

// Request carries one ranked candidate to explain.
type Request struct {
	Domain        string
	Requester     model.Profile
	Candidate     model.Profile
	Score         float64
	Rank          int
	Confidence    float64
	Provisional   bool
	ModelVersion  int64
	Contributions scoring.Contributions
}

// Generator produces a rationale for a ranked candidate.
type Generator interface {
	Name() string
	Explain(ctx context.Context, req Request) (string, error)
}

// New returns the generator for provider. ProviderNone and "" return nil.
func New(provider, apiKey, modelName string, opts ...AnthropicOption) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderNone:
		return nil, nil
	case ProviderTemplate:
		return NewTemplate(), nil
	case ProviderAnthropic:
		return NewAnthropic(apiKey, modelName, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// displayName prefers a profile's name over its id.
func displayName(p model.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
