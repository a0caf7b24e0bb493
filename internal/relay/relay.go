package relay

import (
	"context"
	"errors"
	"time"

	"askrelay/internal/config"
	"askrelay/internal/metrics"
	"askrelay/internal/provider"
)

// Relay forwards validated prompts to the upstream gateway.
type Relay struct {
	upstream config.UpstreamConfig
	gateway  provider.Gateway
	metrics  *metrics.Metrics
}

// New constructs a relay backed by the provided gateway. m may be nil.
func New(upstream config.UpstreamConfig, gateway provider.Gateway, m *metrics.Metrics) (*Relay, error) {
	if gateway == nil {
		return nil, errors.New("gateway must not be nil")
	}
	return &Relay{
		upstream: upstream,
		gateway:  gateway,
		metrics:  m,
	}, nil
}

// CheckConfig reports provider.ErrMissingCredential when no API key is set.
func (r *Relay) CheckConfig() error {
	if !r.upstream.HasCredential() {
		return provider.ErrMissingCredential
	}
	return nil
}

// Model returns the model identifier sent upstream.
func (r *Relay) Model() string {
	return r.upstream.EffectiveModel()
}

// Ask performs exactly one upstream call for prompt. Upstream failures are
// returned as *provider.UpstreamError.
func (r *Relay) Ask(ctx context.Context, prompt string) (provider.Completion, error) {
	if err := r.CheckConfig(); err != nil {
		return provider.Completion{}, err
	}

	start := time.Now()
	completion, err := r.gateway.Complete(ctx, provider.CompletionRequest{
		Prompt: prompt,
		Model:  r.Model(),
		APIKey: r.upstream.APIKey,
	})
	if err != nil {
		upErr := provider.AsUpstreamError(err)
		r.metrics.ObserveUpstream(upErr.Kind.String(), time.Since(start))
		return provider.Completion{}, upErr
	}
	r.metrics.ObserveUpstream("ok", time.Since(start))

	if completion.Text == "" {
		return provider.Completion{}, &provider.UpstreamError{
			Kind:   provider.KindEmptyResponse,
			Detail: r.gateway.Name() + " returned empty text",
		}
	}
	if completion.Model == "" {
		completion.Model = r.Model()
	}
	return completion, nil
}
