// Package embedding provides the pluggable embedding backends used at
// ingestion and query time. Backends are a closed set selected by
// configuration through a registry, never by runtime type inspection.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// Provider converts text into fixed-length vectors. EmbedDocuments returns
// one vector per input, in input order, all of the same dimensionality.
// EmbedQuery is equivalent to EmbedDocuments with a single input and taking
// its only result; implementations may special-case it but must preserve
// that equivalence.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Registry maps provider:model identifiers to configured backends. A
// knowledge base records such an identifier at creation time and resolves
// the same backend for every source and every query.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(model string, p Provider) {
	r.providers[model] = p
}

// Resolve returns the backend for a model identifier. An identifier nothing
// was registered under is a configuration error, surfaced synchronously.
func (r *Registry) Resolve(model string) (Provider, error) {
	if model == "" {
		return nil, domain.ErrMissingEmbeddingModel
	}
	p, ok := r.providers[model]
	if !ok {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("embedding model %q", model), domain.ErrUnknownProvider)
	}
	return p, nil
}

// Models lists the registered model identifiers.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.providers))
	for m := range r.providers {
		models = append(models, m)
	}
	return models
}

// classifyBackendError distinguishes timeouts from generic backend failures
// so callers can tell a hung endpoint from a rejecting one.
func classifyBackendError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTimeoutError(message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewTimeoutError(message, err)
	}
	return domain.NewEmbeddingError(message, err)
}
