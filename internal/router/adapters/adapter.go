// Package adapters translates the gateway's provider-agnostic completion
// request into each upstream SDK and normalizes the streamed result.
package adapters

import (
	"context"
	"errors"

	"github.com/af-corp/chat-gateway/internal/types"
)

// ErrUpstream wraps every failure reported by a provider SDK.
var ErrUpstream = errors.New("upstream provider error")

// EventFunc receives incremental output. Returning an error aborts the
// stream.
type EventFunc func(types.CompletionEvent) error

// ProviderAdapter runs one model step against an upstream provider.
// Stream blocks until the step completes, emitting events as they arrive,
// and returns the accumulated response.
type ProviderAdapter interface {
	Name() string
	Stream(ctx context.Context, req *types.CompletionRequest, emit EventFunc) (*types.CompletionResponse, error)
}
