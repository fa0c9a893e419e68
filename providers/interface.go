package providers

import (
	"context"
)

// StreamHandler receives one text fragment per call during a streaming chat
// completion. Returning an error stops the stream; the adapter must then
// release the underlying connection.
type StreamHandler func(chunk string) error

// Provider is the uniform contract every backend adapter implements.
//
// Adapters translate the unified request/response shapes into their
// backend's wire format. A method for a capability the backend does not
// serve returns an error satisfying IsUnsupported; Capabilities must be
// consistent with which methods are actually implemented.
type Provider interface {
	// Type returns the backend kind this adapter targets.
	Type() ProviderType

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, req *TranscriptionRequest) (*TranscriptionResponse, error)

	// ChatCompletion performs a chat completion request.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatCompletionStream streams a chat completion as text fragments.
	// The sequence is lazy, finite and non-restartable; cancelling ctx
	// terminates the backend connection.
	ChatCompletionStream(ctx context.Context, req *ChatRequest, handler StreamHandler) error

	// GenerateEmbedding produces vector embeddings.
	GenerateEmbedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)

	// VisionCompletion answers a prompt about an image.
	VisionCompletion(ctx context.Context, req *VisionRequest) (*VisionResponse, error)

	// ListModels returns this adapter's static model catalog. It performs
	// no I/O.
	ListModels() []ModelInfo

	// HealthCheck is a lightweight liveness probe. It never returns an
	// error; an unreachable backend reports false.
	HealthCheck(ctx context.Context) bool

	// Capabilities returns the set of capabilities this adapter serves.
	Capabilities() []Capability

	// EstimateCost prices a request against the published per-1K-token
	// rates of the given model (or the adapter's default when model is
	// empty). Pure; no I/O.
	EstimateCost(req *ChatRequest, model string) (*CostEstimate, error)

	// Enabled reports whether the adapter participates in auto-selection.
	Enabled() bool

	// Priority orders auto-selection; lower is tried first.
	Priority() int

	// Close releases resources held by the adapter.
	Close() error
}

// SupportsCapability reports whether p declares the given capability.
func SupportsCapability(p Provider, c Capability) bool {
	for _, pc := range p.Capabilities() {
		if pc == c {
			return true
		}
	}
	return false
}
