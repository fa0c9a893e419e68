package routing

import (
	"errors"
	"fmt"

	"github.com/openmeet/ai-router/providers"
)

// ErrNoProviderAvailable means the candidate list for a capability was
// empty: nothing is registered, enabled and capable.
var ErrNoProviderAvailable = errors.New("no provider available")

// AllProvidersFailedError reports that every candidate was tried and the
// last one failed. LastErr preserves the most recent provider failure for
// diagnosis.
type AllProvidersFailedError struct {
	Capability providers.Capability
	Attempts   int
	LastErr    error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all %d providers failed for %s: %v", e.Attempts, e.Capability, e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.LastErr
}

func noProviderErr(c providers.Capability) error {
	return fmt.Errorf("%w for capability %s", ErrNoProviderAvailable, c)
}
