package headless

import (
	"context"
	"net/http"
)

// Noop stands in for a browser when none could be started.
type Noop struct{}

// NewNoop creates a new Noop prober.
func NewNoop() *Noop {
	return &Noop{}
}

// Probe always fails with ErrUnavailable.
func (Noop) Probe(context.Context, string, http.Header) (ProbeResult, error) {
	return ProbeResult{}, ErrUnavailable
}
