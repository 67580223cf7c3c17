package metrics

import (
	"context"
	"time"

	"github.com/pavelanni/interviewer/internal/llm"
)

// InstrumentedProvider wraps an llm.Provider with call counters and latency.
type InstrumentedProvider struct {
	llm.Provider
}

// Instrument wraps p.
func Instrument(p llm.Provider) *InstrumentedProvider {
	return &InstrumentedProvider{Provider: p}
}

func (p *InstrumentedProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	start := time.Now()
	out, err := p.Provider.Generate(ctx, req)
	LLMLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LLMRequests.WithLabelValues(p.Name(), outcome).Inc()
	return out, err
}
