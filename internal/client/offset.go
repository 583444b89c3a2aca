package client

import (
	"sort"
	"sync"
)

// offsetBatchSize is how many probe samples are collected before the offset
// estimate is refreshed.
const offsetBatchSize = 10

// OffsetEstimator tracks the difference between the server's clock and the
// local one, in milliseconds, from PING round trips. Each reply yields a
// one-way NTP-style sample under the assumption of symmetric latency:
//
//	offset = serverTime - (localReceive - rtt/2)
//
// Samples accumulate in batches; once a batch is full its median becomes the
// new estimate and the batch is cleared. The median rejects latency spikes
// better than a mean, and batching keeps the estimate from chasing jitter.
// The estimate is advisory, used only for local scheduling, and is never
// reported back to the server.
type OffsetEstimator struct {
	mu       sync.Mutex
	samples  []float64
	offsetMs float64
}

// NewOffsetEstimator returns an estimator with a zero initial offset.
func NewOffsetEstimator() *OffsetEstimator {
	return &OffsetEstimator{samples: make([]float64, 0, offsetBatchSize)}
}

// Observe records one completed probe: sentAtMs and receivedAtMs are local
// clock readings around the round trip, serverTimeMs is the server clock from
// the reply.
func (e *OffsetEstimator) Observe(sentAtMs, serverTimeMs, receivedAtMs int64) {
	rtt := receivedAtMs - sentAtMs
	sample := float64(serverTimeMs) - (float64(receivedAtMs) - float64(rtt)/2)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.samples = append(e.samples, sample)
	if len(e.samples) < offsetBatchSize {
		return
	}

	sorted := make([]float64, len(e.samples))
	copy(sorted, e.samples)
	sort.Float64s(sorted)
	e.offsetMs = sorted[len(sorted)/2]
	e.samples = e.samples[:0]
}

// OffsetMs returns the current estimate of serverClock - localClock.
func (e *OffsetEstimator) OffsetMs() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offsetMs
}
