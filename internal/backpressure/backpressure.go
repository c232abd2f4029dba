// Package backpressure decides when to shed load based on queue depth and
// emits scaling signals for operators.
package backpressure

import (
	"sync"

	"github.com/nexusai/nexus/internal/events"
)

// Signal values returned by Controller.Signal.
const (
	SignalStable        = "stable"
	SignalScaleUp       = "scale_up"
	SignalScaleUpUrgent = "scale_up_urgent"
)

// DefaultThreshold is used when no queue-depth threshold is configured.
const DefaultThreshold = 1000

// urgent kicks in at 1.5x the threshold.
const urgentFactor = 1.5

// Controller evaluates queue depth against a fixed threshold. The zero
// threshold means DefaultThreshold. Safe for concurrent use.
type Controller struct {
	threshold int
	bus       *events.Bus

	mu   sync.Mutex
	last string
}

// NewController builds a Controller. bus may be nil; when set, Observe
// publishes a scale_signal event on every signal transition.
func NewController(threshold int, bus *events.Bus) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{threshold: threshold, bus: bus, last: SignalStable}
}

// Threshold returns the configured queue-depth threshold.
func (c *Controller) Threshold() int {
	return c.threshold
}

// ShouldReject reports whether a request arriving at the given queue depth
// should be shed.
func (c *Controller) ShouldReject(queueDepth int) bool {
	return queueDepth > c.threshold
}

// Signal classifies queue depth into a scaling signal.
func (c *Controller) Signal(queueDepth int) string {
	switch {
	case queueDepth > int(urgentFactor*float64(c.threshold)):
		return SignalScaleUpUrgent
	case queueDepth > c.threshold:
		return SignalScaleUp
	default:
		return SignalStable
	}
}

// Observe computes the signal for the given depth and publishes a
// scale_signal event when it differs from the previous observation.
func (c *Controller) Observe(queueDepth int) string {
	sig := c.Signal(queueDepth)
	c.mu.Lock()
	prev := c.last
	c.last = sig
	c.mu.Unlock()
	if sig != prev && c.bus != nil {
		c.bus.Publish(events.Event{
			Type:       events.EventScaleSignal,
			OldSignal:  prev,
			NewSignal:  sig,
			QueueDepth: queueDepth,
		})
	}
	return sig
}
