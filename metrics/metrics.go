// Package metrics defines the recording interface for engine telemetry,
// with prometheus and no-op implementations.
package metrics

import "time"

// Recorder receives resolution counters and latencies. Label maps may be
// nil; implementations must tolerate missing keys.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
