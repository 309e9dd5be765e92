package metrics

import "time"

// NoopRecorder drops all telemetry. The default when metrics are not
// enabled.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
