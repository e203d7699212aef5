package metrics

import "time"

// StoreMetrics observes store backend operations.
type StoreMetrics interface {
	// ObserveOperation records one store call. err is nil on success.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records content bytes read from or committed to the store.
	RecordBytes(operation string, bytes int64)
}

type noopStoreMetrics struct{}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

func (noopStoreMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopStoreMetrics) RecordBytes(string, int64)                     {}
