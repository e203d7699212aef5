package metrics

import "time"

// FileServerMetrics provides observability for the file protocol adapter.
//
// Implementations collect metrics about commands, connection lifecycle,
// throughput and throttling. This interface is optional - if not provided to
// the adapter, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewFileServerMetrics()
//	adapter := filesrv.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := filesrv.New(config, nil)
type FileServerMetrics interface {
	// RecordRequest records a completed command with its name, duration and
	// the status sent back to the client.
	//
	// Parameters:
	//   - command: Canonical command name (e.g., "GET_LIST", "PUT")
	//   - duration: Time taken to process the command, body included
	//   - status: Response status ("SUCCESS", "ERROR", ...), "NONE" for QUIT
	RecordRequest(command string, duration time.Duration, status string)

	// RecordRequestStart increments the in-flight command gauge.
	RecordRequestStart(command string)

	// RecordRequestEnd decrements the in-flight command gauge.
	RecordRequestEnd(command string)

	// RecordBytesTransferred records body bytes moved by a command.
	//
	// Parameters:
	//   - command: Canonical command name
	//   - direction: "in" (client to server) or "out" (server to client)
	//   - bytes: Number of body bytes
	RecordBytesTransferred(command string, direction string, bytes int64)

	// RecordTransferAborted counts a body transfer that ended early.
	RecordTransferAborted(command string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by the shutdown
	// timeout.
	RecordConnectionForceClosed()

	// RecordRateLimited counts commands rejected by the rate limiter.
	RecordRateLimited()
}

type noopFileServerMetrics struct{}

// NewNoopFileServerMetrics returns a FileServerMetrics that discards everything.
func NewNoopFileServerMetrics() FileServerMetrics {
	return noopFileServerMetrics{}
}

func (noopFileServerMetrics) RecordRequest(string, time.Duration, string)  {}
func (noopFileServerMetrics) RecordRequestStart(string)                    {}
func (noopFileServerMetrics) RecordRequestEnd(string)                      {}
func (noopFileServerMetrics) RecordBytesTransferred(string, string, int64) {}
func (noopFileServerMetrics) RecordTransferAborted(string)                 {}
func (noopFileServerMetrics) SetActiveConnections(int32)                   {}
func (noopFileServerMetrics) RecordConnectionAccepted()                    {}
func (noopFileServerMetrics) RecordConnectionClosed()                      {}
func (noopFileServerMetrics) RecordConnectionForceClosed()                 {}
func (noopFileServerMetrics) RecordRateLimited()                           {}
