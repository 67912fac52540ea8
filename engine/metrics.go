package engine

import "time"

// Metrics accumulates lightweight run-time counters for a Scheduler. A
// single-threaded scheduler never touches Metrics from more than one
// goroutine at a time (the same invariant that lets Scheduler itself go
// unsynchronized), so no locking or atomics are needed here.
type Metrics struct {
	ConnectionsAccepted uint64
	ConnectionsClosed   uint64
	RequestsServed      uint64
	BytesRead           uint64
	BytesWritten        uint64
	Errors              uint64

	latencySum   time.Duration
	latencyCount uint64
	latencyMax   time.Duration
}

// RecordAccept increments the accepted-connection counter.
func (m *Metrics) RecordAccept() { m.ConnectionsAccepted++ }

// RecordClose increments the closed-connection counter.
func (m *Metrics) RecordClose() { m.ConnectionsClosed++ }

// RecordRequest records one served request's end-to-end latency.
func (m *Metrics) RecordRequest(latency time.Duration) {
	m.RequestsServed++
	m.latencySum += latency
	m.latencyCount++
	if latency > m.latencyMax {
		m.latencyMax = latency
	}
}

// RecordIO accounts bytes transferred in either direction.
func (m *Metrics) RecordIO(read, written int) {
	m.BytesRead += uint64(read)
	m.BytesWritten += uint64(written)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError() { m.Errors++ }

// MeanLatency returns the mean request latency observed so far.
func (m *Metrics) MeanLatency() time.Duration {
	if m.latencyCount == 0 {
		return 0
	}
	return m.latencySum / time.Duration(m.latencyCount)
}

// MaxLatency returns the largest single request latency observed so far.
func (m *Metrics) MaxLatency() time.Duration { return m.latencyMax }
