package ltx

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for a running agent.
type Metrics struct {
	MessagesIn  atomic.Uint64
	MessagesOut atomic.Uint64

	BytesIn  atomic.Uint64
	BytesOut atomic.Uint64

	ChildrenSpawned atomic.Uint64
	ChildrenReaped  atomic.Uint64
	ChildrenKilled  atomic.Uint64

	FilesSent     atomic.Uint64
	FilesReceived atomic.Uint64

	ToleratedErrors atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordInbound records one parsed message and its wire length.
func (m *Metrics) RecordInbound(bytes uint64) {
	m.MessagesIn.Add(1)
	m.BytesIn.Add(bytes)
}

// RecordOutbound records one emitted message and its wire length.
func (m *Metrics) RecordOutbound(bytes uint64) {
	m.MessagesOut.Add(1)
	m.BytesOut.Add(bytes)
}

// RecordSpawn records a successful exec.
func (m *Metrics) RecordSpawn() { m.ChildrenSpawned.Add(1) }

// RecordReap records a child reaped by the signal reaper.
func (m *Metrics) RecordReap() { m.ChildrenReaped.Add(1) }

// RecordKill records a kill message that found a live child.
func (m *Metrics) RecordKill() { m.ChildrenKilled.Add(1) }

// RecordFileSent records a completed get_file transfer.
func (m *Metrics) RecordFileSent() { m.FilesSent.Add(1) }

// RecordFileReceived records a completed set_file transfer.
func (m *Metrics) RecordFileReceived() { m.FilesReceived.Add(1) }

// RecordTolerated records a §7 class-2 error (EAGAIN, ESRCH).
func (m *Metrics) RecordTolerated() { m.ToleratedErrors.Add(1) }

// Stop marks the agent as stopped.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time copy of Metrics for reporting.
type MetricsSnapshot struct {
	MessagesIn      uint64
	MessagesOut     uint64
	BytesIn         uint64
	BytesOut        uint64
	ChildrenSpawned uint64
	ChildrenReaped  uint64
	ChildrenKilled  uint64
	FilesSent       uint64
	FilesReceived   uint64
	ToleratedErrors uint64
	UptimeNs        uint64
}

// Snapshot returns a consistent point-in-time read of m.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		MessagesIn:      m.MessagesIn.Load(),
		MessagesOut:     m.MessagesOut.Load(),
		BytesIn:         m.BytesIn.Load(),
		BytesOut:        m.BytesOut.Load(),
		ChildrenSpawned: m.ChildrenSpawned.Load(),
		ChildrenReaped:  m.ChildrenReaped.Load(),
		ChildrenKilled:  m.ChildrenKilled.Load(),
		FilesSent:       m.FilesSent.Load(),
		FilesReceived:   m.FilesReceived.Load(),
		ToleratedErrors: m.ToleratedErrors.Load(),
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// Reset zeroes all counters and restarts the uptime clock. Useful for tests.
func (m *Metrics) Reset() {
	m.MessagesIn.Store(0)
	m.MessagesOut.Store(0)
	m.BytesIn.Store(0)
	m.BytesOut.Store(0)
	m.ChildrenSpawned.Store(0)
	m.ChildrenReaped.Store(0)
	m.ChildrenKilled.Store(0)
	m.FilesSent.Store(0)
	m.FilesReceived.Store(0)
	m.ToleratedErrors.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection, mirrored onto Metrics by
// MetricsObserver.
type Observer interface {
	ObserveMessage(direction string, bytes uint64)
	ObserveSpawn()
	ObserveReap()
	ObserveKill()
	ObserveFileSent(bytes uint64)
	ObserveFileReceived(bytes uint64)
	ObserveTolerated()
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveMessage(string, uint64) {}
func (NoOpObserver) ObserveSpawn()                 {}
func (NoOpObserver) ObserveReap()                  {}
func (NoOpObserver) ObserveKill()                  {}
func (NoOpObserver) ObserveFileSent(uint64)        {}
func (NoOpObserver) ObserveFileReceived(uint64)    {}
func (NoOpObserver) ObserveTolerated()             {}

// MetricsObserver implements Observer on top of a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveMessage(direction string, bytes uint64) {
	if direction == "out" {
		o.metrics.RecordOutbound(bytes)
		return
	}
	o.metrics.RecordInbound(bytes)
}

func (o *MetricsObserver) ObserveSpawn() { o.metrics.RecordSpawn() }
func (o *MetricsObserver) ObserveReap()  { o.metrics.RecordReap() }
func (o *MetricsObserver) ObserveKill()  { o.metrics.RecordKill() }

func (o *MetricsObserver) ObserveFileSent(bytes uint64)     { o.metrics.RecordFileSent() }
func (o *MetricsObserver) ObserveFileReceived(bytes uint64) { o.metrics.RecordFileReceived() }
func (o *MetricsObserver) ObserveTolerated()                { o.metrics.RecordTolerated() }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
