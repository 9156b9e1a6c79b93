package telemetry

import "sync"

// TransferMeter turns cumulative per-download byte reports into the
// transfer_bytes_total counter. It remembers the last seen count per download
// so only the delta is recorded; Forget releases the entry once the download
// reaches a terminal state, keeping the map bounded by the live set.
type TransferMeter struct {
	tel *Telemetry

	mu       sync.Mutex
	lastSeen map[uint64]int64
}

// NewTransferMeter creates a meter recording through tel.
func NewTransferMeter(tel *Telemetry) *TransferMeter {
	return &TransferMeter{
		tel:      tel,
		lastSeen: make(map[uint64]int64),
	}
}

// Record counts the bytes moved since the previous report for this download.
// Reports that go backwards record nothing.
func (m *TransferMeter) Record(id uint64, downloaded int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if delta := downloaded - m.lastSeen[id]; delta > 0 {
		m.tel.RecordTransferredBytes(delta)
	}

	m.lastSeen[id] = downloaded
}

// Forget drops the tracking entry for a finished download.
func (m *TransferMeter) Forget(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lastSeen, id)
}
