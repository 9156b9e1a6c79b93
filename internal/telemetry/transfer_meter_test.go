package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferMeterTracksPerDownload(t *testing.T) {
	m := NewTransferMeter(&Telemetry{})

	m.Record(1, 100)
	m.Record(1, 250)
	m.Record(2, 50)

	m.mu.Lock()
	defer m.mu.Unlock()

	require.Equal(t, int64(250), m.lastSeen[1])
	require.Equal(t, int64(50), m.lastSeen[2])
	require.Len(t, m.lastSeen, 2)
}

func TestTransferMeterForgetReleasesEntry(t *testing.T) {
	m := NewTransferMeter(&Telemetry{})

	m.Record(1, 100)
	m.Record(2, 200)
	m.Forget(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	_, tracked := m.lastSeen[1]
	require.False(t, tracked)
	require.Len(t, m.lastSeen, 1)
}

func TestTransferMeterIgnoresBackwardsReports(t *testing.T) {
	m := NewTransferMeter(&Telemetry{})

	m.Record(1, 300)
	m.Record(1, 150)

	m.mu.Lock()
	defer m.mu.Unlock()

	require.Equal(t, int64(150), m.lastSeen[1])
}
