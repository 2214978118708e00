package websocket

import (
	"log/slog"
	"sync"
	"time"
)

// DispatchMetric describes one completed sendMessage dispatch
type DispatchMetric struct {
	ConversationID string        `json:"conversationId"`
	Duration       time.Duration `json:"duration"`
	RoomDelivered  int           `json:"roomDelivered"`
	LobbyDelivered int           `json:"lobbyDelivered"`
	Skipped        int           `json:"skipped"`
	Failed         bool          `json:"failed"`
	Timestamp      time.Time     `json:"timestamp"`
}

// DispatchMetrics aggregates dispatch outcomes for the stats endpoint
type DispatchMetrics struct {
	mu sync.RWMutex

	totalDispatches    int
	failedDispatches   int
	roomDeliveries     int
	lobbyNotifications int
	skippedDeliveries  int
	totalDuration      time.Duration
	peakDuration       time.Duration

	slowThreshold time.Duration
}

func NewDispatchMetrics(slowThreshold time.Duration) *DispatchMetrics {
	return &DispatchMetrics{slowThreshold: slowThreshold}
}

func (m *DispatchMetrics) Record(metric DispatchMetric) {
	m.mu.Lock()
	m.totalDispatches++
	if metric.Failed {
		m.failedDispatches++
	}
	m.roomDeliveries += metric.RoomDelivered
	m.lobbyNotifications += metric.LobbyDelivered
	m.skippedDeliveries += metric.Skipped
	m.totalDuration += metric.Duration
	if metric.Duration > m.peakDuration {
		m.peakDuration = metric.Duration
	}
	m.mu.Unlock()

	if m.slowThreshold > 0 && metric.Duration > m.slowThreshold {
		slog.Warn("Slow message dispatch",
			"conversationID", metric.ConversationID,
			"duration", metric.Duration,
			"threshold", m.slowThreshold)
	}
}

// DispatchSnapshot is the aggregated view returned by Snapshot
type DispatchSnapshot struct {
	TotalDispatches    int     `json:"total_dispatches"`
	FailedDispatches   int     `json:"failed_dispatches"`
	RoomDeliveries     int     `json:"room_deliveries"`
	LobbyNotifications int     `json:"lobby_notifications"`
	SkippedDeliveries  int     `json:"skipped_deliveries"`
	AverageDurationMs  float64 `json:"average_duration_ms"`
	PeakDurationMs     float64 `json:"peak_duration_ms"`
}

func (m *DispatchMetrics) Snapshot() DispatchSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := DispatchSnapshot{
		TotalDispatches:    m.totalDispatches,
		FailedDispatches:   m.failedDispatches,
		RoomDeliveries:     m.roomDeliveries,
		LobbyNotifications: m.lobbyNotifications,
		SkippedDeliveries:  m.skippedDeliveries,
		PeakDurationMs:     float64(m.peakDuration) / float64(time.Millisecond),
	}
	if m.totalDispatches > 0 {
		avg := m.totalDuration / time.Duration(m.totalDispatches)
		snap.AverageDurationMs = float64(avg) / float64(time.Millisecond)
	}
	return snap
}
