// Package status provides a thread-safe status tracker for the fridge-sensor daemon.
// It is written by the scheduler (as a sink and round observer) and read by
// HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs      int64
	ThresholdUs     int64
	HeartbeatMs     int64
	PinRefrigerator int
	PinFreezer      int
	Broker          string
	UploadURL       string
	LCD             bool
	HTTPAddr        string
	WSBroker        string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Last          logic.Batch
	HasReading    bool // false until the first round completes
	Stats         logic.StatsSnapshot
	LastRound     time.Duration
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	stats *logic.Stats
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		stats: logic.NewStats(startTime),
	}
}

// Name identifies the tracker in the scheduler's sink list.
func (t *Tracker) Name() string { return "status" }

// Dispatch records the batch and counts both channel outcomes.
func (t *Tracker) Dispatch(b logic.Batch) error {
	t.mu.Lock()
	t.stats.Record(b)
	t.snap.Last = b
	t.snap.HasReading = true
	t.mu.Unlock()
	return nil
}

// ObserveRound records the duration of the last round.
func (t *Tracker) ObserveRound(elapsed time.Duration, overran bool) {
	t.mu.Lock()
	t.snap.LastRound = elapsed
	if overran {
		t.stats.RecordOverrun()
	}
	t.mu.Unlock()
}

// ObserveSinkError counts a failed sink dispatch.
func (t *Tracker) ObserveSinkError(sink string) {
	t.mu.Lock()
	t.stats.RecordSinkError()
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// CheckHeartbeat reports whether a heartbeat is due; see logic.Stats.
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) *logic.HeartbeatData {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.CheckHeartbeat(now, interval)
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Stats = t.stats.Snapshot()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
