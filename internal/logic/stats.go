package logic

import "time"

// Stats accumulates per-channel outcomes and round counters.
// Not safe for concurrent use; it is owned by the scheduler goroutine.
type Stats struct {
	startTime     time.Time
	lastHeartbeat time.Time
	snap          StatsSnapshot
}

// NewStats creates counters starting at startTime.
// The startTime is used for calculating uptime in heartbeat events.
func NewStats(startTime time.Time) *Stats {
	return &Stats{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Record counts both channel outcomes of a batch as one round.
func (s *Stats) Record(b Batch) {
	s.snap.Rounds++
	count(&s.snap.Refrigerator, b.Refrigerator)
	count(&s.snap.Freezer, b.Freezer)
}

// RecordOverrun counts a round that exceeded the sampling interval.
func (s *Stats) RecordOverrun() {
	s.snap.Overruns++
}

// RecordSinkError counts a failed sink dispatch.
func (s *Stats) RecordSinkError() {
	s.snap.SinkErrors++
}

func count(c *Counts, r ChannelResult) {
	if r.OK() {
		c.OK++
		return
	}
	switch KindOf(r.Err) {
	case NoResponse:
		c.NoResponse++
	case MalformedBit:
		c.MalformedBit++
	case ChecksumMismatch:
		c.ChecksumMismatch++
	case LineFault:
		c.LineFault++
	default:
		c.Unknown++
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return s.snap
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if no round has completed yet, if
// the interval has not elapsed, or if interval is <= 0 (disabled).
func (s *Stats) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if s.snap.Rounds == 0 {
		return nil
	}

	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}

	s.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Stats:     s.snap,
	}
}
