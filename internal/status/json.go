package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	LastSample    string       `json:"last_sample,omitempty"`
	Refrigerator  ChannelJSON  `json:"refrigerator"`
	Freezer       ChannelJSON  `json:"freezer"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastRoundMs   int64        `json:"last_round_ms"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ChannelJSON is the latest reading for one channel. Temperature and
// Humidity are null until the channel has produced a valid reading in the
// last round.
type ChannelJSON struct {
	Display     string   `json:"display"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Error       string   `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the running counters.
type CountsJSON struct {
	Rounds       int               `json:"rounds"`
	Overruns     int               `json:"overruns"`
	SinkErrors   int               `json:"sink_errors"`
	Refrigerator ChannelCountsJSON `json:"refrigerator"`
	Freezer      ChannelCountsJSON `json:"freezer"`
}

// ChannelCountsJSON is the JSON representation of one channel's outcomes.
type ChannelCountsJSON struct {
	OK               int `json:"ok"`
	NoResponse       int `json:"no_response"`
	MalformedBit     int `json:"malformed_bit"`
	ChecksumMismatch int `json:"checksum_mismatch"`
	LineFault        int `json:"line_fault"`
	Unknown          int `json:"unknown"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs      int64  `json:"interval_ms"`
	ThresholdUs     int64  `json:"threshold_us"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	PinRefrigerator int    `json:"pin_refrigerator"`
	PinFreezer      int    `json:"pin_freezer"`
	Broker          string `json:"broker"`
	UploadURL       string `json:"upload_url"`
	LCD             bool   `json:"lcd"`
	HTTPAddr        string `json:"http_addr"`
	WSBroker        string `json:"ws_broker,omitempty"`
}

func channelJSON(r logic.ChannelResult, have bool) ChannelJSON {
	if !have {
		return ChannelJSON{}
	}
	c := ChannelJSON{Display: logic.DisplayLine(r)}
	if !r.OK() {
		c.Error = string(logic.KindOf(r.Err))
		return c
	}
	t, h := r.Reading.Temperature(), r.Reading.Humidity()
	c.Temperature, c.Humidity = &t, &h
	return c
}

func countsJSON(c logic.Counts) ChannelCountsJSON {
	return ChannelCountsJSON{
		OK:               c.OK,
		NoResponse:       c.NoResponse,
		MalformedBit:     c.MalformedBit,
		ChecksumMismatch: c.ChecksumMismatch,
		LineFault:        c.LineFault,
		Unknown:          c.Unknown,
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.HasReading,
		Refrigerator:  channelJSON(snap.Last.Refrigerator, snap.HasReading),
		Freezer:       channelJSON(snap.Last.Freezer, snap.HasReading),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastRoundMs:   snap.LastRound.Milliseconds(),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Rounds:       snap.Stats.Rounds,
			Overruns:     snap.Stats.Overruns,
			SinkErrors:   snap.Stats.SinkErrors,
			Refrigerator: countsJSON(snap.Stats.Refrigerator),
			Freezer:      countsJSON(snap.Stats.Freezer),
		},
		Config: ConfigJSON{
			IntervalMs:      snap.Config.IntervalMs,
			ThresholdUs:     snap.Config.ThresholdUs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			PinRefrigerator: snap.Config.PinRefrigerator,
			PinFreezer:      snap.Config.PinFreezer,
			Broker:          snap.Config.Broker,
			UploadURL:       snap.Config.UploadURL,
			LCD:             snap.Config.LCD,
			HTTPAddr:        snap.Config.HTTPAddr,
			WSBroker:        snap.Config.WSBroker,
		},
	}
	if snap.HasReading {
		inner.LastSample = snap.Last.Timestamp.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
