package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/fridge-sensor/internal/dht"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/status"
)

func newTestServer(t *testing.T, metrics http.Handler) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Now().Add(-time.Minute)
	cfg := status.Config{
		IntervalMs:      10000,
		ThresholdUs:     30,
		HeartbeatMs:     900000,
		PinRefrigerator: 27,
		PinFreezer:      17,
		Broker:          "tcp://192.168.1.200:1883",
		HTTPAddr:        ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, metrics)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr
}

func testBatch(ts time.Time) logic.Batch {
	return logic.Batch{
		Timestamp: ts,
		Refrigerator: logic.ChannelResult{
			Channel: logic.Refrigerator,
			Reading: logic.Reading{TemperatureTenths: 41, HumidityTenths: 652, Valid: true},
		},
		Freezer: logic.ChannelResult{
			Channel: logic.Freezer,
			Err:     &dht.DecodeError{Kind: logic.ChecksumMismatch, Phase: dht.PhaseValidate},
		},
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Dispatch(testBatch(time.Now()))
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if sj.Status.Refrigerator.Display != "REF 4.1C 65.2%" {
		t.Errorf("Refrigerator.Display: got %q", sj.Status.Refrigerator.Display)
	}
	if sj.Status.Freezer.Error != "CHECKSUM_MISMATCH" {
		t.Errorf("Freezer.Error: got %q", sj.Status.Freezer.Error)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Freezer.ChecksumMismatch != 1 {
		t.Errorf("Counts.Freezer.ChecksumMismatch: got %d, want 1", sj.Status.Counts.Freezer.ChecksumMismatch)
	}
	if sj.Status.Config.IntervalMs != 10000 {
		t.Errorf("Config.IntervalMs: got %d, want 10000", sj.Status.Config.IntervalMs)
	}
}

func TestJSONBeforeFirstRound(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/index.json")

	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)

	if sj.Status.Ready {
		t.Error("expected Ready=false before the first round")
	}
	if sj.Status.Refrigerator.Temperature != nil {
		t.Error("expected no temperature before the first round")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	_, body := get(t, ts.URL+"/index.json")

	var sj status.StatusJSON
	json.Unmarshal([]byte(body), &sj)

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Dispatch(testBatch(time.Now()))

	resp, body := get(t, ts.URL+"/")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	for _, want := range []string{"4.1°C 65.2%", "Data Error (CHECKSUM_MISMATCH)", "REF 27, FRZ 17"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/index.html")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "waiting") {
		t.Error("expected waiting placeholder before the first round")
	}
}

func TestHTMLLiveScriptOnlyWithWSBroker(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	_, body := get(t, ts.URL+"/")
	if strings.Contains(body, "mqtt.connect") {
		t.Error("live script should be omitted without a websocket broker")
	}

	tr := status.NewTracker(time.Now(), status.Config{WSBroker: "ws://192.168.1.200:9001"})
	ts2 := httptest.NewServer(New(":0", tr, nil).httpServer.Handler)
	t.Cleanup(ts2.Close)
	_, body = get(t, ts2.URL+"/")
	if !strings.Contains(body, "mqtt.connect") || !strings.Contains(body, "fridge/sensor/readings") {
		t.Error("expected live script subscribing to the readings topic")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, _ := get(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "fridge_round_overruns_total 0\n")
	})
	ts, _ := newTestServer(t, metrics)

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 || !strings.Contains(body, "fridge_round_overruns_total") {
		t.Errorf("metrics: got %d %q", resp.StatusCode, body)
	}

	ts2, _ := newTestServer(t, nil)
	resp, _ = get(t, ts2.URL+"/metrics")
	if resp.StatusCode != 404 {
		t.Errorf("metrics without handler: got %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(body, "starting") {
		t.Errorf("before first round: got %d %q", resp.StatusCode, body)
	}

	// A failed channel is still a healthy daemon.
	tr.Dispatch(testBatch(time.Now()))
	resp, body = get(t, ts.URL+"/healthz")
	if resp.StatusCode != 200 || strings.TrimSpace(body) != "ok" {
		t.Errorf("after round: got %d %q", resp.StatusCode, body)
	}
}

func TestHealthStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := status.Snapshot{
		Last:       testBatch(now.Add(-31 * time.Second)),
		HasReading: true,
		Now:        now,
		Config:     status.Config{IntervalMs: 10000},
	}
	ok, msg := health(snap)
	if ok || !strings.HasPrefix(msg, "stale") {
		t.Errorf("got %v %q, want stale", ok, msg)
	}

	snap.Last.Timestamp = now.Add(-29 * time.Second)
	if ok, _ := health(snap); !ok {
		t.Error("expected healthy within three intervals")
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	_, body := get(t, ts.URL+"/index.json")
	var sj1 status.StatusJSON
	json.Unmarshal([]byte(body), &sj1)
	if sj1.Status.Counts.Rounds != 0 {
		t.Errorf("expected no rounds initially, got %d", sj1.Status.Counts.Rounds)
	}

	b := testBatch(time.Now())
	b.Freezer = logic.ChannelResult{Channel: logic.Freezer, Err: errors.New("boom")}
	tr.Dispatch(b)
	tr.ObserveRound(2*time.Second, false)

	_, body = get(t, ts.URL+"/index.json")
	var sj2 status.StatusJSON
	json.Unmarshal([]byte(body), &sj2)
	if sj2.Status.Counts.Rounds != 1 {
		t.Errorf("Rounds: got %d, want 1", sj2.Status.Counts.Rounds)
	}
	if sj2.Status.LastRoundMs != 2000 {
		t.Errorf("LastRoundMs: got %d, want 2000", sj2.Status.LastRoundMs)
	}
}
