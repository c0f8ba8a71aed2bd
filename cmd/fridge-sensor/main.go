// Command fridge-sensor samples the refrigerator and freezer DHT22 sensors on
// a fixed cadence and reports the readings to the LCD, the HTTP collector and MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/fridge-sensor/internal/config"
	"github.com/sweeney/fridge-sensor/internal/dht"
	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/lcd"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/metrics"
	"github.com/sweeney/fridge-sensor/internal/mqtt"
	"github.com/sweeney/fridge-sensor/internal/sampler"
	"github.com/sweeney/fridge-sensor/internal/scheduler"
	"github.com/sweeney/fridge-sensor/internal/status"
	"github.com/sweeney/fridge-sensor/internal/upload"
	"github.com/sweeney/fridge-sensor/internal/web"
)

func main() {
	configPath := flag.String("config", "", `Config file or directory holding config.yaml (default "`+config.DefaultSearchPath+`", then ".")`)
	printState := flag.Bool("print-state", false, "Read both sensors once, print the display lines and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printState bool) error {
	// Initialize GPIO
	ref, err := gpio.NewRealLine(cfg.Sensor.Chip, cfg.Sensor.PinRefrigerator)
	if err != nil {
		return fmt.Errorf("init refrigerator line: %w", err)
	}
	defer ref.Close()
	frz, err := gpio.NewRealLine(cfg.Sensor.Chip, cfg.Sensor.PinFreezer)
	if err != nil {
		return fmt.Errorf("init freezer line: %w", err)
	}
	defer frz.Close()

	smp := sampler.New(dht.New(cfg.Timing()), time.Now)

	// Print state mode
	if printState {
		printOnce(os.Stdout, smp, ref, frz)
		return nil
	}

	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg, ws))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	met := metrics.New()

	// The tracker goes first so heartbeats and status see the current batch.
	sinks := []scheduler.Sink{tracker, met}

	if cfg.LCD.Enabled {
		if display, closeBus, err := openDisplay(cfg); err != nil {
			log.Printf("lcd disabled: %v", err)
		} else {
			defer closeBus()
			sinks = append(sinks, display)
		}
	}

	if cfg.Upload.Endpoint != "" {
		sinks = append(sinks, upload.New(cfg.UploadClient()))
	}

	var rep *reporter
	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ConnectWait)
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			defer publisher.Close()
			rep = newReporter(publisher, publisher, tracker, cfg.Heartbeat, time.Now)
			rep.startup()
			sinks = append(sinks, rep)
		}
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, met.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	sched := scheduler.New(scheduler.Config{
		Interval:     cfg.Interval,
		Sampler:      smp,
		Refrigerator: ref,
		Freezer:      frz,
		Sinks:        sinks,
		Observer:     scheduler.Observers{tracker, met},
	})

	log.Printf("started: interval=%v threshold=%v pins=%d/%d lcd=%v upload=%q broker=%q heartbeat=%v",
		cfg.Interval, cfg.Sensor.Threshold, cfg.Sensor.PinRefrigerator, cfg.Sensor.PinFreezer,
		cfg.LCD.Enabled, cfg.Upload.Endpoint, cfg.MQTT.Broker, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runUntilSignal(sched, rep, sigCh)
}

func openDisplay(cfg *config.Config) (*lcd.Display, func() error, error) {
	bus, err := lcd.OpenBus(cfg.LCD.Bus, uint16(cfg.LCD.Address))
	if err != nil {
		return nil, nil, err
	}
	display := lcd.New(bus)
	if err := display.Init(); err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("init display: %w", err)
	}
	return display, bus.Close, nil
}

// runner is satisfied by *scheduler.Scheduler.
type runner interface {
	Run(ctx context.Context) error
}

// runUntilSignal runs the scheduler until a signal arrives, then publishes
// SHUTDOWN. The round in progress is allowed to finish.
func runUntilSignal(sched runner, rep *reporter, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := sched.Run(ctx)

	name := "UNKNOWN"
	select {
	case name = <-reason:
	default:
	}
	if rep != nil {
		rep.shutdown(name)
	}
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// printOnce samples both channels and prints the two display lines.
func printOnce(w io.Writer, smp scheduler.Sampler, ref, frz gpio.Line) logic.Batch {
	b := smp.SampleBoth(ref, frz)
	for _, r := range b.Results() {
		if r.Err != nil {
			log.Printf("%s: read failed: %v", r.Channel, r.Err)
		}
	}
	l1, l2 := logic.DisplayLines(b)
	fmt.Fprintf(w, "%s\n%s\n", l1, l2)
	return b
}

func statusConfig(cfg *config.Config, ws string) status.Config {
	return status.Config{
		IntervalMs:      cfg.Interval.Milliseconds(),
		ThresholdUs:     cfg.Sensor.Threshold.Microseconds(),
		HeartbeatMs:     cfg.Heartbeat.Milliseconds(),
		PinRefrigerator: cfg.Sensor.PinRefrigerator,
		PinFreezer:      cfg.Sensor.PinFreezer,
		Broker:          cfg.MQTT.Broker,
		UploadURL:       cfg.Upload.Endpoint,
		LCD:             cfg.LCD.Enabled,
		HTTPAddr:        cfg.HTTP.Addr,
		WSBroker:        ws,
	}
}

// reporter publishes each batch to MQTT and, when due, a HEARTBEAT status
// snapshot. It is the scheduler's "mqtt" sink.
type reporter struct {
	pub       mqtt.Publisher
	conn      mqtt.ConnectionStatus // optional
	tracker   *status.Tracker
	heartbeat time.Duration
	now       func() time.Time
}

func newReporter(pub mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time) *reporter {
	return &reporter{pub: pub, conn: conn, tracker: tracker, heartbeat: heartbeat, now: now}
}

func (r *reporter) Name() string { return "mqtt" }

func (r *reporter) Dispatch(b logic.Batch) error {
	r.refreshConnected()
	err := r.pub.Publish(b)

	if hb := r.tracker.CheckHeartbeat(r.now(), r.heartbeat); hb != nil {
		s := hb.Stats
		log.Printf("heartbeat: uptime=%v rounds=%d overruns=%d sink_errors=%d ref_ok=%d ref_failed=%d frz_ok=%d frz_failed=%d",
			hb.Uptime.Truncate(time.Second), s.Rounds, s.Overruns, s.SinkErrors,
			s.Refrigerator.OK, s.Refrigerator.Failures(), s.Freezer.OK, s.Freezer.Failures())

		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			r.tracker.SetNetwork(net)
		}
		snap := r.tracker.Snapshot()
		event := mqtt.SystemEvent{
			Timestamp:  hb.Timestamp,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if perr := r.pub.PublishSystem(event); perr != nil {
			log.Printf("heartbeat publish error: %v", perr)
		}
	}
	return err
}

// startup publishes a retained STARTUP event with the full status snapshot.
func (r *reporter) startup() {
	r.refreshConnected()
	snap := r.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := r.pub.PublishSystem(event); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
}

// shutdown publishes a retained SHUTDOWN event naming the signal.
func (r *reporter) shutdown(reason string) {
	r.refreshConnected()
	snap := r.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  r.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := r.pub.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

func (r *reporter) refreshConnected() {
	if r.conn != nil {
		r.tracker.SetMQTTConnected(r.conn.IsConnected())
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the mqtt.ws_broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty or
// "off" disables, as does an empty broker.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		log.Printf("ws-broker: cannot parse broker %q: %v", broker, err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
