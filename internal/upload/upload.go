// Package upload posts each batch to the remote collector.
// Delivery is fire-and-forget: one attempt per batch, no retry, no buffering.
package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// TimestampLayout is the collector's timestamp format (local time).
const TimestampLayout = "2006/01/02 15:04:05"

// Payload is the JSON body accepted by the collector. A channel without a
// valid reading is sent as null, never as a stale or zero value.
type Payload struct {
	Timestamp         string   `json:"timestamp"`
	RefrigeratorTemp  *float64 `json:"refrigeratorTemp"`
	RefrigeratorHumid *float64 `json:"refrigeratorHumid"`
	FreezerTemp       *float64 `json:"freezerTemp"`
	FreezerHumid      *float64 `json:"freezerHumid"`
}

// FormatPayload creates the JSON payload for a batch.
func FormatPayload(b logic.Batch) ([]byte, error) {
	p := Payload{Timestamp: b.Timestamp.Format(TimestampLayout)}
	p.RefrigeratorTemp, p.RefrigeratorHumid = values(b.Refrigerator)
	p.FreezerTemp, p.FreezerHumid = values(b.Freezer)
	return json.Marshal(p)
}

func values(r logic.ChannelResult) (*float64, *float64) {
	if !r.OK() {
		return nil, nil
	}
	t, h := r.Reading.Temperature(), r.Reading.Humidity()
	return &t, &h
}

// Config controls the client. Zero fields take defaults.
type Config struct {
	Endpoint string
	// Timeout bounds one POST. Default 3s.
	Timeout time.Duration
	// TripAfter consecutive failures opens the breaker. Default 3.
	TripAfter uint32
	// OpenFor is how long uploads are skipped once tripped. Default 60s.
	OpenFor time.Duration
}

// Client posts batches to the collector through a circuit breaker, so an
// unreachable collector costs one timeout per OpenFor window instead of one
// per tick.
type Client struct {
	endpoint string
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 60 * time.Second
	}
	trip := cfg.TripAfter
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "upload",
			Timeout: cfg.OpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= trip
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("upload: breaker %s -> %s", from, to)
			},
		}),
	}
}

// Name identifies the sink in logs.
func (c *Client) Name() string { return "upload" }

// State reports the breaker state ("closed", "half-open", "open").
func (c *Client) State() string { return c.cb.State().String() }

// Dispatch posts the batch once. The response body is discarded; a non-2xx
// status is reported as an error.
func (c *Client) Dispatch(b logic.Batch) error {
	payload, err := FormatPayload(b)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.post(payload)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("skipped: %w", err)
	}
	return err
}

func (c *Client) post(payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post: status %d", resp.StatusCode)
	}
	return nil
}
