// Package sampler reads both sensor channels in parallel and joins the
// outcomes into one batch.
package sampler

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
)

// Reader performs one decode attempt on a line.
// *dht.Decoder satisfies this interface.
type Reader interface {
	Read(line gpio.Line) (logic.Reading, error)
}

// Sampler runs one Reader against two lines concurrently.
type Sampler struct {
	reader Reader
	now    func() time.Time
}

// New creates a Sampler. now is used for the batch timestamp; nil means
// time.Now.
func New(reader Reader, now func() time.Time) *Sampler {
	if now == nil {
		now = time.Now
	}
	return &Sampler{reader: reader, now: now}
}

// SampleBoth decodes ref and frz in parallel and returns once both have
// finished. Each decode owns its line and runs on its own OS thread so the
// other channel's spin-waits cannot delay it. The timestamp is taken after
// both complete.
func (s *Sampler) SampleBoth(ref, frz gpio.Line) logic.Batch {
	var results [2]logic.ChannelResult
	var wg sync.WaitGroup

	lines := [2]gpio.Line{ref, frz}
	channels := [2]logic.Channel{logic.Refrigerator, logic.Freezer}
	for i := range lines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			r, err := s.read(lines[i])
			results[i] = logic.ChannelResult{Channel: channels[i], Reading: r, Err: err}
		}(i)
	}
	wg.Wait()

	return logic.Batch{
		Timestamp:    s.now(),
		Refrigerator: results[0],
		Freezer:      results[1],
	}
}

// read runs one decode. A panicking reader becomes that channel's error.
func (s *Sampler) read(line gpio.Line) (r logic.Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = logic.Reading{}, fmt.Errorf("decode panic: %v", p)
		}
	}()
	r, err = s.reader.Read(line)
	if err != nil {
		r = logic.Reading{}
	}
	return r, err
}
