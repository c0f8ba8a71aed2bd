package lcd

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// RealBus is an I2C device opened through periph.io.
type RealBus struct {
	*i2c.Dev
	closer i2c.BusCloser
}

// OpenBus initialises the host drivers and opens the backpack at addr on the
// named bus ("" picks the first available, e.g. /dev/i2c-1).
func OpenBus(name string, addr uint16) (*RealBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return &RealBus{
		Dev:    &i2c.Dev{Bus: b, Addr: addr},
		closer: b,
	}, nil
}

// Close releases the bus.
func (r *RealBus) Close() error {
	return r.closer.Close()
}
