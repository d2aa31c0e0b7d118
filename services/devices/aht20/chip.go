package aht20dev

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Addr is the chip's fixed I2C address.
const Addr = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

var errNotReady = errors.New("aht20: not ready")

// Sample holds the 20-bit raw words of one conversion.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

func (s Sample) Celsius() float64     { return float64(s.RawTemp)*200/0x100000 - 50 }
func (s Sample) RelHumidity() float64 { return float64(s.RawHumidity) * 100 / 0x100000 }

// chip speaks the AHT20 protocol. Tx must do write then repeated-start read
// when both buffers are given.
type chip struct {
	bus  drivers.I2C
	addr uint16
	// poll is the wait between collect attempts while the chip is busy.
	poll   time.Duration
	inited bool
	buf    [7]byte
}

func (c *chip) status() (byte, error) {
	var st [1]byte
	if err := c.bus.Tx(c.addr, []byte{cmdStatus}, st[:]); err != nil {
		return 0, err
	}
	return st[0], nil
}

// calibrate initialises the chip unless it already reports calibration.
func (c *chip) calibrate(ctx context.Context) error {
	if st, err := c.status(); err == nil && st&statusCalibrated != 0 {
		c.inited = true
		return nil
	}
	if err := c.bus.Tx(c.addr, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	if err := sleep(ctx, 10*time.Millisecond); err != nil {
		return err
	}
	c.inited = true
	return nil
}

func (c *chip) reset() error {
	c.inited = false
	return c.bus.Tx(c.addr, []byte{cmdSoftReset}, nil)
}

func (c *chip) trigger() error {
	return c.bus.Tx(c.addr, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// collect returns errNotReady while a conversion is in progress.
func (c *chip) collect() (Sample, error) {
	data := c.buf[:]
	if err := c.bus.Tx(c.addr, nil, data); err != nil {
		return Sample{}, err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return Sample{}, errNotReady
	}
	return Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}, nil
}

// measure runs trigger then collect until ready or ctx ends.
func (c *chip) measure(ctx context.Context) (Sample, error) {
	if !c.inited {
		if err := c.calibrate(ctx); err != nil {
			return Sample{}, err
		}
	}
	if err := c.trigger(); err != nil {
		return Sample{}, err
	}
	for {
		s, err := c.collect()
		if !errors.Is(err, errNotReady) {
			return s, err
		}
		if err := sleep(ctx, c.poll); err != nil {
			return Sample{}, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
