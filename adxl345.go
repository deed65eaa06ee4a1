// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adxl345

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	DeviceID = 0x00 // Device ID, expected to be 0xE5 when using ADXL345

	ThreshTap   = 0x1D // Tap threshold
	OfsX        = 0x1E // X-axis offset
	OfsY        = 0x1F // Y-axis offset
	OfsZ        = 0x20 // Z-axis offset
	Dur         = 0x21 // Tap duration
	Latent      = 0x22 // Tap latency
	Window      = 0x23 // Tap window
	ThreshAct   = 0x24 // Activity threshold
	ThreshInact = 0x25 // Inactivity threshold
	TimeInact   = 0x26 // Inactivity time
	ActInactCtl = 0x27 // Axis control for activity/inactivity detection
	ThreshFf    = 0x28 // Free-fall threshold
	TimeFf      = 0x29 // Free-fall time
	TapAxes     = 0x2A // Axis control for single tap/double tap
	TapStatus   = 0x2B // Source of single tap/double tap

	// Control registers

	BwRate     = 0x2C // Data rate and power mode control
	PowerCtl   = 0x2D // Power saving features control
	IntEnable  = 0x2E // Interrupt enable control
	IntMap     = 0x2F // Interrupt mapping control
	IntSource  = 0x30 // Source of interrupts
	DataFormat = 0x31 // Data format control

	// Data registers
	DataX0 = 0x32 // X-Axis Data 0
	DataX1 = 0x33 // X-Axis Data 1
	DataY0 = 0x34 // Y-Axis Data 0
	DataY1 = 0x35 // Y-Axis Data 1
	DataZ0 = 0x36 // Z-Axis Data 0
	DataZ1 = 0x37 // Z-Axis Data 1

	// FIFO control
	FifoCtl    = 0x38 // FIFO control
	FifoStatus = 0x39 // FIFO status
)

const (
	// SPI transaction masks. The first transferred byte carries the register
	// address; bit 7 selects read, bit 6 auto-increments the address so a
	// whole sample row can be fetched in one transaction.
	spiRead      = 0x80
	spiMultiByte = 0x40

	// INT_SOURCE bits.
	dataReadyBit = 0x80
	watermarkBit = 0x02

	// FIFO_STATUS entry counter.
	fifoEntriesMask = 0x3F

	// POWER_CTL measure bit.
	measureBit = 0x08

	rowSize = 6 // 2 bytes * 3 axes
)

// Range selects the full-scale measurement range. Wider ranges cover more
// acceleration with the same 10 bits, so the per-LSB scale factor grows
// with the range.
type Range byte

const (
	R2G  Range = 0x00 // ±2g
	R4G  Range = 0x01 // ±4g
	R8G  Range = 0x02 // ±8g
	R16G Range = 0x03 // ±16g
)

func (r Range) String() string {
	switch r {
	case R2G:
		return "±2g"
	case R4G:
		return "±4g"
	case R8G:
		return "±8g"
	case R16G:
		return "±16g"
	}
	return fmt.Sprintf("Range(%d)", byte(r))
}

// scale returns the conversion factor from one LSB to standard gravities,
// for the 10-bit right-justified output format.
func (r Range) scale() float64 {
	switch r {
	case R4G:
		return 4.0 / 512.0
	case R8G:
		return 8.0 / 512.0
	case R16G:
		return 16.0 / 512.0
	}
	return 2.0 / 512.0
}

// FifoMode selects how the on-device 32-entry FIFO behaves.
type FifoMode byte

const (
	// FifoBypass disables the FIFO; samples must be polled one at a time.
	FifoBypass FifoMode = 0
	// FifoFIFO buffers samples until the FIFO is full, then stops.
	FifoFIFO FifoMode = 1
	// FifoStream buffers samples, discarding the oldest when full.
	FifoStream FifoMode = 2
	// FifoTrigger is accepted for register-level completeness, but its
	// semantics are unverified on this device family and no acquisition
	// method uses it.
	FifoTrigger FifoMode = 3
)

func (m FifoMode) String() string {
	switch m {
	case FifoBypass:
		return "bypass"
	case FifoFIFO:
		return "fifo"
	case FifoStream:
		return "stream"
	case FifoTrigger:
		return "trigger"
	}
	return fmt.Sprintf("FifoMode(%d)", byte(m))
}

// PowerMode is the device power state. Output data rate and range are only
// writable in Standby; sample acquisition is only possible in Measure.
type PowerMode byte

const (
	Standby PowerMode = 0x00
	Measure PowerMode = measureBit
)

func (m PowerMode) String() string {
	if m == Measure {
		return "measure"
	}
	return "standby"
}

// Errors returned by the driver. Bus-level faults are wrapped with
// fmt.Errorf("%w") and can be unwrapped with errors.Unwrap.
var (
	// ErrNotStandby is returned when a configuration register write is
	// requested while the device is measuring.
	ErrNotStandby = errors.New("adxl345: device must be in standby to change configuration")
	// ErrNotMeasuring is returned when an acquisition is requested before
	// the device was put in measurement mode.
	ErrNotMeasuring = errors.New("adxl345: device is not in measurement mode")
	// ErrTimeout is returned when the data-ready condition is not observed
	// within the poll budget.
	ErrTimeout = errors.New("adxl345: timed out waiting for data ready")
	// ErrCapacity is returned before any bus I/O when a requested
	// acquisition would exceed Opts.MaxSamples.
	ErrCapacity = errors.New("adxl345: requested acquisition exceeds the sample ceiling")
	// ErrUnsupportedRate is returned for non-positive rate requests. Any
	// positive request is snapped to the supported codebook instead.
	ErrUnsupportedRate = errors.New("adxl345: unsupported output data rate")
	// ErrFIFODisabled is returned by FIFO-backed acquisition when the FIFO
	// is not in a buffering mode.
	ErrFIFODisabled = errors.New("adxl345: fifo is not in a buffering mode")
)

// SPI connection parameters. The device supports up to 5MHz; a conservative
// default keeps long jumper wires workable.
var (
	SpiFrequency = physic.KiloHertz * 50
	SpiMode      = spi.Mode3 // Clock polarity and phase used by the ADXL345.
	SpiBits      = 8
)

// rateCodebook lists the output data rates the device natively supports
// (BW_RATE codes 0x04..0x0F), in ascending order.
var rateCodebook = []struct {
	code byte
	freq physic.Frequency
}{
	{0x04, 1560 * physic.MilliHertz},
	{0x05, 3130 * physic.MilliHertz},
	{0x06, 6250 * physic.MilliHertz},
	{0x07, 12500 * physic.MilliHertz},
	{0x08, 25 * physic.Hertz},
	{0x09, 50 * physic.Hertz},
	{0x0A, 100 * physic.Hertz},
	{0x0B, 200 * physic.Hertz},
	{0x0C, 400 * physic.Hertz},
	{0x0D, 800 * physic.Hertz},
	{0x0E, 1600 * physic.Hertz},
	{0x0F, 3200 * physic.Hertz},
}

// snapRate returns the codebook entry nearest to the requested frequency.
// Ties resolve toward the lower rate so the effective rate never overshoots
// the caller's timing budget.
func snapRate(requested physic.Frequency) (byte, physic.Frequency) {
	best := rateCodebook[0]
	bestDiff := physic.Frequency(-1)
	for _, e := range rateCodebook {
		diff := requested - e.freq
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best = e
			bestDiff = diff
		}
	}
	return best.code, best.freq
}

// Opts holds the device configuration applied on open.
type Opts struct {
	// Range is the initial full-scale measurement range.
	Range Range
	// ODR is the requested output data rate; it is snapped to the nearest
	// supported rate. 0 means 100Hz, the device's power-on default.
	ODR physic.Frequency
	// MaxSamples is the ceiling on samples a single acquisition may
	// allocate. Acquisitions that would exceed it fail with ErrCapacity
	// before any bus I/O. 0 means 65536.
	MaxSamples int
	// ExpectedDeviceID is checked against the DEVID register on open.
	// 0 means 0xE5, the ADXL345 part ID.
	ExpectedDeviceID byte
}

// DefaultOpts is the recommended default configuration.
var DefaultOpts = Opts{
	Range:            R2G,
	ODR:              100 * physic.Hertz,
	MaxSamples:       65536,
	ExpectedDeviceID: 0xE5,
}

// Dev is a handle to one ADXL345. It owns the underlying bus connection for
// the duration of the session; a single Dev must be the only user of the
// wired device. Dev implements conn.Resource.
type Dev struct {
	spiConn spi.Conn
	i2cDev  *i2c.Dev

	mu         sync.Mutex
	power      PowerMode
	fifo       FifoMode
	watermark  int
	rng        Range
	odr        physic.Frequency
	maxSamples int
}

// New opens an ADXL345 connected over SPI. The device is probed for its part
// ID, forced into standby and configured per opts. If opts is nil,
// DefaultOpts is used.
func New(p spi.Port, opts *Opts) (*Dev, error) {
	c, err := p.Connect(SpiFrequency, SpiMode, SpiBits)
	if err != nil {
		return nil, fmt.Errorf("adxl345: connecting SPI port: %w", err)
	}
	d := &Dev{spiConn: c}
	return d, d.init(opts)
}

// NewI2C opens an ADXL345 connected over I²C at the given address (0x53
// with SDO low, 0x1D with SDO high). If opts is nil, DefaultOpts is used.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	d := &Dev{i2cDev: &i2c.Dev{Bus: b, Addr: addr}}
	return d, d.init(opts)
}

func (d *Dev) init(opts *Opts) error {
	if opts == nil {
		opts = &DefaultOpts
	}
	expected := opts.ExpectedDeviceID
	if expected == 0 {
		expected = DefaultOpts.ExpectedDeviceID
	}
	odr := opts.ODR
	if odr == 0 {
		odr = DefaultOpts.ODR
	}
	d.maxSamples = opts.MaxSamples
	if d.maxSamples == 0 {
		d.maxSamples = DefaultOpts.MaxSamples
	}

	id, err := d.readReg(DeviceID)
	if err != nil {
		return fmt.Errorf("adxl345: reading device ID: %w", err)
	}
	if id != expected {
		return fmt.Errorf("adxl345: unexpected device ID %#02x, want %#02x", id, expected)
	}
	// Power-on state may be unknown after a warm restart; force standby so
	// the configuration registers are writable.
	if err := d.writeReg(PowerCtl, byte(Standby)); err != nil {
		return fmt.Errorf("adxl345: entering standby: %w", err)
	}
	d.power = Standby
	if err := d.setRange(opts.Range); err != nil {
		return err
	}
	if _, err := d.setODR(odr); err != nil {
		return err
	}
	if err := d.setFIFO(FifoBypass, 0); err != nil {
		return err
	}
	return nil
}

func (d *Dev) String() string {
	if d.i2cDev != nil {
		return fmt.Sprintf("adxl345: %s", d.i2cDev.String())
	}
	return fmt.Sprintf("adxl345: %s", d.spiConn)
}

// Halt puts the device in standby, ending any caller-visible measurement
// session. Implements conn.Resource. The cached power state is updated even
// when the bus write fails, so a later close of the underlying port is not
// blocked by a dying device.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.writeReg(PowerCtl, byte(Standby))
	d.power = Standby
	if err != nil {
		return fmt.Errorf("adxl345: halting: %w", err)
	}
	return nil
}

// SetODR requests an output data rate. The request is snapped to the
// nearest supported rate (ties toward the lower one) and the effective rate
// actually configured is returned. The device must be in standby.
func (d *Dev) SetODR(requested physic.Frequency) (physic.Frequency, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setODR(requested)
}

func (d *Dev) setODR(requested physic.Frequency) (physic.Frequency, error) {
	if requested <= 0 {
		return 0, ErrUnsupportedRate
	}
	if d.power != Standby {
		return 0, ErrNotStandby
	}
	code, effective := snapRate(requested)
	if err := d.writeReg(BwRate, code); err != nil {
		return 0, fmt.Errorf("adxl345: writing output data rate: %w", err)
	}
	d.odr = effective
	return effective, nil
}

// SetRange selects the full-scale measurement range. The device must be in
// standby.
func (d *Dev) SetRange(r Range) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setRange(r)
}

func (d *Dev) setRange(r Range) error {
	switch r {
	case R2G, R4G, R8G, R16G:
	default:
		return fmt.Errorf("adxl345: invalid range %d", byte(r))
	}
	if d.power != Standby {
		return ErrNotStandby
	}
	if err := d.writeReg(DataFormat, byte(r)); err != nil {
		return fmt.Errorf("adxl345: writing data format: %w", err)
	}
	d.rng = r
	return nil
}

// SetFIFO selects the FIFO mode and watermark level (0..31 entries). The
// write does not discard rows already buffered; use ClearFIFO when stale
// data must not leak into the next acquisition.
func (d *Dev) SetFIFO(mode FifoMode, watermark int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setFIFO(mode, watermark)
}

func (d *Dev) setFIFO(mode FifoMode, watermark int) error {
	if mode > FifoTrigger {
		return fmt.Errorf("adxl345: invalid fifo mode %d", byte(mode))
	}
	if watermark < 0 || watermark > 31 {
		return fmt.Errorf("adxl345: fifo watermark %d out of range 0..31", watermark)
	}
	if err := d.writeReg(FifoCtl, byte(mode)<<6|byte(watermark)); err != nil {
		return fmt.Errorf("adxl345: writing fifo control: %w", err)
	}
	d.fifo = mode
	d.watermark = watermark
	return nil
}

// ClearFIFO discards buffered rows by bouncing the FIFO through bypass and
// restoring the configured mode. A no-op in bypass mode.
func (d *Dev) ClearFIFO() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fifo == FifoBypass {
		return nil
	}
	if err := d.writeReg(FifoCtl, byte(FifoBypass)); err != nil {
		return fmt.Errorf("adxl345: clearing fifo: %w", err)
	}
	if err := d.writeReg(FifoCtl, byte(d.fifo)<<6|byte(d.watermark)); err != nil {
		return fmt.Errorf("adxl345: restoring fifo mode: %w", err)
	}
	return nil
}

// SetPowerMode switches between Standby and Measure. Entering Measure arms
// acquisition; returning to Standby makes the configuration registers
// writable again.
func (d *Dev) SetPowerMode(m PowerMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch m {
	case Standby, Measure:
	default:
		return fmt.Errorf("adxl345: invalid power mode %d", byte(m))
	}
	if err := d.writeReg(PowerCtl, byte(m)); err != nil {
		return fmt.Errorf("adxl345: writing power control: %w", err)
	}
	d.power = m
	return nil
}

// ODR returns the effective output data rate currently configured.
func (d *Dev) ODR() physic.Frequency {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.odr
}

// Range returns the configured full-scale measurement range.
func (d *Dev) Range() Range {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng
}

// FIFOMode returns the configured FIFO mode.
func (d *Dev) FIFOMode() FifoMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fifo
}

// PowerMode returns the cached power state.
func (d *Dev) PowerMode() PowerMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power
}

// DataReady reports whether a sample has arrived since the data registers
// were last read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.readReg(IntSource)
	if err != nil {
		return false, fmt.Errorf("adxl345: reading interrupt source: %w", err)
	}
	return st&dataReadyBit != 0, nil
}

// WatermarkReached reports whether the FIFO holds at least the configured
// watermark level of entries.
func (d *Dev) WatermarkReached() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.readReg(IntSource)
	if err != nil {
		return false, fmt.Errorf("adxl345: reading interrupt source: %w", err)
	}
	return st&watermarkBit != 0, nil
}

// FIFOEntryCount returns the number of sample rows currently buffered in
// the FIFO (0..32).
func (d *Dev) FIFOEntryCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fifoEntries()
}

func (d *Dev) fifoEntries() (int, error) {
	st, err := d.readReg(FifoStatus)
	if err != nil {
		return 0, fmt.Errorf("adxl345: reading fifo status: %w", err)
	}
	return int(st & fifoEntriesMask), nil
}

// readReg reads one register. Over SPI the first byte of the transaction
// carries the address with the read bit set; over I²C the address is
// written and one byte read back.
func (d *Dev) readReg(reg byte) (byte, error) {
	if d.i2cDev != nil {
		var r [1]byte
		if err := d.i2cDev.Tx([]byte{reg}, r[:]); err != nil {
			return 0, err
		}
		return r[0], nil
	}
	tx := []byte{reg | spiRead, 0}
	rx := make([]byte, len(tx))
	if err := d.spiConn.Tx(tx, rx); err != nil {
		return 0, err
	}
	return rx[1], nil
}

// writeReg writes one register.
func (d *Dev) writeReg(reg, value byte) error {
	if d.i2cDev != nil {
		return d.i2cDev.Tx([]byte{reg, value}, nil)
	}
	tx := []byte{reg, value}
	rx := make([]byte, len(tx))
	return d.spiConn.Tx(tx, rx)
}

// readBlock reads len(buf) consecutive registers starting at reg in a
// single bus transaction.
func (d *Dev) readBlock(reg byte, buf []byte) error {
	if d.i2cDev != nil {
		return d.i2cDev.Tx([]byte{reg}, buf)
	}
	tx := make([]byte, len(buf)+1)
	tx[0] = reg | spiRead | spiMultiByte
	rx := make([]byte, len(tx))
	if err := d.spiConn.Tx(tx, rx); err != nil {
		return err
	}
	copy(buf, rx[1:])
	return nil
}

var _ conn.Resource = &Dev{}
