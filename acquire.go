// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adxl345

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Sample is one raw accelerometer reading: a twos-complement count per axis
// at the scale of the range configured when it was captured.
type Sample struct {
	X, Y, Z int16
}

func (s Sample) String() string {
	return fmt.Sprintf("X:%d Y:%d Z:%d", s.X, s.Y, s.Z)
}

// RawToG converts one raw axis count to units of standard gravity using the
// scale factor of the given range.
func RawToG(raw int16, r Range) float64 {
	return float64(raw) * r.scale()
}

// ToG converts an acquisition buffer to per-axis slices in units of
// standard gravity.
func ToG(samples []Sample, r Range) (xs, ys, zs []float64) {
	scale := r.scale()
	xs = make([]float64, len(samples))
	ys = make([]float64, len(samples))
	zs = make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = float64(s.X) * scale
		ys[i] = float64(s.Y) * scale
		zs[i] = float64(s.Z) * scale
	}
	return xs, ys, zs
}

// bufferMargin sizes an estimate-driven buffer with headroom for polling
// jitter, matching the 1.5x the acquisition loops historically used.
func bufferMargin(nominal int) int {
	return nominal + nominal/2 + 1
}

// pollWindow bounds a single data-ready wait. Four sampling periods covers
// ODR start-up latency; the floor keeps the fastest rates from tripping on
// scheduler hiccups.
func (d *Dev) pollWindow() time.Duration {
	w := 4 * d.odr.Period()
	if w < 10*time.Millisecond {
		w = 10 * time.Millisecond
	}
	return w
}

// waitDataReady spins on INT_SOURCE until the data-ready bit is set or the
// deadline passes. A false return with nil error means the deadline won.
func (d *Dev) waitDataReady(deadline time.Time) (bool, error) {
	for {
		st, err := d.readReg(IntSource)
		if err != nil {
			return false, fmt.Errorf("adxl345: reading interrupt source: %w", err)
		}
		if st&dataReadyBit != 0 {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

// readRow fetches the six data registers in one transaction and decodes the
// three little-endian axis counts.
func (d *Dev) readRow() (Sample, error) {
	var buf [rowSize]byte
	if err := d.readBlock(DataX0, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("adxl345: reading sample registers: %w", err)
	}
	return Sample{
		X: int16(binary.LittleEndian.Uint16(buf[0:2])),
		Y: int16(binary.LittleEndian.Uint16(buf[2:4])),
		Z: int16(binary.LittleEndian.Uint16(buf[4:6])),
	}, nil
}

// stampAfter returns the current monotonic time, nudged forward when the
// clock granularity would repeat the previous stamp. Keeps timestamp series
// strictly increasing.
func stampAfter(prev time.Time) time.Time {
	t := time.Now()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}

// ClearDataReady discards one sample row so the data-ready latch reflects
// only samples captured after this call. Useful right before a timed loop.
func (d *Dev) ClearDataReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.readRow()
	return err
}

// ReadSample waits for the next data-ready event and returns one raw
// sample. The device must be in measurement mode.
func (d *Dev) ReadSample() (Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.power != Measure {
		return Sample{}, ErrNotMeasuring
	}
	ready, err := d.waitDataReady(time.Now().Add(d.pollWindow()))
	if err != nil {
		return Sample{}, err
	}
	if !ready {
		return Sample{}, ErrTimeout
	}
	return d.readRow()
}

// ReadBurst captures exactly n samples, waiting for the device's data-ready
// condition before each row read. It returns the samples and one strictly
// increasing timestamp per sample. The device must be in measurement mode.
func (d *Dev) ReadBurst(n int) ([]Sample, []time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 {
		return nil, nil, fmt.Errorf("adxl345: sample count %d must be positive", n)
	}
	if d.power != Measure {
		return nil, nil, ErrNotMeasuring
	}
	if n > d.maxSamples {
		return nil, nil, ErrCapacity
	}
	samples := make([]Sample, 0, n)
	stamps := make([]time.Time, 0, n)
	window := d.pollWindow()
	var prev time.Time
	for len(samples) < n {
		ready, err := d.waitDataReady(time.Now().Add(window))
		if err != nil {
			return nil, nil, err
		}
		if !ready {
			return nil, nil, ErrTimeout
		}
		s, err := d.readRow()
		if err != nil {
			return nil, nil, err
		}
		prev = stampAfter(prev)
		samples = append(samples, s)
		stamps = append(stamps, prev)
	}
	return samples, stamps, nil
}

// ReadContinuous polls samples until the wall-clock window elapses. The
// returned count approximates window × ODR; it varies with polling jitter,
// so the buffer is pre-sized with margin and the actual length returned.
// The device must be in measurement mode.
func (d *Dev) ReadContinuous(window time.Duration) ([]Sample, []time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	capacity, err := d.continuousCapacity(window)
	if err != nil {
		return nil, nil, err
	}
	samples := make([]Sample, 0, capacity)
	stamps := make([]time.Time, 0, capacity)
	poll := d.pollWindow()
	end := time.Now().Add(window)
	var prev time.Time
	for len(samples) < capacity {
		now := time.Now()
		if !now.Before(end) {
			break
		}
		deadline := now.Add(poll)
		if deadline.After(end) {
			deadline = end
		}
		ready, err := d.waitDataReady(deadline)
		if err != nil {
			return nil, nil, err
		}
		if !ready {
			if !time.Now().Before(end) {
				break
			}
			// A full poll window expired with time left in the acquisition:
			// the device stalled, not the clock.
			return nil, nil, ErrTimeout
		}
		s, err := d.readRow()
		if err != nil {
			return nil, nil, err
		}
		prev = stampAfter(prev)
		samples = append(samples, s)
		stamps = append(stamps, prev)
	}
	return samples, stamps, nil
}

// ReadContinuousFIFO drains the on-device FIFO until the wall-clock window
// elapses. Rows are always fetched one bus transaction at a time: batched
// multi-row FIFO reads degrade into reads past the FIFO registers on this
// device family and are never issued. The FIFO must be in a buffering mode
// and the device in measurement mode; buffered rows captured before the
// call are included unless ClearFIFO was used first.
func (d *Dev) ReadContinuousFIFO(window time.Duration) ([]Sample, []time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fifo != FifoFIFO && d.fifo != FifoStream {
		if d.power != Measure {
			return nil, nil, ErrNotMeasuring
		}
		return nil, nil, ErrFIFODisabled
	}
	capacity, err := d.continuousCapacity(window)
	if err != nil {
		return nil, nil, err
	}
	samples := make([]Sample, 0, capacity)
	stamps := make([]time.Time, 0, capacity)
	poll := d.pollWindow()
	start := time.Now()
	end := start.Add(window)
	lastRow := start
	var prev time.Time
	for len(samples) < capacity && time.Now().Before(end) {
		entries, err := d.fifoEntries()
		if err != nil {
			return nil, nil, err
		}
		if entries == 0 {
			if time.Since(lastRow) > poll {
				return nil, nil, ErrTimeout
			}
			continue
		}
		for i := 0; i < entries && len(samples) < capacity; i++ {
			s, err := d.readRow()
			if err != nil {
				return nil, nil, err
			}
			prev = stampAfter(prev)
			samples = append(samples, s)
			stamps = append(stamps, prev)
			lastRow = prev
			if !time.Now().Before(end) {
				break
			}
		}
	}
	return samples, stamps, nil
}

// continuousCapacity validates a timed acquisition and returns the
// margin-sized buffer capacity, bounded by the sample ceiling.
func (d *Dev) continuousCapacity(window time.Duration) (int, error) {
	if window <= 0 {
		return 0, fmt.Errorf("adxl345: acquisition window %s must be positive", window)
	}
	if d.power != Measure {
		return 0, ErrNotMeasuring
	}
	nominal := int(int64(window) / int64(d.odr.Period()))
	if nominal < 1 {
		nominal = 1
	}
	if nominal > d.maxSamples {
		return 0, ErrCapacity
	}
	capacity := bufferMargin(nominal)
	if capacity > d.maxSamples {
		capacity = d.maxSamples
	}
	return capacity, nil
}
