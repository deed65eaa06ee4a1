// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package adxl345 controls an ADXL345 3-axis accelerometer over SPI or I²C.
//
// Beyond single readings, the package implements timed sample acquisition:
// fixed-count bursts, wall-clock-bounded polling, and draining the on-device
// FIFO, each returning the raw samples together with per-sample timestamps.
// Raw readings are converted to units of standard gravity with the scale
// factor of the configured measurement range.
//
// The device's configuration registers (output data rate, range) are only
// writable while it is in standby; the driver enforces that ordering and
// reports violations instead of issuing the write.
//
// # Datasheet
//
// http://www.analog.com/media/en/technical-documentation/data-sheets/ADXL345.pdf
package adxl345
