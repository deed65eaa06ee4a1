// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package adxl345_test

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/adxl345"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Example captures a fixed burst of 256 samples over SPI and prints them in
// units of standard gravity.
func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Use spireg SPI port registry to find the first available SPI bus.
	p, err := spireg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	d, err := adxl345.New(p, &adxl345.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Halt()

	if err := d.SetPowerMode(adxl345.Measure); err != nil {
		log.Fatal(err)
	}
	samples, stamps, err := d.ReadBurst(256)
	if err != nil {
		log.Fatal(err)
	}
	xs, ys, zs := adxl345.ToG(samples, d.Range())
	for i := range samples {
		fmt.Printf("%s x=%+.3fg y=%+.3fg z=%+.3fg\n", stamps[i].Format(time.StampMicro), xs[i], ys[i], zs[i])
	}
}

// ExampleNewI2C records one second of vibration at 800Hz over I²C, using
// the on-device FIFO so no sample is lost to bus latency.
func ExampleNewI2C() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	b, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	d, err := adxl345.NewI2C(b, 0x53, &adxl345.Opts{
		Range: adxl345.R16G,
		ODR:   800 * physic.Hertz,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Halt()

	if err := d.SetFIFO(adxl345.FifoStream, 16); err != nil {
		log.Fatal(err)
	}
	if err := d.SetPowerMode(adxl345.Measure); err != nil {
		log.Fatal(err)
	}
	// Discard rows buffered before the window of interest.
	if err := d.ClearFIFO(); err != nil {
		log.Fatal(err)
	}
	samples, _, err := d.ReadContinuousFIFO(time.Second)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("captured %d samples\n", len(samples))
}

// ExampleDev_SetODR shows how rate requests snap to the device codebook.
func ExampleDev_SetODR() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	p, err := spireg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	d, err := adxl345.New(p, nil)
	if err != nil {
		log.Fatal(err)
	}
	// 250Hz is not a native rate; the driver configures the nearest one.
	effective, err := d.SetODR(250 * physic.Hertz)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("effective rate: %s\n", effective)
}
