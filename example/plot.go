// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package example records a vibration capture and renders it as a PNG
// waveform, one trace per axis.
package example

import (
	"fmt"
	"log"
	"time"

	"github.com/fogleman/gg"
	"periph.io/x/adxl345"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	plotWidth  = 800
	plotHeight = 300
)

// Example captures one second of acceleration at 400Hz and writes the
// waveform to capture.png.
func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	p, err := spireg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	d, err := adxl345.New(p, &adxl345.Opts{
		Range: adxl345.R4G,
		ODR:   400 * physic.Hertz,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Halt()

	if err := d.SetPowerMode(adxl345.Measure); err != nil {
		log.Fatal(err)
	}
	samples, _, err := d.ReadContinuous(time.Second)
	if err != nil {
		log.Fatal(err)
	}
	xs, ys, zs := adxl345.ToG(samples, d.Range())

	if err := renderWaveform("capture.png", d.Range(), xs, ys, zs); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("plotted %d samples to capture.png\n", len(samples))
}

// renderWaveform draws the three axis traces over the full plot width, with
// the vertical scale spanning the configured range.
func renderWaveform(path string, r adxl345.Range, traces ...[]float64) error {
	fullScale := adxl345.RawToG(512, r)
	dc := gg.NewContext(plotWidth, plotHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// Zero-g midline.
	dc.SetRGB(0.8, 0.8, 0.8)
	dc.SetLineWidth(1)
	dc.DrawLine(0, plotHeight/2, plotWidth, plotHeight/2)
	dc.Stroke()

	colors := [][3]float64{{0.8, 0.1, 0.1}, {0.1, 0.6, 0.1}, {0.1, 0.1, 0.8}}
	for i, trace := range traces {
		if len(trace) < 2 {
			continue
		}
		c := colors[i%len(colors)]
		dc.SetRGB(c[0], c[1], c[2])
		for j, g := range trace {
			px := float64(j) / float64(len(trace)-1) * plotWidth
			py := (1 - g/fullScale) * plotHeight / 2
			if j == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
		dc.Stroke()
	}
	return dc.SavePNG(path)
}
