// Package render turns aligned frames and precipitation samples into map
// shapes through a Renderer.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/waterwatch/dashboard/services/api/metrics"
	"github.com/waterwatch/dashboard/services/api/session"
	"github.com/waterwatch/dashboard/services/api/watercolor"
	"github.com/waterwatch/dashboard/services/api/weather"
)

// LatLon is a map position.
type LatLon struct {
	Lat float64
	Lon float64
}

// Marker is a circle placed on the map.
type Marker struct {
	Position    LatLon
	Radius      float64
	FillColor   string
	FillOpacity float64
	Color       string
	Weight      float64
	Tooltip     string
	Link        string
	Layer       string
}

// Line connects two positions.
type Line struct {
	From    LatLon
	To      LatLon
	Color   string
	Width   float64
	Opacity float64
	Layer   string
}

// Renderer is the drawing surface the dashboard writes to.
type Renderer interface {
	PlaceMarker(m Marker)
	DrawLine(l Line)
	Clear()
}

// FrameOptions controls how a frame is drawn.
type FrameOptions struct {
	ShowDetails bool
	AlphaScale  float64
}

const (
	layerDevices       = "devices"
	layerPrecipitation = "precipitation"
)

// DrawFrame clears r and draws one marker per device with a record, joined
// in device order by lines colored with the midpoint of their water colors.
// Devices without a record are skipped.
func DrawFrame(r Renderer, frame session.Frame, opts FrameOptions) {
	r.Clear()

	var prev *session.Entry
	for _, e := range frame.Entries {
		if e.Record == nil {
			metrics.AlignmentMisses.Inc()
			continue
		}

		color := watercolor.Default
		if e.Color != nil {
			color = *e.Color
		}

		m := Marker{
			Position:    LatLon{Lat: e.Record.Latitude, Lon: e.Record.Longitude},
			Radius:      8,
			FillColor:   color.CSS(opts.AlphaScale),
			FillOpacity: 0.8,
			Color:       "#000",
			Weight:      1,
			Link:        e.Record.ImageURI,
			Layer:       layerDevices,
		}
		if opts.ShowDetails {
			m.Tooltip = tooltip(e, color)
		}
		r.PlaceMarker(m)

		if prev != nil {
			prevColor := watercolor.Default
			if prev.Color != nil {
				prevColor = *prev.Color
			}
			r.DrawLine(Line{
				From:    LatLon{Lat: prev.Record.Latitude, Lon: prev.Record.Longitude},
				To:      m.Position,
				Color:   watercolor.Midpoint(prevColor.RGB(), color.RGB()).String(),
				Width:   4,
				Opacity: 0.8,
				Layer:   layerDevices,
			})
		}

		entry := e
		prev = &entry
	}
}

func tooltip(e session.Entry, c watercolor.Color) string {
	rec := e.Record
	return fmt.Sprintf(
		"<b>Device ID:</b> %s<br>"+
			"<b>Latitude:</b> %g<br>"+
			"<b>Longitude:</b> %g<br>"+
			"<b>Date:</b> %s<br>"+
			"<b>Temperature:</b> %s<br>"+
			"<b>Water Color:</b> %s",
		rec.DeviceID, rec.Latitude, rec.Longitude,
		rec.DeviceTime.Format(time.RFC3339), rec.TemperatureString(), c.String())
}

// precipitationRadius scales the marker with the amount, capped at 20.
func precipitationRadius(mm float64) float64 {
	if mm <= 0 {
		return 5
	}
	return math.Min(20, mm*2)
}

// DrawPrecipitation draws every sample and the area average. It does not
// clear r, so it can overlay a frame.
func DrawPrecipitation(r Renderer, area weather.Area) {
	for _, s := range area.Samples {
		color := "gray"
		if s.PrecipitationMM > 0 {
			color = "blue"
		}
		r.PlaceMarker(Marker{
			Position:    LatLon{Lat: s.Lat, Lon: s.Lon},
			Radius:      precipitationRadius(s.PrecipitationMM),
			Color:       color,
			FillColor:   color,
			FillOpacity: 0.5,
			Tooltip:     fmt.Sprintf("%.2f mm", s.PrecipitationMM),
			Layer:       layerPrecipitation,
		})
	}

	color := "gray"
	if area.Average > 0 {
		color = "darkblue"
	}
	r.PlaceMarker(Marker{
		Position:    LatLon{Lat: area.Center.Lat, Lon: area.Center.Lon},
		Radius:      precipitationRadius(area.Average),
		Color:       color,
		FillColor:   color,
		FillOpacity: 0.7,
		Tooltip:     fmt.Sprintf("Average Precipitation: %.2f mm", area.Average),
		Layer:       layerPrecipitation,
	})
}

// DrawPrecipitationAt draws a single reading for a recorded position.
func DrawPrecipitationAt(r Renderer, p weather.Sample) {
	r.PlaceMarker(Marker{
		Position:    LatLon{Lat: p.Lat, Lon: p.Lon},
		Radius:      math.Min(20, p.PrecipitationMM*2),
		Color:       "blue",
		FillColor:   "blue",
		FillOpacity: 0.5,
		Tooltip:     fmt.Sprintf("%.2f mm", p.PrecipitationMM),
		Layer:       layerPrecipitation,
	})
}
