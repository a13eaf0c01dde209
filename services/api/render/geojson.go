package render

import "sync"

// Geometry is a GeoJSON geometry. Coordinates are [lon, lat].
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is the GeoJSON document served to the map client.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// GeoJSON is a Renderer that records shapes as GeoJSON features.
type GeoJSON struct {
	mu       sync.Mutex
	features []Feature
}

func NewGeoJSON() *GeoJSON {
	return &GeoJSON{features: make([]Feature, 0)}
}

func (g *GeoJSON) PlaceMarker(m Marker) {
	props := map[string]any{
		"shape":        "circle",
		"layer":        m.Layer,
		"radius":       m.Radius,
		"fill_color":   m.FillColor,
		"fill_opacity": m.FillOpacity,
		"color":        m.Color,
		"weight":       m.Weight,
	}
	if m.Tooltip != "" {
		props["tooltip"] = m.Tooltip
	}
	if m.Link != "" {
		props["link"] = m.Link
	}

	g.add(Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "Point",
			Coordinates: []float64{m.Position.Lon, m.Position.Lat},
		},
		Properties: props,
	})
}

func (g *GeoJSON) DrawLine(l Line) {
	g.add(Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type: "LineString",
			Coordinates: [][]float64{
				{l.From.Lon, l.From.Lat},
				{l.To.Lon, l.To.Lat},
			},
		},
		Properties: map[string]any{
			"shape":   "line",
			"layer":   l.Layer,
			"color":   l.Color,
			"weight":  l.Width,
			"opacity": l.Opacity,
		},
	})
}

func (g *GeoJSON) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.features = g.features[:0]
}

func (g *GeoJSON) add(f Feature) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.features = append(g.features, f)
}

// Collection returns a snapshot of the drawn features.
func (g *GeoJSON) Collection() FeatureCollection {
	g.mu.Lock()
	defer g.mu.Unlock()
	features := make([]Feature, len(g.features))
	copy(features, g.features)
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
