// Package watercolor decodes and blends the water color reported by devices.
//
// Devices send the color as a JSON-like object quoted with single quotes,
// for example {'r': 12, 'g': 80, 'b': 91, 'a': 40}.
package watercolor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultAlphaScale is the value of A that means fully opaque.
const DefaultAlphaScale = 100

// Default is used whenever a color cannot be decoded.
var Default = Color{R: 0, G: 0, B: 0, A: 100}

var errMissingChannel = errors.New("missing color channel")

// Color is a decoded water color with an intensity channel.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	A int `json:"a"`
}

// RGB is a color without intensity.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type wireColor struct {
	R *float64 `json:"r"`
	G *float64 `json:"g"`
	B *float64 `json:"b"`
	A *float64 `json:"a"`
}

// Decode parses a single-quoted color string.
func Decode(s string) (Color, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), "'", `"`)
	if !strings.HasPrefix(normalized, "{") {
		return Color{}, fmt.Errorf("decode water color %q: not an object", s)
	}

	var w wireColor
	if err := json.Unmarshal([]byte(normalized), &w); err != nil {
		return Color{}, fmt.Errorf("decode water color %q: %w", s, err)
	}
	if w.R == nil || w.G == nil || w.B == nil {
		return Color{}, fmt.Errorf("decode water color %q: %w", s, errMissingChannel)
	}

	c := Color{R: round(*w.R), G: round(*w.G), B: round(*w.B), A: Default.A}
	if w.A != nil {
		c.A = round(*w.A)
	}
	return c, nil
}

// Parse is Decode that falls back to Default on malformed input.
func Parse(s string) Color {
	c, err := Decode(s)
	if err != nil {
		return Default
	}
	return c
}

// ParseReport is Parse that also reports whether the fallback was used.
func ParseReport(s string) (Color, bool) {
	c, err := Decode(s)
	if err != nil {
		return Default, false
	}
	return c, true
}

// Encode renders c in the single-quoted wire form.
func Encode(c Color) string {
	return fmt.Sprintf("{'r': %d, 'g': %d, 'b': %d, 'a': %d}", c.R, c.G, c.B, c.A)
}

// RGB drops the intensity channel.
func (c Color) RGB() RGB {
	return RGB{R: c.R, G: c.G, B: c.B}
}

// String prints the raw channels as reported.
func (c Color) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %d)", c.R, c.G, c.B, c.A)
}

// CSS composes a CSS rgba() color, mapping A onto [0,1] using alphaScale.
func (c Color) CSS(alphaScale float64) string {
	if alphaScale <= 0 {
		alphaScale = DefaultAlphaScale
	}
	alpha := math.Max(0, math.Min(1, float64(c.A)/alphaScale))
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, strconv.FormatFloat(alpha, 'f', -1, 64))
}

func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// Interpolate blends two colors linearly; factor 0 yields a, 1 yields b.
// Channels are rounded half up.
func Interpolate(a, b RGB, factor float64) RGB {
	mix := func(x, y int) int {
		return round(float64(x) + factor*float64(y-x))
	}
	return RGB{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B)}
}

// Midpoint is Interpolate at factor 0.5.
func Midpoint(a, b RGB) RGB {
	return Interpolate(a, b, 0.5)
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
