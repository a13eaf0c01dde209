package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// Record is one sensor observation reported by a field device.
type Record struct {
	ID          int64      `json:"id"`
	DeviceID    string     `json:"deviceID"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	DeviceTime  time.Time  `json:"device_datetime"`
	GMTTime     *time.Time `json:"gmt_datetime,omitempty"`
	ImageURI    string     `json:"imageURI,omitempty"`
	Temperature *float64   `json:"temperature,omitempty"`
	WaterColor  string     `json:"waterColor,omitempty"`
	Weather     string     `json:"weather,omitempty"`
}

// Device holds the registered metadata of a physical device.
type Device struct {
	DeviceID        string     `json:"deviceID"`
	AccountOwner    string     `json:"accountOwner"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	LastOnline      *time.Time `json:"lastOnline,omitempty"`
	NearbyGeoCoords *string    `json:"nearbyGeoCoords,omitempty"`
	LastCleaned     *time.Time `json:"lastCleaned,omitempty"`
}

// TemperatureString prints the temperature for tooltips.
func (r Record) TemperatureString() string {
	if r.Temperature == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g", *r.Temperature)
}

// sqlLayout is the space separated form written by Postgres clients.
// Zoneless values are read as UTC.
const sqlLayout = "2006-01-02 15:04:05.999999999"

// ParseTimestamp parses a device reported timestamp into an absolute instant.
// ISO 8601 forms are accepted, plus the space separated SQL form.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := iso8601.ParseString(s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(sqlLayout, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %s", s)
}
