package models

import "time"

// PendingRecord is a stored observation whose weather has not been filled.
type PendingRecord struct {
	ID         int64
	DeviceID   string
	Latitude   float64
	Longitude  float64
	DeviceTime time.Time
}

// LookupKey identifies one weather lookup: a rounded grid cell and an hour.
// Records sharing a key share the lookup.
type LookupKey struct {
	Lat  float64
	Lon  float64
	Hour time.Time
}

// WeatherPayload is the JSON document stored in the weather column.
type WeatherPayload struct {
	PrecipitationMM float64 `json:"precipitation_mm"`
	Source          string  `json:"source"`
}

// WeatherUpdate is a weather value ready to be written to a record.
type WeatherUpdate struct {
	RecordID int64
	Weather  string
}
