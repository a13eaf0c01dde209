package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/waterwatch/dashboard/services/watcher/internal/models"
)

const weatherSource = "openweathermap"

// RoundCoord rounds v to the given number of decimals, half away from zero.
func RoundCoord(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

// KeyFor maps a record to its lookup cell and hour.
func KeyFor(r models.PendingRecord, precision int) models.LookupKey {
	return models.LookupKey{
		Lat:  RoundCoord(r.Latitude, precision),
		Lon:  RoundCoord(r.Longitude, precision),
		Hour: r.DeviceTime.UTC().Truncate(time.Hour),
	}
}

// GroupPending groups record ids by lookup key. Keys are returned in the
// order they were first seen.
func GroupPending(records []models.PendingRecord, precision int) ([]models.LookupKey, map[models.LookupKey][]int64) {
	keys := make([]models.LookupKey, 0)
	groups := make(map[models.LookupKey][]int64)
	for _, r := range records {
		k := KeyFor(r, precision)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], r.ID)
	}
	return keys, groups
}

// FormatWeather encodes a precipitation reading for the weather column.
func FormatWeather(mm float64) (string, error) {
	b, err := json.Marshal(models.WeatherPayload{PrecipitationMM: mm, Source: weatherSource})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BuildUpdates fans resolved lookups out to every record of their group.
// Keys without a result are left out so the records stay pending.
func BuildUpdates(keys []models.LookupKey, groups map[models.LookupKey][]int64, results map[models.LookupKey]float64) ([]models.WeatherUpdate, error) {
	updates := make([]models.WeatherUpdate, 0)
	for _, k := range keys {
		mm, ok := results[k]
		if !ok {
			continue
		}
		weather, err := FormatWeather(mm)
		if err != nil {
			return nil, err
		}
		for _, id := range groups[k] {
			updates = append(updates, models.WeatherUpdate{RecordID: id, Weather: weather})
		}
	}
	return updates, nil
}

// KeyString prints a lookup key for logging.
func KeyString(k models.LookupKey) string {
	return fmt.Sprintf("%.4f,%.4f@%s", k.Lat, k.Lon, k.Hour.Format(time.RFC3339))
}
