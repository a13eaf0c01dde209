// Package weather reads precipitation from the OpenWeatherMap One Call API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/waterwatch/dashboard/services/api/metrics"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/3.0/onecall"

const (
	kmLatitudeDegrees = 1 / 110.574
	kmLongitudeFactor = 111.32
	areaConcurrency   = 4
)

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Sample is the precipitation observed at a point, in millimeters.
type Sample struct {
	Point
	PrecipitationMM float64 `json:"precipitation_mm"`
}

// Area is the precipitation sampled around a center point.
type Area struct {
	Center  Point    `json:"center"`
	Samples []Sample `json:"samples"`
	Average float64  `json:"average_mm"`
}

// Client talks to the One Call endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	keys    KeySource
	log     *slog.Logger
}

func NewClient(httpClient *http.Client, baseURL string, keys KeySource, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		keys:    keys,
		log:     log,
	}
}

type rain struct {
	OneHour float64 `json:"1h"`
}

type currentResponse struct {
	Current struct {
		Rain *rain `json:"rain"`
	} `json:"current"`
}

type timemachineResponse struct {
	Data []struct {
		Dt   int64 `json:"dt"`
		Rain *rain `json:"rain"`
	} `json:"data"`
}

// Current returns the precipitation of the last hour at lat/lon, 0 when the
// provider reports none.
func (c *Client) Current(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("exclude", "minutely,hourly,daily,alerts")

	var payload currentResponse
	err := c.get(ctx, c.baseURL, lat, lon, q, &payload)
	metrics.WeatherRequests.WithLabelValues("current", metrics.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}

	if payload.Current.Rain == nil {
		return 0, nil
	}
	return payload.Current.Rain.OneHour, nil
}

// At returns the one hour precipitation at lat/lon around t.
func (c *Client) At(ctx context.Context, lat, lon float64, t time.Time) (float64, error) {
	q := url.Values{}
	q.Set("dt", strconv.FormatInt(t.Unix(), 10))

	var payload timemachineResponse
	err := c.get(ctx, c.baseURL+"/timemachine", lat, lon, q, &payload)
	metrics.WeatherRequests.WithLabelValues("timemachine", metrics.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}

	if len(payload.Data) == 0 || payload.Data[0].Rain == nil {
		return 0, nil
	}
	return payload.Data[0].Rain.OneHour, nil
}

func (c *Client) get(ctx context.Context, endpoint string, lat, lon float64, q url.Values, out any) error {
	key, err := c.keys.Key(ctx)
	if err != nil {
		return err
	}

	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("weather: unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode weather payload: %w", err)
	}
	return nil
}

// NearbyPoints returns eight points roughly one kilometer around lat/lon:
// N, S, E, W, NE, NW, SE, SW.
func NearbyPoints(lat, lon float64) []Point {
	dLat := kmLatitudeDegrees
	dLon := 1 / (kmLongitudeFactor * math.Cos(lat*math.Pi/180))

	return []Point{
		{Lat: lat + dLat, Lon: lon},
		{Lat: lat - dLat, Lon: lon},
		{Lat: lat, Lon: lon + dLon},
		{Lat: lat, Lon: lon - dLon},
		{Lat: lat + dLat, Lon: lon + dLon},
		{Lat: lat + dLat, Lon: lon - dLon},
		{Lat: lat - dLat, Lon: lon + dLon},
		{Lat: lat - dLat, Lon: lon - dLon},
	}
}

// Area samples the current precipitation around lat/lon. Points that fail
// are logged and left out of the average; it fails only when all do.
func (c *Client) Area(ctx context.Context, lat, lon float64) (Area, error) {
	points := NearbyPoints(lat, lon)
	results := make([]*Sample, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(areaConcurrency)

	for i, p := range points {
		g.Go(func() error {
			mm, err := c.Current(gctx, p.Lat, p.Lon)
			if err != nil {
				c.log.Warn("precipitation sample failed", "lat", p.Lat, "lon", p.Lon, "err", err.Error())
				return nil
			}
			results[i] = &Sample{Point: p, PrecipitationMM: mm}
			return nil
		})
	}
	_ = g.Wait()

	area := Area{Center: Point{Lat: lat, Lon: lon}, Samples: make([]Sample, 0, len(points))}
	var total float64
	for _, s := range results {
		if s == nil {
			continue
		}
		area.Samples = append(area.Samples, *s)
		total += s.PrecipitationMM
	}

	if len(area.Samples) == 0 {
		return Area{}, fmt.Errorf("weather: no precipitation samples around %.4f,%.4f", lat, lon)
	}
	area.Average = total / float64(len(area.Samples))
	return area, nil
}
