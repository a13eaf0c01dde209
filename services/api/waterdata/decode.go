package waterdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/waterwatch/dashboard/services/api/models"
	"github.com/waterwatch/dashboard/services/api/watercolor"
)

// ErrUnexpectedPayload is returned when the source does not answer with a
// JSON array of records.
var ErrUnexpectedPayload = errors.New("waterdata: unexpected payload, expected a JSON array")

// RecordError describes a single item that could not be mapped to a record.
type RecordError struct {
	Index int
	ID    int64
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (id=%d) skipped: %v", e.Index, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// DecodeReport counts what happened while decoding a page.
type DecodeReport struct {
	Total          int     `json:"total"`
	Accepted       int     `json:"accepted"`
	ColorFallbacks int     `json:"color_fallbacks"`
	Errors         []error `json:"-"`
}

// Rejected is the number of skipped items.
func (r DecodeReport) Rejected() int {
	return r.Total - r.Accepted
}

// rawRecord is the wire shape returned by the record API.
type rawRecord struct {
	ID             int64    `json:"id"`
	DeviceID       string   `json:"deviceID"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	DeviceDatetime string   `json:"device_datetime"`
	GMTDatetime    *string  `json:"gmt_datetime"`
	ImageURI       *string  `json:"imageURI"`
	Temperature    *float64 `json:"temperature"`
	WaterColor     *string  `json:"waterColor"`
	Weather        *string  `json:"weather"`
}

// DecodeRecords reads a JSON array of records. Items that cannot be mapped
// are skipped and reported; a body that is not an array fails as a whole.
func DecodeRecords(r io.Reader) ([]models.Record, DecodeReport, error) {
	var report DecodeReport
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, report, fmt.Errorf("%w: empty body", ErrUnexpectedPayload)
		}
		return nil, report, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, report, fmt.Errorf("%w: got %v", ErrUnexpectedPayload, tok)
	}

	records := make([]models.Record, 0)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, report, fmt.Errorf("decode error inside array: %w", err)
		}

		index := report.Total
		report.Total++

		var p rawRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			report.Errors = append(report.Errors, &RecordError{Index: index, Err: err})
			continue
		}

		rec, err := mapToRecord(p)
		if err != nil {
			report.Errors = append(report.Errors, &RecordError{Index: index, ID: p.ID, Err: err})
			continue
		}

		if _, ok := watercolor.ParseReport(rec.WaterColor); !ok {
			report.ColorFallbacks++
		}

		records = append(records, rec)
		report.Accepted++
	}

	if _, err := dec.Token(); err != nil {
		return nil, report, fmt.Errorf("decode closing token: %w", err)
	}

	return records, report, nil
}

func mapToRecord(p rawRecord) (models.Record, error) {
	if p.DeviceID == "" {
		return models.Record{}, errors.New("missing deviceID")
	}

	ts, err := models.ParseTimestamp(p.DeviceDatetime)
	if err != nil {
		return models.Record{}, err
	}

	rec := models.Record{
		ID:          p.ID,
		DeviceID:    p.DeviceID,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		DeviceTime:  ts,
		Temperature: p.Temperature,
	}

	if p.GMTDatetime != nil {
		if gmt, err := models.ParseTimestamp(*p.GMTDatetime); err == nil {
			rec.GMTTime = &gmt
		}
	}
	if p.ImageURI != nil {
		rec.ImageURI = *p.ImageURI
	}
	if p.WaterColor != nil {
		rec.WaterColor = *p.WaterColor
	}
	if p.Weather != nil {
		rec.Weather = *p.Weather
	}

	return rec, nil
}
