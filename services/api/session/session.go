// Package session holds the in-memory dashboard state: per-device record
// streams, the flattened global index and pagination progress.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/waterwatch/dashboard/services/api/aligner"
	"github.com/waterwatch/dashboard/services/api/models"
	"github.com/waterwatch/dashboard/services/api/watercolor"
)

// ErrIndexOutOfRange is returned for a global index outside the timeline.
var ErrIndexOutOfRange = errors.New("session: time index out of range")

// Page is one batch delivered by the record source.
type Page struct {
	Offset int
	// Size is the number of items the source returned, including items
	// that failed to decode.
	Size    int
	Records []models.Record
}

// Timeline summarizes the global index for the scrub control.
type Timeline struct {
	Count      int      `json:"count"`
	MaxIndex   int      `json:"max_index"`
	NextOffset int      `json:"next_offset"`
	HasNext    bool     `json:"has_next"`
	Devices    []string `json:"devices"`
}

// Entry is the aligned state of one device. Record is nil when the device
// has no record within tolerance.
type Entry struct {
	DeviceID string            `json:"device_id"`
	Record   *models.Record    `json:"record"`
	Color    *watercolor.Color `json:"color,omitempty"`
}

// Frame is a synchronized cross-device snapshot for a global index.
type Frame struct {
	Index     int       `json:"index"`
	Reference time.Time `json:"reference"`
	Entries   []Entry   `json:"entries"`
}

// Present returns the entries that resolved to a record.
func (f Frame) Present() []Entry {
	out := make([]Entry, 0, len(f.Entries))
	for _, e := range f.Entries {
		if e.Record != nil {
			out = append(out, e)
		}
	}
	return out
}

// Session is safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	pageSize   int
	order      []string
	streams    map[string][]models.Record
	global     []models.Record
	nextOffset int
	exhausted  bool
}

// New creates an empty session for a source delivering pageSize items per page.
func New(pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Session{
		pageSize: pageSize,
		streams:  make(map[string][]models.Record),
	}
}

// PageSize is the configured batch size.
func (s *Session) PageSize() int {
	return s.pageSize
}

// NextOffset is the offset of the first page not merged yet.
func (s *Session) NextOffset() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextOffset
}

// Exhausted reports whether the source signalled end of data.
func (s *Session) Exhausted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exhausted
}

// Ingest merges a page into the device streams and rebuilds the global index.
func (s *Session) Ingest(p Page) Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, r := range p.Records {
		if _, ok := s.streams[r.DeviceID]; !ok {
			s.order = append(s.order, r.DeviceID)
		}
		s.streams[r.DeviceID] = append(s.streams[r.DeviceID], r)
		touched[r.DeviceID] = struct{}{}
	}

	for id := range touched {
		sortDescending(s.streams[id])
	}

	global := make([]models.Record, 0, len(s.global)+len(p.Records))
	for _, id := range s.order {
		global = append(global, s.streams[id]...)
	}
	sortDescending(global)
	s.global = global

	if end := p.Offset + s.pageSize; end > s.nextOffset {
		s.nextOffset = end
	}
	if p.Size < s.pageSize {
		s.exhausted = true
	}

	return s.timelineLocked()
}

// Timeline returns the current scrub control bounds.
func (s *Session) Timeline() Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timelineLocked()
}

func (s *Session) timelineLocked() Timeline {
	devices := make([]string, len(s.order))
	copy(devices, s.order)
	return Timeline{
		Count:      len(s.global),
		MaxIndex:   len(s.global) - 1,
		NextOffset: s.nextOffset,
		HasNext:    !s.exhausted,
		Devices:    devices,
	}
}

// RecordAt returns the global index entry at index.
func (s *Session) RecordAt(index int) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.global) {
		return models.Record{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return s.global[index], nil
}

// Stream returns a copy of the sorted records of one device.
func (s *Session) Stream(deviceID string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[deviceID]
	out := make([]models.Record, len(stream))
	copy(out, stream)
	return out
}

// Snapshot aligns every device stream to the timestamp of the global record
// at index.
func (s *Session) Snapshot(index int, a *aligner.Aligner) (Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.global) {
		return Frame{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	ref := s.global[index].DeviceTime
	frame := Frame{
		Index:     index,
		Reference: ref,
		Entries:   make([]Entry, 0, len(s.order)),
	}

	for _, id := range s.order {
		entry := Entry{DeviceID: id}
		r, ok, err := a.ClosestInStream(ref, s.streams[id])
		if err != nil && !errors.Is(err, aligner.ErrEmptyInput) {
			return Frame{}, err
		}
		if ok {
			c := watercolor.Parse(r.WaterColor)
			entry.Record = &r
			entry.Color = &c
		}
		frame.Entries = append(frame.Entries, entry)
	}

	return frame, nil
}

func sortDescending(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DeviceTime.After(records[j].DeviceTime)
	})
}
