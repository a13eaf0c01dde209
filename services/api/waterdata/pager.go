package waterdata

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/waterwatch/dashboard/services/api/metrics"
	"github.com/waterwatch/dashboard/services/api/session"
)

// ErrSuperseded is returned to a page request that was replaced by a newer
// one before it completed. Its result is discarded.
var ErrSuperseded = errors.New("waterdata: page request superseded")

// PageFetcher retrieves one page of records.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset int) (session.Page, DecodeReport, error)
}

// Pager drives pagination for a session. Only the latest request may merge
// its page; starting a request cancels the one in flight.
type Pager struct {
	fetcher PageFetcher
	session *session.Session
	log     *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewPager(fetcher PageFetcher, s *session.Session, log *slog.Logger) *Pager {
	if log == nil {
		log = slog.Default()
	}
	return &Pager{fetcher: fetcher, session: s, log: log}
}

// Load fetches the first page unless the session already has data.
func (p *Pager) Load(ctx context.Context) (session.Timeline, error) {
	if p.session.NextOffset() > 0 || p.session.Exhausted() {
		return p.session.Timeline(), nil
	}
	return p.Next(ctx)
}

// Next fetches the page following the last merged one and merges it into
// the session. The offset only advances once a page is merged, so a
// superseded request is simply repeated by its successor.
func (p *Pager) Next(ctx context.Context) (session.Timeline, error) {
	if p.session.Exhausted() {
		return p.session.Timeline(), nil
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.gen++
	gen := p.gen
	p.cancel = cancel
	offset := p.session.NextOffset()
	p.mu.Unlock()
	defer cancel()

	page, report, err := p.fetcher.FetchPage(ctx, offset)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		metrics.PagesFetched.WithLabelValues("superseded").Inc()
		p.log.Debug("discarding superseded page", "offset", offset)
		return p.session.Timeline(), ErrSuperseded
	}
	p.cancel = nil

	if err != nil {
		metrics.PagesFetched.WithLabelValues("error").Inc()
		p.log.Error("failed to fetch records", "offset", offset, "err", err.Error())
		return p.session.Timeline(), err
	}

	metrics.PagesFetched.WithLabelValues("ok").Inc()
	metrics.RecordsIngested.Add(float64(len(page.Records)))
	metrics.RecordsRejected.Add(float64(report.Rejected()))
	metrics.ColorFallbacks.Add(float64(report.ColorFallbacks))

	tl := p.session.Ingest(page)
	p.log.Info("merged record page",
		"offset", offset,
		"received", report.Total,
		"accepted", report.Accepted,
		"count", tl.Count,
		"has_next", tl.HasNext)

	return tl, nil
}
