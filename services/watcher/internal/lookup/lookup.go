package lookup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/waterwatch/dashboard/services/watcher/internal/models"
)

// Fetcher returns the precipitation in millimeters at a position and time.
type Fetcher interface {
	At(ctx context.Context, lat, lon float64, t time.Time) (float64, error)
}

// Resolve performs one lookup per key with at most concurrency calls in
// flight. Failed lookups are logged and left out of the result.
func Resolve(ctx context.Context, f Fetcher, keys []models.LookupKey, concurrency int, timeout time.Duration, log *slog.Logger) map[models.LookupKey]float64 {
	var (
		mu      sync.Mutex
		results = make(map[models.LookupKey]float64, len(keys))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, k := range keys {
		g.Go(func() error {
			callCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			mm, err := f.At(callCtx, k.Lat, k.Lon, k.Hour)
			if err != nil {
				log.Warn("weather lookup failed", "lat", k.Lat, "lon", k.Lon, "hour", k.Hour, "err", err.Error())
				return nil
			}

			mu.Lock()
			results[k] = mm
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}
