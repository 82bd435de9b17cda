package geo

import (
	"context"
	"time"
)

// StaticWatcher emits a fixed position at a steady interval. It stands in
// for device hardware on hosts without a geolocation provider.
type StaticWatcher struct {
	Position Point
	Interval time.Duration
}

var _ Watcher = (*StaticWatcher)(nil)

func (w *StaticWatcher) Watch(ctx context.Context) (<-chan Sample, <-chan error, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}

	samples := make(chan Sample)
	errs := make(chan error, 1)

	go func() {
		defer close(samples)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		emit := func() bool {
			select {
			case samples <- Sample{Point: w.Position, At: time.Now().UTC()}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ticker.C:
				if !emit() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return samples, errs, nil
}
