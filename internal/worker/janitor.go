package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"conti/internal/bills"
	"conti/internal/storage"

	"github.com/robfig/cron/v3"
)

// Janitor runs the orphaned override sweep on a cron schedule.
type Janitor struct {
	store storage.Store
	cron  *cron.Cron

	mu   sync.Mutex
	runs int
}

func NewJanitor(store storage.Store) *Janitor {
	return &Janitor{store: store, cron: cron.New()}
}

// Schedule registers the sweep under a standard cron spec or descriptor
// such as "@daily".
func (j *Janitor) Schedule(ctx context.Context, spec string) error {
	_, err := j.cron.AddFunc(spec, func() {
		if _, err := j.RunOnce(ctx); err != nil {
			slog.ErrorContext(ctx, "Override sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule janitor %q: %w", spec, err)
	}
	slog.InfoContext(ctx, "Janitor scheduled", "schedule", spec)
	return nil
}

// RunOnce sweeps immediately and returns the number of removed overrides.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	removed, err := bills.SweepOrphans(ctx, j.store)
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	return removed, err
}

// Runs reports how many sweeps have completed.
func (j *Janitor) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
