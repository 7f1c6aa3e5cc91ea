// Package cache holds small in-process caches for rarely changing lookups.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache is a keyed cache of values of one type.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps registered caches on an interval until its context ends.
type Manager struct {
	caches []Cleaner
	done   chan struct{}
}

func NewManager(caches ...Cleaner) *Manager {
	return &Manager{caches: caches, done: make(chan struct{})}
}

func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// Start runs the sweep loop in the background. Wait blocks until it stops.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cleaned := 0
				for _, c := range m.caches {
					cleaned += c.CleanExpired()
				}
				if cleaned > 0 {
					slog.DebugContext(ctx, "Cache sweep", "expired", cleaned)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) Wait() {
	<-m.done
}
