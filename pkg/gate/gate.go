// Package gate bounds how many inspection tasks hold a session at once.
package gate

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultLimit = 100

// Gate is a counting admission control. Slots are handed out by Acquire and
// returned by Slot.Release.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New returns a gate admitting at most limit holders; limit <= 0 means DefaultLimit.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
}

// Slot is one unit of admission. Release returns it exactly once, later
// calls are no-ops.
type Slot struct {
	g    *Gate
	once sync.Once
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return &Slot{g: g}, nil
}

func (s *Slot) Release() {
	s.once.Do(func() {
		s.g.inFlight.Add(-1)
		s.g.sem.Release(1)
	})
}

func (g *Gate) Limit() int { return int(g.limit) }

// InFlight is the number of slots currently held.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Peak is the highest InFlight observed since the gate was created.
func (g *Gate) Peak() int { return int(g.peak.Load()) }
