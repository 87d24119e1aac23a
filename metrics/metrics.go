// Package metrics records block store operations.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives one call per block store operation.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordPut is called after each Put. size is the block length.
	RecordPut(d time.Duration, size int, err error)

	// RecordGet is called after each Get. size is zero on error.
	RecordGet(d time.Duration, size int, err error)

	// RecordHas is called after each Has.
	RecordHas(d time.Duration, found bool)

	// RecordLookup is called after each archive index probe. candidates is the
	// number of offsets whose summary matched.
	RecordLookup(candidates int, found bool)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordPut(time.Duration, int, error) {}
func (Noop) RecordGet(time.Duration, int, error) {}
func (Noop) RecordHas(time.Duration, bool)       {}
func (Noop) RecordLookup(int, bool)              {}

// OrNoop returns c, or Noop when c is nil.
func OrNoop(c Collector) Collector {
	if c == nil {
		return Noop{}
	}
	return c
}

// Basic keeps in-memory counters.
type Basic struct {
	Puts         atomic.Int64
	PutErrors    atomic.Int64
	PutBytes     atomic.Int64
	Gets         atomic.Int64
	GetErrors    atomic.Int64
	GetBytes     atomic.Int64
	Hases        atomic.Int64
	HasHits      atomic.Int64
	Lookups      atomic.Int64
	LookupMiss   atomic.Int64
	FalseMatches atomic.Int64
}

func (b *Basic) RecordPut(_ time.Duration, size int, err error) {
	b.Puts.Add(1)
	if err != nil {
		b.PutErrors.Add(1)
		return
	}
	b.PutBytes.Add(int64(size))
}

func (b *Basic) RecordGet(_ time.Duration, size int, err error) {
	b.Gets.Add(1)
	if err != nil {
		b.GetErrors.Add(1)
		return
	}
	b.GetBytes.Add(int64(size))
}

func (b *Basic) RecordHas(_ time.Duration, found bool) {
	b.Hases.Add(1)
	if found {
		b.HasHits.Add(1)
	}
}

// RecordLookup counts candidates that turned out not to be the requested CID
// as false matches.
func (b *Basic) RecordLookup(candidates int, found bool) {
	b.Lookups.Add(1)
	if !found {
		b.LookupMiss.Add(1)
	}
	fm := candidates
	if found {
		fm--
	}
	if fm > 0 {
		b.FalseMatches.Add(int64(fm))
	}
}
