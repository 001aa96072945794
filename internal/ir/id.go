package ir

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces entity ids at write time.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// UUIDv7 puts a 48-bit millisecond timestamp in the most significant bits
// and random bits in the rest, so ids sort by creation time and two writers
// in the same millisecond do not collide.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new hyphenated UUIDv7.
//
// Panics if the system random source fails.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewID is shorthand for UUIDv7Generator{}.NewID().
func NewID() string {
	return UUIDv7Generator{}.NewID()
}

// FixedGenerator returns predetermined ids in order.
//
// Tests use it to make ids deterministic, or to hand out a duplicate id at a
// chosen position and force a primary key violation mid-transaction.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewID returns the next predetermined id.
//
// Panics when exhausted so a misconfigured test fails loudly.
func (g *FixedGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
