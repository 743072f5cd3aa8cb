package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out scripted IDs first, then sequential ones:
// "id-1", "id-2", etc. Scripted IDs let tests force collisions.
type StubIDGenerator struct {
	mu       sync.Mutex
	scripted []string
	counter  int
	issued   int
}

// NewStubIDGenerator creates a generator that returns scripted in order
// before falling back to the sequence.
func NewStubIDGenerator(scripted ...string) *StubIDGenerator {
	return &StubIDGenerator{scripted: scripted}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	if len(g.scripted) > 0 {
		id := g.scripted[0]
		g.scripted = g.scripted[1:]
		return id
	}
	g.counter++
	return fmt.Sprintf("id-%d", g.counter)
}

// Issued returns how many IDs have been requested.
func (g *StubIDGenerator) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issued
}
