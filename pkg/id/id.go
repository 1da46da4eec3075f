// Package id generates time-sortable identifiers for ledger records.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator issues ULIDs that stay strictly increasing within the same millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator builds a Generator seeded from crypto/rand.
func NewGenerator() *Generator {
	var seed int64
	_ = binary.Read(cryptorand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return NewGeneratorWithSource(rand.New(rand.NewSource(seed)), time.Now)
}

// NewGeneratorWithSource builds a Generator over the given entropy and clock.
func NewGeneratorWithSource(src io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}

	return &Generator{entropy: ulid.Monotonic(src, 0), now: now}
}

// New returns the next identifier.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.entropy)
	if err != nil {
		// only reachable when the monotonic entropy overflows within one millisecond
		panic(err)
	}

	return id.String()
}

var defaultGenerator = NewGenerator()

// New returns an identifier from the process-wide generator.
func New() string {
	return defaultGenerator.New()
}
