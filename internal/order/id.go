package order

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces order ids of the form ORD-<unix millis>-<12 hex chars>.
// The suffix mixes a per-process counter with random bytes so ids minted in the
// same millisecond differ even if the random source repeats; the orders primary
// key is the final guard.
type IDGenerator struct {
	now     func() time.Time
	counter atomic.Uint32
}

func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

func (g *IDGenerator) NewID() string {
	seq := g.counter.Add(1)
	random := uuid.New()

	var suffix [6]byte
	suffix[0] = byte(seq >> 8)
	suffix[1] = byte(seq)
	copy(suffix[2:], random[:4])

	return fmt.Sprintf("ORD-%d-%s", g.now().UnixMilli(), strings.ToUpper(hex.EncodeToString(suffix[:])))
}
