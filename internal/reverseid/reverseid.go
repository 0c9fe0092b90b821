// Package reverseid mints chat identifiers whose lexical ordering equals
// reverse-chronological creation order.
//
// An identifier is a 13-digit zero-padded reverse timestamp, an underscore,
// and a random v4 UUID:
//
//	7237963244682_9b8f2b9a-0a70-44d2-9c15-5c4b9a2f61d0
//
// The reverse timestamp is MaxTimestampMs minus the creation time in
// milliseconds, so newer chats sort first. Collisions between identifiers
// minted at the same millisecond are avoided by the UUID suffix.
package reverseid

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTimestampMs is the fixed ceiling used to compute reverse timestamps.
// It is the largest value representable in 13 decimal digits.
const MaxTimestampMs int64 = 9999999999999

// timestampDigits is the fixed width of the timestamp segment.
const timestampDigits = 13

// Generated is the result of minting one identifier.
type Generated struct {
	// ID is the full identifier, "{reverseTimestamp}_{uuid}".
	ID string

	// ReverseTimestamp is MaxTimestampMs - CreatedAtMs, clamped to
	// [0, MaxTimestampMs].
	ReverseTimestamp int64

	// CreatedAtMs is the creation time used to mint the identifier,
	// in Unix milliseconds.
	CreatedAtMs int64
}

// Generate mints an identifier for the given creation time. It is a pure
// function of the clock reading plus UUID randomness and has no failure
// modes.
func Generate(nowMs int64) Generated {
	rev := MaxTimestampMs - nowMs
	if rev < 0 {
		rev = 0
	}
	if rev > MaxTimestampMs {
		rev = MaxTimestampMs
	}
	id := fmt.Sprintf("%0*d_%s", timestampDigits, rev, uuid.NewString())
	return Generated{ID: id, ReverseTimestamp: rev, CreatedAtMs: nowMs}
}

// Generator mints identifiers using an injectable clock. The zero value is
// not usable; construct with New or NewWithClock.
type Generator struct {
	nowMs func() int64
}

// New returns a Generator backed by the system clock.
func New() *Generator {
	return &Generator{nowMs: func() int64 { return time.Now().UnixMilli() }}
}

// NewWithClock returns a Generator backed by the supplied millisecond
// clock. Used in tests for determinism.
func NewWithClock(nowMs func() int64) *Generator {
	return &Generator{nowMs: nowMs}
}

// Generate mints an identifier at the generator's current clock reading.
func (g *Generator) Generate() Generated {
	return Generate(g.nowMs())
}

// Parse recovers the creation time from an identifier. It returns an error
// when the timestamp segment or the UUID suffix is malformed.
func Parse(id string) (createdAtMs int64, err error) {
	ts, rest, ok := strings.Cut(id, "_")
	if !ok {
		return 0, fmt.Errorf("malformed id %q: missing separator", id)
	}
	if len(ts) != timestampDigits {
		return 0, fmt.Errorf("malformed id %q: timestamp segment must be %d digits", id, timestampDigits)
	}
	rev, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", id, err)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return 0, fmt.Errorf("malformed id %q: %w", id, err)
	}
	return MaxTimestampMs - rev, nil
}
