// Package book implements a per-exchange limit order book: a dual-sided
// price-level store with lazy-deleted heap indices over an authoritative
// lookup map, tolerant of delete-via-zero-amount update semantics.
package book

import (
	"fmt"
	"math"
	"strconv"
)

// Level is a price expressed in integer ticks, where one tick is 1/100th
// of one unit of the quote currency (i.e. level == round(decimal price * 100)).
// All book comparisons are integer comparisons over Level.
type Level uint64

// Side is the side of the book a PriceLevel or Change belongs to, or the
// aggressor side of a Trade.
type Side bool

const (
	// Buy is the bid side: an order resting to purchase, or a buy-side trade aggressor.
	Buy Side = true
	// Sell is the ask side: an order resting to sell, or a sell-side trade aggressor.
	Sell Side = false
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Capacity ceilings. These are implementation limits, not tuning knobs:
// exceeding one indicates a desynced feed or a malformed message, and is
// treated as a fatal condition per the error handling design (see ErrCapacityExceeded).
const (
	// MaxBookDepth is the maximum number of resting price levels per side.
	MaxBookDepth = 65536
	// MaxSnapshotLevels is the maximum number of levels a single Snapshot side may carry.
	MaxSnapshotLevels = 10000
	// MaxUpdateChanges is the maximum number of Change entries a single Update may carry.
	MaxUpdateChanges = 512
)

// PriceLevel is the canonical resting-order-book entry. amount == 0.0 is
// never stored; a zero amount in a wire update means "delete this level".
// sequence is a tie-breaker assigned by the owning Book on insert:
// positive-monotone for bids, negative-monotone for asks, so that within
// one side, ties on Level resolve in arrival order.
type PriceLevel struct {
	Level    Level
	Amount   float64
	Sequence int64
}

// Snapshot is the bounded full state of both sides of a book, as delivered
// by an exchange's initial "snapshot" message.
type Snapshot struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Change is a single per-level delta carried by an Update. A Change with
// Amount == 0.0 removes PriceLevel.Level from its side; any nonzero amount
// inserts-or-replaces.
type Change struct {
	Side       Side
	PriceLevel PriceLevel
}

// Update is a bounded set of per-level changes, as delivered by an
// exchange's incremental "l2update"/"update"/"diff" message.
type Update struct {
	Changes []Change
}

// Trade is an executed trade (a "match" or "impulse"), used to derive the
// book's TheoreticalPrice. Side is the aggressor side.
type Trade struct {
	Side  Side
	Size  float64
	Price Level
}

// ParseLevel converts a decimal wire price string into integer ticks, per
// the system-wide price scale: level = round(decimal price * 100).
func ParseLevel(decimalPrice string) (Level, error) {
	f, err := strconv.ParseFloat(decimalPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("book: parse price %q: %w", decimalPrice, err)
	}
	return levelFromFloat(f), nil
}

func levelFromFloat(f float64) Level {
	return Level(int64(f*100 + 0.5))
}

var positiveZeroBits = math.Float64bits(0.0)

// isZeroAmount reports whether amount is bit-exact +0.0, per the wire
// protocol's delete convention: the comparison is against the bit pattern
// of positive zero, not amount <= 0, so negative zero or a denormal would
// (deliberately) not be treated as a delete. Exchange feeds never emit
// either, so this distinction is never exercised in practice.
func isZeroAmount(amount float64) bool {
	return math.Float64bits(amount) == positiveZeroBits
}
