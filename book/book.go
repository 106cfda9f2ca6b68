package book

import (
	"container/heap"
	"fmt"
)

// DesyncError is panicked by Update when the post-update state violates one
// of I1 (spread), I2 (heap-tip validity), or I3 (index agreement). These
// invariants only fail when the upstream feed has desynced (a missed
// message, or an exchange protocol bug) — the only safe recovery is a
// fresh Snapshot via Init, which a supervisor obtains by reconnecting.
type DesyncError struct {
	Book      string
	Pair      string
	Invariant string
	Detail    string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("book %s/%s: invariant %s violated: %s", e.Book, e.Pair, e.Invariant, e.Detail)
}

// ErrCapacityExceeded is panicked by Update when a side's resting level
// count would exceed MaxBookDepth even after compaction, or when an Update
// carries more than MaxUpdateChanges changes. Init reports an oversized
// Snapshot as a returned error instead. The configured capacities exceed
// any realistic feed depth, so hitting this indicates a bug.
type ErrCapacityExceeded struct {
	Book string
	Pair string
	Side Side
	Size int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("book %s/%s: %s side capacity exceeded at %d entries", e.Book, e.Pair, e.Side, e.Size)
}

// bookSide is one side (bid or ask) of a Book: an authoritative lookup map
// keyed by Level, plus a heap.Interface-driven index for O(log N) best-price
// retrieval. The heap may lag the lookup (lazy deletion); settle() reconciles
// the tip before every read.
type bookSide struct {
	lookup  map[Level]PriceLevel
	h       heapInterface
	best    Level
	hasBest bool
}

func newBidSide() *bookSide {
	return &bookSide{lookup: make(map[Level]PriceLevel), h: &bidHeap{}}
}

func newAskSide() *bookSide {
	return &bookSide{lookup: make(map[Level]PriceLevel), h: &askHeap{}}
}

// settle pops stale heap entries — ones no longer present in the lookup —
// until the tip is either empty or valid, then refreshes the cached best.
func (s *bookSide) settle() {
	for {
		lvl, ok := s.h.peek()
		if !ok {
			break
		}
		if _, present := s.lookup[lvl]; present {
			break
		}
		heap.Pop(s.h)
	}
	lvl, ok := s.h.peek()
	s.best, s.hasBest = lvl, ok
}

// compact rebuilds the heap from the lookup's current keys, discarding any
// stale entries in one pass. Triggered when the heap reaches MaxBookDepth,
// per invariant I5.
func (s *bookSide) compact() {
	switch h := s.h.(type) {
	case *bidHeap:
		h.levelHeap = h.levelHeap[:0]
		for lvl := range s.lookup {
			h.levelHeap = append(h.levelHeap, lvl)
		}
		heap.Init(h)
	case *askHeap:
		h.levelHeap = h.levelHeap[:0]
		for lvl := range s.lookup {
			h.levelHeap = append(h.levelHeap, lvl)
		}
		heap.Init(h)
	}
}

// apply upserts-or-deletes level in the lookup, then maintains the heap per
// the lazy-deletion scheme described in bookSide: skip stale tips, compact
// if the heap has reached capacity, then push the new level unless this
// change is itself a delete of a level the lookup no longer holds.
func (s *bookSide) apply(level Level, amount float64, sequence int64) {
	remains := !isZeroAmount(amount)
	if remains {
		s.lookup[level] = PriceLevel{Level: level, Amount: amount, Sequence: sequence}
	} else {
		delete(s.lookup, level)
	}

	s.settle()

	if s.h.Len() >= MaxBookDepth {
		s.compact()
	}
	if remains {
		heap.Push(s.h, level)
	}

	s.settle()
}

// initBulk clears existing state and bulk-loads levels, used by Book.Init.
func (s *bookSide) initBulk(levels []PriceLevel) error {
	if len(levels) > MaxSnapshotLevels {
		return fmt.Errorf("book: snapshot side has %d levels, exceeds MaxSnapshotLevels %d", len(levels), MaxSnapshotLevels)
	}
	s.lookup = make(map[Level]PriceLevel, len(levels))
	switch h := s.h.(type) {
	case *bidHeap:
		h.levelHeap = make(levelHeap, 0, len(levels))
	case *askHeap:
		h.levelHeap = make(levelHeap, 0, len(levels))
	}
	for _, pl := range levels {
		if isZeroAmount(pl.Amount) {
			continue
		}
		s.lookup[pl.Level] = pl
		heap.Push(s.h, pl.Level)
	}
	if s.h.Len() > MaxBookDepth {
		return fmt.Errorf("book: side has %d resting levels, exceeds MaxBookDepth %d", s.h.Len(), MaxBookDepth)
	}
	lvl, ok := s.h.peek()
	s.best, s.hasBest = lvl, ok
	return nil
}

// Book is a per-(exchange, pair) limit order book: two bookSides, cached
// best-price, rolling top-of-book averages, the derived pressure and
// theoretical-price estimates, and the monotone update counter that seeds
// per-side sequence numbers.
type Book struct {
	Name string
	Pair string

	bid *bookSide
	ask *bookSide

	avgBid       float64
	avgAsk       float64
	numPressures int64

	pressure         float64
	theoreticalPrice float64

	count int64
}

// New returns an empty Book for the given exchange name and trading pair.
// Both sides are unset until Init or the first Update.
func New(name, pair string) *Book {
	return &Book{
		Name: name,
		Pair: pair,
		bid:  newBidSide(),
		ask:  newAskSide(),
	}
}

// Init clears all existing state and bulk-loads a Snapshot, then caches the
// top of book for each side. Init is legal to call in any state (Empty,
// Initialized, or Updating) and always resets it. Returns an error if
// either side's snapshot exceeds the configured capacity.
func (b *Book) Init(s Snapshot) error {
	bid := newBidSide()
	ask := newAskSide()
	if err := bid.initBulk(s.Bids); err != nil {
		return fmt.Errorf("book %s/%s: init bid side: %w", b.Name, b.Pair, err)
	}
	if err := ask.initBulk(s.Asks); err != nil {
		return fmt.Errorf("book %s/%s: init ask side: %w", b.Name, b.Pair, err)
	}
	b.bid, b.ask = bid, ask
	b.avgBid, b.avgAsk, b.numPressures, b.pressure = 0, 0, 0, 0
	b.theoreticalPrice = 0

	if b.bid.hasBest && b.ask.hasBest {
		b.updatePressure()
		b.validate()
	}
	return nil
}

// Update applies a bounded set of per-level changes. Each change increments
// the shared sequence counter; bid sequences are assigned +count, ask
// sequences -count, so that simultaneous levels within one side tie-break
// in arrival order. After all changes are applied, if both sides are
// defined, pressure is recomputed and invariants I1-I3 are checked — a
// violation panics with a *DesyncError, since it indicates the upstream
// feed has desynced and the only safe recovery is a fresh snapshot.
func (b *Book) Update(u Update) {
	if len(u.Changes) > MaxUpdateChanges {
		panic(&ErrCapacityExceeded{Book: b.Name, Pair: b.Pair, Size: len(u.Changes)})
	}
	for _, c := range u.Changes {
		b.count++
		switch c.Side {
		case Buy:
			b.bid.apply(c.PriceLevel.Level, c.PriceLevel.Amount, b.count)
			if len(b.bid.lookup) > MaxBookDepth {
				panic(&ErrCapacityExceeded{Book: b.Name, Pair: b.Pair, Side: Buy, Size: len(b.bid.lookup)})
			}
		case Sell:
			b.ask.apply(c.PriceLevel.Level, c.PriceLevel.Amount, -b.count)
			if len(b.ask.lookup) > MaxBookDepth {
				panic(&ErrCapacityExceeded{Book: b.Name, Pair: b.Pair, Side: Sell, Size: len(b.ask.lookup)})
			}
		}
	}

	b.theoreticalPrice = 0

	if b.bid.hasBest && b.ask.hasBest {
		b.updatePressure()
		b.validate()
	}
}

// updatePressure recomputes the rolling top-of-book averages and the
// cross-weighted pressure mid. Each side's weight is the *opposite* side's
// resting amount, biasing the mid toward the thinner, more easily moved side.
func (b *Book) updatePressure() {
	bidAmt := b.bid.lookup[b.bid.best].Amount
	askAmt := b.ask.lookup[b.ask.best].Amount

	b.numPressures++
	n := float64(b.numPressures)
	b.avgBid = (b.avgBid*(n-1) + bidAmt) / n
	b.avgAsk = (b.avgAsk*(n-1) + askAmt) / n

	b.pressure = (bidAmt*float64(b.ask.best) + askAmt*float64(b.bid.best)) / (bidAmt + askAmt)
}

// UpdateImpulse derives the theoretical price from the last-computed
// pressure and a trade's book impact. Requires both sides to be defined.
// The result is a float64 in tick units; it is not rounded to a whole tick
// and not clamped to be non-negative. It may intentionally fall outside
// [BestBid, BestAsk], signaling pressure in excess of the spread.
//
// The sign flip for a Sell aggressor is taken verbatim from the reference
// implementation: whether it models "sell pressure pushes fair value below
// the bid" or is an inversion left uncorrected is an open question upstream
// — this is the specified behavior, not a guess.
func (b *Book) UpdateImpulse(t Trade) {
	if !b.bid.hasBest || !b.ask.hasBest {
		return
	}
	var delta float64
	if t.Side == Buy {
		delta = float64(b.ask.best) - float64(b.bid.best)
	} else {
		delta = float64(b.bid.best) - float64(b.ask.best)
	}
	denom := b.avgBid + b.avgAsk
	if denom == 0 {
		b.theoreticalPrice = b.pressure
		return
	}
	b.theoreticalPrice = b.pressure + (delta*t.Size)/denom
}

// validate checks invariants I1 (spread), I2 (heap-tip validity), and I3
// (index agreement) after an Update that leaves both sides defined.
func (b *Book) validate() {
	bestBid, ask := b.bid.best, b.ask.best

	if bestBid >= ask {
		panic(&DesyncError{Book: b.Name, Pair: b.Pair, Invariant: "I1",
			Detail: fmt.Sprintf("best_bid=%d best_ask=%d", bestBid, ask)})
	}

	heapBid, _ := b.bid.h.peek()
	heapAsk, _ := b.ask.h.peek()
	if heapBid != bestBid {
		panic(&DesyncError{Book: b.Name, Pair: b.Pair, Invariant: "I2",
			Detail: fmt.Sprintf("bid heap tip %d != cached best %d", heapBid, bestBid)})
	}
	if heapAsk != ask {
		panic(&DesyncError{Book: b.Name, Pair: b.Pair, Invariant: "I2",
			Detail: fmt.Sprintf("ask heap tip %d != cached best %d", heapAsk, ask)})
	}

	if pl, ok := b.bid.lookup[bestBid]; !ok || pl.Level != bestBid {
		panic(&DesyncError{Book: b.Name, Pair: b.Pair, Invariant: "I3",
			Detail: fmt.Sprintf("bid lookup missing or mismatched for best %d", bestBid)})
	}
	if pl, ok := b.ask.lookup[ask]; !ok || pl.Level != ask {
		panic(&DesyncError{Book: b.Name, Pair: b.Pair, Invariant: "I3",
			Detail: fmt.Sprintf("ask lookup missing or mismatched for best %d", ask)})
	}
}

// BestBid returns the highest resting bid Level, or false if the bid side is unset.
func (b *Book) BestBid() (Level, bool) { return b.bid.best, b.bid.hasBest }

// BestAsk returns the lowest resting ask Level, or false if the ask side is unset.
func (b *Book) BestAsk() (Level, bool) { return b.ask.best, b.ask.hasBest }

// BestBidLevel returns the full PriceLevel for the current best bid.
func (b *Book) BestBidLevel() (PriceLevel, bool) {
	if !b.bid.hasBest {
		return PriceLevel{}, false
	}
	pl, ok := b.bid.lookup[b.bid.best]
	return pl, ok
}

// BestAskLevel returns the full PriceLevel for the current best ask.
func (b *Book) BestAskLevel() (PriceLevel, bool) {
	if !b.ask.hasBest {
		return PriceLevel{}, false
	}
	pl, ok := b.ask.lookup[b.ask.best]
	return pl, ok
}

// Pressure returns the last-computed cross-weighted mid.
func (b *Book) Pressure() float64 { return b.pressure }

// TheoreticalPrice returns the last impulse-adjusted price, or 0 if no
// trade has been observed since the last non-trade Update.
func (b *Book) TheoreticalPrice() float64 { return b.theoreticalPrice }

// BidDepth returns the number of resting bid levels in the lookup.
func (b *Book) BidDepth() int { return len(b.bid.lookup) }

// AskDepth returns the number of resting ask levels in the lookup.
func (b *Book) AskDepth() int { return len(b.ask.lookup) }

// Lookup returns the PriceLevel resting at level on the given side, if any.
func (b *Book) Lookup(side Side, level Level) (PriceLevel, bool) {
	if side == Buy {
		pl, ok := b.bid.lookup[level]
		return pl, ok
	}
	pl, ok := b.ask.lookup[level]
	return pl, ok
}
