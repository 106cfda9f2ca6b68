// Package multibook aggregates N per-exchange order books for one trading
// pair and maintains the full N·(N-1) matrix of directed cross-exchange
// spreads, re-deriving the touched slots after every mutation of any one
// underlying book and flagging arbitrage opportunities above configurable
// thresholds.
package multibook

import (
	"fmt"
	"sync"

	"github.com/wdg3/prism/book"
)

// Spread is one directed cross-exchange quote: buy on the "ask" book, sell
// on the "bid" book. Raw and Percentage are zero-valued (not "unset") until
// both underlying books have a defined best price on the relevant side.
type Spread struct {
	Raw        int64
	Percentage float64
	Seqs       [2]int64
}

// ArbitrageEvent is handed to the configured diagnostics sink whenever
// UpdateSpread observes a new, distinct arbitrage opportunity at or above
// the 0.20% threshold.
type ArbitrageEvent struct {
	Pair       string
	SpreadIdx  int
	Spread     Spread
	ArbCount   int
	BestSeenPct float64
}

// Thresholds holds the percentage cutoffs counted by UpdateSpread. New
// starts from DefaultThresholds (0.25%/0.20%/0.15%/0.10%/0.05%); the zero
// value sets every cutoff to 0.
type Thresholds struct {
	O25, O20, O15, O10, O05 float64
}

// DefaultThresholds returns the reference percentage cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{O25: 0.0025, O20: 0.0020, O15: 0.0015, O10: 0.0010, O05: 0.0005}
}

// Counters holds running totals: every UpdateSpread scan adds one to a
// threshold counter for each spread slot at or above that threshold, so
// the same slot is counted again on every scan that sees it there.
type Counters struct {
	ArbCount                int
	AboveO25, AboveO20      int
	AboveO15, AboveO10      int
	AboveO05                int
	Max                     float64
}

// Summary is a plain-data snapshot of a MultiBook, suitable for the
// pretty-printer, a future metrics exporter, or tests — decoupling
// diagnostics formatting from MultiBook's internal locking.
type Summary struct {
	Pair     string
	Names    []string
	Books    []BookSummary
	Spreads  []Spread
	Counters Counters
}

// BookSummary is the diagnostic-relevant state of a single underlying book.
type BookSummary struct {
	Name             string
	BestBid, BestAsk book.Level
	HasBid, HasAsk   bool
	Pressure         float64
	TheoreticalPrice float64
	BidDepth, AskDepth int
}

// MultiBook owns N book.Books for a single trading pair and the T =
// N*(N-1) directed spreads between them. All mutation of an underlying
// book must go through WithBook so that spread recomputation always
// observes a fully-applied update — releasing the lock between the book
// mutation and the spread recomputation would expose a partially updated
// spread matrix to a concurrent reader.
type MultiBook struct {
	mu sync.Mutex

	pair    string
	names   []string
	books   []*book.Book
	spreads []Spread

	lastSpreads []Spread
	thresholds  Thresholds
	counters    Counters

	onArbitrage func(ArbitrageEvent)
}

// New builds a MultiBook for pair with one empty book.Book per name.
// Panics if fewer than two names are given — a multi-book with N<2 has no
// directed spreads to maintain, which indicates a configuration error.
func New(pair string, names []string) *MultiBook {
	if len(names) < 2 {
		panic(fmt.Sprintf("multibook: pair %s needs at least 2 exchanges, got %d", pair, len(names)))
	}
	n := len(names)
	t := n * (n - 1)
	books := make([]*book.Book, n)
	for i, name := range names {
		books[i] = book.New(name, pair)
	}
	return &MultiBook{
		pair:        pair,
		names:       append([]string(nil), names...),
		books:       books,
		spreads:     make([]Spread, t),
		lastSpreads: make([]Spread, t),
		thresholds:  DefaultThresholds(),
		onArbitrage: func(ArbitrageEvent) {},
	}
}

// SetThresholds overrides the default arbitrage-counting cutoffs.
func (m *MultiBook) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// OnArbitrage registers the diagnostics sink invoked from inside
// UpdateSpread whenever a new arbitrage opportunity is detected. Called
// while the MultiBook mutex is held, so the callback must not re-enter
// the MultiBook.
func (m *MultiBook) OnArbitrage(fn func(ArbitrageEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		fn = func(ArbitrageEvent) {}
	}
	m.onArbitrage = fn
}

// Pair returns the trading pair this MultiBook tracks.
func (m *MultiBook) Pair() string { return m.pair }

// NumBooks returns N, the number of underlying exchange books.
func (m *MultiBook) NumBooks() int { return len(m.books) }

// idx computes the dense spread-matrix index for the ordered pair (i, j),
// i != j, packing N*(N-1) directed slots into [0, T).
func idx(i, j, n int) int {
	k := i*n + j
	if j > i {
		return k - (i + 1)
	}
	return k - i
}

// WithBook acquires the MultiBook mutex, runs fn against books[i], then
// recomputes every spread slot touching i before releasing — this is the
// only supported way to mutate an underlying book, and guarantees the
// determinism rule in the component design: the spread matrix transitions
// from one fully-consistent state to the next, never a partial one.
func (m *MultiBook) WithBook(i int, fn func(*book.Book)) error {
	if i < 0 || i >= len(m.books) {
		return fmt.Errorf("multibook: book index %d out of range [0,%d)", i, len(m.books))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.books[i])
	m.updateSpreadLocked(i)
	return nil
}

// Book returns a snapshot-safe read of books[i]'s top-of-book state. It
// takes the mutex for the duration of the read.
func (m *MultiBook) Book(i int) BookSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookSummaryLocked(i)
}

func (m *MultiBook) bookSummaryLocked(i int) BookSummary {
	b := m.books[i]
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	return BookSummary{
		Name:             m.names[i],
		BestBid:          bid,
		BestAsk:          ask,
		HasBid:           hasBid,
		HasAsk:           hasAsk,
		Pressure:         b.Pressure(),
		TheoreticalPrice: b.TheoreticalPrice(),
		BidDepth:         b.BidDepth(),
		AskDepth:         b.AskDepth(),
	}
}

// Spreads returns a copy of the current T-length spread matrix.
func (m *MultiBook) Spreads() []Spread {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Spread, len(m.spreads))
	copy(out, m.spreads)
	return out
}

// Snapshot returns a full plain-data view of the MultiBook for diagnostics.
func (m *MultiBook) Snapshot() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	books := make([]BookSummary, len(m.books))
	for i := range m.books {
		books[i] = m.bookSummaryLocked(i)
	}
	spreads := make([]Spread, len(m.spreads))
	copy(spreads, m.spreads)
	return Summary{
		Pair:     m.pair,
		Names:    append([]string(nil), m.names...),
		Books:    books,
		Spreads:  spreads,
		Counters: m.counters,
	}
}

// updateSpreadLocked is UpdateSpread's body; the caller must hold m.mu.
func (m *MultiBook) updateSpreadLocked(bookIdx int) {
	n := len(m.books)
	for j := 0; j < n; j++ {
		if j == bookIdx {
			continue
		}
		// forward: buy on bookIdx's ask, sell on j's bid.
		if fwd, ok := m.spreadBetween(bookIdx, j); ok {
			m.spreads[idx(bookIdx, j, n)] = fwd
		}
		// reverse: buy on j's ask, sell on bookIdx's bid.
		if rev, ok := m.spreadBetween(j, bookIdx); ok {
			m.spreads[idx(j, bookIdx, n)] = rev
		}
	}

	m.scanThresholdsAndArbitrage()
}

// UpdateSpread recomputes the spread slots touching books[bookIdx] against
// every other book, then rescans all T slots for threshold counters and
// arbitrage detection. Exported for callers that mutate books[bookIdx]
// directly and must maintain the documented locking discipline themselves;
// WithBook is the preferred entry point.
func (m *MultiBook) UpdateSpread(bookIdx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateSpreadLocked(bookIdx)
}

// spreadBetween computes the directed spread for buying on books[askBook]'s
// ask and selling on books[bidBook]'s bid. ok is false if either side is undefined.
func (m *MultiBook) spreadBetween(askBook, bidBook int) (Spread, bool) {
	askPL, ok := m.books[askBook].BestAskLevel()
	if !ok {
		return Spread{}, false
	}
	bidPL, ok := m.books[bidBook].BestBidLevel()
	if !ok {
		return Spread{}, false
	}
	raw := int64(bidPL.Level) - int64(askPL.Level)
	pct := float64(raw) / float64(askPL.Level)
	return Spread{
		Raw:        raw,
		Percentage: pct,
		Seqs:       [2]int64{askPL.Sequence, bidPL.Sequence},
	}, true
}

// scanThresholdsAndArbitrage implements the rescan-and-detect step of
// UpdateSpread: every one of the T slots is inspected, threshold counters
// are bumped, and the first newly-distinct opportunity at or above the
// 0.20% threshold triggers the diagnostics sink and ends the scan for this
// call — matching the reference implementation's early return rather than
// reporting every qualifying slot in one pass.
func (m *MultiBook) scanThresholdsAndArbitrage() {
	for i, s := range m.spreads {
		if s.Percentage >= m.thresholds.O25 {
			m.counters.AboveO25++
		}
		if s.Percentage >= m.thresholds.O20 {
			m.counters.AboveO20++
		}
		if s.Percentage >= m.thresholds.O15 {
			m.counters.AboveO15++
		}
		if s.Percentage >= m.thresholds.O10 {
			m.counters.AboveO10++
		}
		if s.Percentage >= m.thresholds.O05 {
			m.counters.AboveO05++
		}
		if s.Percentage >= m.counters.Max {
			m.counters.Max = s.Percentage
		}

		// The last.Seqs[0] == 0 check also fires on untouched initial state
		// (a slot that has never been written has zero sequences); this
		// double trigger is preserved as specified rather than special-cased away.
		if s.Percentage >= m.thresholds.O20 &&
			(m.lastSpreads[i].Seqs[0] == 0 || s.Seqs != m.lastSpreads[i].Seqs) {
			m.lastSpreads[i] = s
			m.counters.ArbCount++
			m.onArbitrage(ArbitrageEvent{
				Pair:        m.pair,
				SpreadIdx:   i,
				Spread:      s,
				ArbCount:    m.counters.ArbCount,
				BestSeenPct: m.counters.Max,
			})
			return
		}
	}
}
