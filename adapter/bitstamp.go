package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// BitstampPairs maps canonical pair names to Bitstamp's lowercase
// no-separator wire pairs used in its diff_order_book_<pair> channel name.
var BitstampPairs = map[string]string{
	"BTC-USD": "btcusd",
	"ETH-USD": "ethusd",
}

// bitstampPriceLevel decodes a ["price", "amount"] wire tuple.
type bitstampPriceLevel struct {
	Level  book.Level
	Amount float64
}

func (p *bitstampPriceLevel) UnmarshalJSON(data []byte) error {
	var tuple [2]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("bitstamp: price level tuple: %w", err)
	}
	lvl, err := book.ParseLevel(tuple[0])
	if err != nil {
		return err
	}
	amt, err := strconv.ParseFloat(tuple[1], 64)
	if err != nil {
		return fmt.Errorf("bitstamp: parse amount %q: %w", tuple[1], err)
	}
	p.Level, p.Amount = lvl, amt
	return nil
}

type bitstampFrame struct {
	Data struct {
		Bids []bitstampPriceLevel `json:"bids"`
		Asks []bitstampPriceLevel `json:"asks"`
	} `json:"data"`
}

// Bitstamp adapts Bitstamp's diff_order_book_<pair> channel for one
// (pair, book) assignment within a MultiBook. Bitstamp's wire format
// tags every frame identically; the adapter itself is the state machine
// that remembers whether the first frame (the implicit snapshot) has
// already been consumed.
type Bitstamp struct {
	multi   *multibook.MultiBook
	bookIdx int

	mu   sync.Mutex
	seen bool
}

// NewBitstamp returns a Bitstamp adapter writing into multi's book at bookIdx.
func NewBitstamp(multi *multibook.MultiBook, bookIdx int) *Bitstamp {
	return &Bitstamp{multi: multi, bookIdx: bookIdx}
}

func decodeBitstampFrame(raw []byte) (bitstampFrame, error) {
	var frame bitstampFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return bitstampFrame{}, fmt.Errorf("bitstamp: decode frame: %w", err)
	}
	return frame, nil
}

// InitOrderBook treats raw as the full initial book state, regardless of
// whether the caller has already checked HasSeenSnapshot.
func (bs *Bitstamp) InitOrderBook(_ context.Context, raw []byte) error {
	frame, err := decodeBitstampFrame(raw)
	if err != nil {
		return err
	}
	snap := book.Snapshot{
		Bids: make([]book.PriceLevel, len(frame.Data.Bids)),
		Asks: make([]book.PriceLevel, len(frame.Data.Asks)),
	}
	for i, b := range frame.Data.Bids {
		snap.Bids[i] = book.PriceLevel{Level: b.Level, Amount: b.Amount}
	}
	for i, a := range frame.Data.Asks {
		snap.Asks[i] = book.PriceLevel{Level: a.Level, Amount: a.Amount}
	}
	var initErr error
	mustWithBook(bs.multi, bs.bookIdx, func(b *book.Book) {
		initErr = b.Init(snap)
	})
	bs.mu.Lock()
	bs.seen = true
	bs.mu.Unlock()
	return initErr
}

// HasSeenSnapshot reports whether InitOrderBook has been called yet on
// this adapter instance; the supervisor uses this to route the very
// first frame of a fresh subscription to InitOrderBook and every
// subsequent frame to Update.
func (bs *Bitstamp) HasSeenSnapshot() bool {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.seen
}

// Update treats raw as an incremental diff frame. Per Bitstamp's protocol
// note, an oversized frame (>=128 levels on either side) panics with a
// *book.ErrCapacityExceeded rather than being silently truncated.
func (bs *Bitstamp) Update(_ context.Context, raw []byte) error {
	frame, err := decodeBitstampFrame(raw)
	if err != nil {
		return err
	}
	if len(frame.Data.Bids) >= 128 || len(frame.Data.Asks) >= 128 {
		panic(&book.ErrCapacityExceeded{Book: "bitstamp", Size: len(frame.Data.Bids) + len(frame.Data.Asks)})
	}
	changes := make([]book.Change, 0, len(frame.Data.Bids)+len(frame.Data.Asks))
	for _, b := range frame.Data.Bids {
		changes = append(changes, book.Change{Side: book.Buy, PriceLevel: book.PriceLevel{Level: b.Level, Amount: b.Amount}})
	}
	for _, a := range frame.Data.Asks {
		changes = append(changes, book.Change{Side: book.Sell, PriceLevel: book.PriceLevel{Level: a.Level, Amount: a.Amount}})
	}
	mustWithBook(bs.multi, bs.bookIdx, func(b *book.Book) {
		b.Update(book.Update{Changes: changes})
	})
	return nil
}

// Trade is a no-op: diff_order_book carries no trade data, and Bitstamp's
// separate live_trades channel is out of scope.
func (bs *Bitstamp) Trade(_ context.Context, _ []byte) error {
	return nil
}
