package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// CoinbasePairs maps this system's canonical pair names to Coinbase's
// product_id wire format. Coinbase happens to use the same separator we
// do, but the table is kept explicit rather than passed through, so a
// future exchange with a different canonical pair never has to special-case this one.
var CoinbasePairs = map[string]string{
	"BTC-USD": "BTC-USD",
	"ETH-USD": "ETH-USD",
}

// coinbasePriceLevel decodes a ["price", "size"] wire tuple.
type coinbasePriceLevel struct {
	Level  book.Level
	Amount float64
}

func (p *coinbasePriceLevel) UnmarshalJSON(data []byte) error {
	var tuple [2]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("coinbase: price level tuple: %w", err)
	}
	lvl, err := book.ParseLevel(tuple[0])
	if err != nil {
		return err
	}
	amt, err := strconv.ParseFloat(tuple[1], 64)
	if err != nil {
		return fmt.Errorf("coinbase: parse amount %q: %w", tuple[1], err)
	}
	p.Level, p.Amount = lvl, amt
	return nil
}

// coinbaseChange decodes a ["buy"|"sell", "price", "size"] wire tuple.
type coinbaseChange struct {
	Side  book.Side
	Level book.Level
	Amount float64
}

func (c *coinbaseChange) UnmarshalJSON(data []byte) error {
	var tuple [3]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("coinbase: change tuple: %w", err)
	}
	switch tuple[0] {
	case "buy":
		c.Side = book.Buy
	case "sell":
		c.Side = book.Sell
	default:
		return fmt.Errorf("coinbase: unknown change side %q", tuple[0])
	}
	lvl, err := book.ParseLevel(tuple[1])
	if err != nil {
		return err
	}
	amt, err := strconv.ParseFloat(tuple[2], 64)
	if err != nil {
		return fmt.Errorf("coinbase: parse amount %q: %w", tuple[2], err)
	}
	c.Level, c.Amount = lvl, amt
	return nil
}

type coinbaseEnvelope struct {
	Type string `json:"type"`
}

type coinbaseSnapshotMsg struct {
	Bids []coinbasePriceLevel `json:"bids"`
	Asks []coinbasePriceLevel `json:"asks"`
}

type coinbaseUpdateMsg struct {
	Changes []coinbaseChange `json:"changes"`
}

type coinbaseMatchMsg struct {
	Side  string `json:"side"`
	Size  string `json:"size"`
	Price string `json:"price"`
}

// Coinbase adapts Coinbase's Exchange WebSocket level2/match feed for one
// (pair, book) assignment within a MultiBook.
type Coinbase struct {
	multi   *multibook.MultiBook
	bookIdx int
}

// NewCoinbase returns a Coinbase adapter writing into multi's book at bookIdx.
func NewCoinbase(multi *multibook.MultiBook, bookIdx int) *Coinbase {
	return &Coinbase{multi: multi, bookIdx: bookIdx}
}

// InitOrderBook handles a "snapshot" message.
func (c *Coinbase) InitOrderBook(_ context.Context, raw []byte) error {
	var msg coinbaseSnapshotMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("coinbase: decode snapshot: %w", err)
	}
	snap := book.Snapshot{
		Bids: make([]book.PriceLevel, len(msg.Bids)),
		Asks: make([]book.PriceLevel, len(msg.Asks)),
	}
	for i, b := range msg.Bids {
		snap.Bids[i] = book.PriceLevel{Level: b.Level, Amount: b.Amount}
	}
	for i, a := range msg.Asks {
		snap.Asks[i] = book.PriceLevel{Level: a.Level, Amount: a.Amount}
	}
	var initErr error
	mustWithBook(c.multi, c.bookIdx, func(b *book.Book) {
		initErr = b.Init(snap)
	})
	return initErr
}

// Update handles an "l2update" message. Unknown/ignorable envelope types
// ("subscriptions", "last_match", heartbeats) are a no-op, not an error —
// the caller is expected to route by envelope type before calling Update,
// but Update tolerates being handed one of these anyway.
func (c *Coinbase) Update(_ context.Context, raw []byte) error {
	var env coinbaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("coinbase: decode envelope: %w", err)
	}
	if env.Type != "l2update" {
		return nil
	}
	var msg coinbaseUpdateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("coinbase: decode l2update: %w", err)
	}
	changes := make([]book.Change, len(msg.Changes))
	for i, ch := range msg.Changes {
		changes[i] = book.Change{Side: ch.Side, PriceLevel: book.PriceLevel{Level: ch.Level, Amount: ch.Amount}}
	}
	mustWithBook(c.multi, c.bookIdx, func(b *book.Book) {
		b.Update(book.Update{Changes: changes})
	})
	return nil
}

// Trade handles a "match" message, feeding the trade impulse into the book.
func (c *Coinbase) Trade(_ context.Context, raw []byte) error {
	var env coinbaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("coinbase: decode envelope: %w", err)
	}
	if env.Type != "match" && env.Type != "last_match" {
		return nil
	}
	var msg coinbaseMatchMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("coinbase: decode match: %w", err)
	}
	var side book.Side
	switch msg.Side {
	case "buy":
		side = book.Buy
	case "sell":
		side = book.Sell
	default:
		return fmt.Errorf("coinbase: unknown match side %q", msg.Side)
	}
	lvl, err := book.ParseLevel(msg.Price)
	if err != nil {
		return err
	}
	size, err := strconv.ParseFloat(msg.Size, 64)
	if err != nil {
		return fmt.Errorf("coinbase: parse size %q: %w", msg.Size, err)
	}
	mustWithBook(c.multi, c.bookIdx, func(b *book.Book) {
		b.UpdateImpulse(book.Trade{Side: side, Size: size, Price: lvl})
	})
	return nil
}

// CoinbaseEnvelopeType extracts the "type" discriminator so the supervisor can
// dispatch to InitOrderBook/Update/Trade without re-parsing the body.
func CoinbaseEnvelopeType(raw []byte) (string, error) {
	var env coinbaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("coinbase: decode envelope: %w", err)
	}
	return env.Type, nil
}
