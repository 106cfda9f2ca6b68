package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// KrakenPairs maps canonical pair names to Kraken's slash-separated wire pairs.
var KrakenPairs = map[string]string{
	"BTC-USD": "XBT/USD",
	"ETH-USD": "ETH/USD",
}

// krakenPriceLevel decodes a ["price", "volume", "timestamp"[, "r"]] tuple.
// The trailing "r" republish marker, when present, is recorded in
// Republish; snapshot decoding skips such levels.
type krakenPriceLevel struct {
	Level     book.Level
	Amount    float64
	Republish bool
}

func (p *krakenPriceLevel) UnmarshalJSON(data []byte) error {
	var tuple []string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("kraken: price level tuple: %w", err)
	}
	if len(tuple) < 2 {
		return fmt.Errorf("kraken: price level tuple has %d elements, want >= 2", len(tuple))
	}
	lvl, err := book.ParseLevel(tuple[0])
	if err != nil {
		return err
	}
	amt, err := strconv.ParseFloat(tuple[1], 64)
	if err != nil {
		return fmt.Errorf("kraken: parse amount %q: %w", tuple[1], err)
	}
	p.Level, p.Amount = lvl, amt
	p.Republish = len(tuple) >= 4 && tuple[3] == "r"
	return nil
}

// krakenContent is the book-update payload object, keyed by which of
// as/bs (snapshot) or a/b (update) are present — Kraken never tags this
// object with an explicit type field, so presence-of-key is the discriminator.
type krakenContent struct {
	AsksSnapshot []krakenPriceLevel `json:"as"`
	BidsSnapshot []krakenPriceLevel `json:"bs"`
	Asks         []krakenPriceLevel `json:"a"`
	Bids         []krakenPriceLevel `json:"b"`
}

func (c krakenContent) isSnapshot() bool {
	return len(c.AsksSnapshot) > 0 || len(c.BidsSnapshot) > 0
}

// decodeKrakenFrame unpacks the heterogeneous envelope array by arity.
// Element 0 is always the channel ID, and the trailing elements are the
// fixed channelName/pair strings the adapter doesn't need. A book update
// that touches both sides in the same tick may carry both in one content
// object, or arrive as two separate content objects — [id, content, name,
// pair] for the former, [id, contentA, contentB, name, pair] for the
// latter — so a 5-element envelope means element 2 carries a second
// content object that must be decoded and merged into element 1's.
func decodeKrakenFrame(raw []byte) (krakenContent, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return krakenContent{}, fmt.Errorf("kraken: decode envelope array: %w", err)
	}
	if len(elems) < 2 {
		return krakenContent{}, fmt.Errorf("kraken: envelope has %d elements, want >= 2", len(elems))
	}
	var content krakenContent
	if err := json.Unmarshal(elems[1], &content); err != nil {
		return krakenContent{}, fmt.Errorf("kraken: decode content: %w", err)
	}
	if len(elems) >= 5 {
		var second krakenContent
		if err := json.Unmarshal(elems[2], &second); err != nil {
			return krakenContent{}, fmt.Errorf("kraken: decode second content: %w", err)
		}
		content.AsksSnapshot = append(content.AsksSnapshot, second.AsksSnapshot...)
		content.BidsSnapshot = append(content.BidsSnapshot, second.BidsSnapshot...)
		content.Asks = append(content.Asks, second.Asks...)
		content.Bids = append(content.Bids, second.Bids...)
	}
	return content, nil
}

// Kraken adapts Kraken's book-<depth> WebSocket channel for one (pair,
// book) assignment within a MultiBook.
type Kraken struct {
	multi   *multibook.MultiBook
	bookIdx int
}

// NewKraken returns a Kraken adapter writing into multi's book at bookIdx.
func NewKraken(multi *multibook.MultiBook, bookIdx int) *Kraken {
	return &Kraken{multi: multi, bookIdx: bookIdx}
}

func krakenSnapshotFromContent(c krakenContent) book.Snapshot {
	snap := book.Snapshot{
		Bids: make([]book.PriceLevel, 0, len(c.BidsSnapshot)),
		Asks: make([]book.PriceLevel, 0, len(c.AsksSnapshot)),
	}
	for _, b := range c.BidsSnapshot {
		if !b.Republish {
			snap.Bids = append(snap.Bids, book.PriceLevel{Level: b.Level, Amount: b.Amount})
		}
	}
	for _, a := range c.AsksSnapshot {
		if !a.Republish {
			snap.Asks = append(snap.Asks, book.PriceLevel{Level: a.Level, Amount: a.Amount})
		}
	}
	return snap
}

// InitOrderBook handles the first book-<depth> frame on a subscription,
// whose content carries "as"/"bs" keys.
func (k *Kraken) InitOrderBook(_ context.Context, raw []byte) error {
	content, err := decodeKrakenFrame(raw)
	if err != nil {
		return err
	}
	if !content.isSnapshot() {
		return fmt.Errorf("kraken: expected snapshot content, got update-shaped frame")
	}
	snap := krakenSnapshotFromContent(content)
	var initErr error
	mustWithBook(k.multi, k.bookIdx, func(b *book.Book) {
		initErr = b.Init(snap)
	})
	return initErr
}

// Update handles a subsequent book-<depth> frame, whose content carries
// "a"/"b" keys (either or both may be present in one frame).
func (k *Kraken) Update(_ context.Context, raw []byte) error {
	content, err := decodeKrakenFrame(raw)
	if err != nil {
		return err
	}
	if content.isSnapshot() {
		return nil
	}
	var changes []book.Change
	for _, b := range content.Bids {
		changes = append(changes, book.Change{Side: book.Buy, PriceLevel: book.PriceLevel{Level: b.Level, Amount: b.Amount}})
	}
	for _, a := range content.Asks {
		changes = append(changes, book.Change{Side: book.Sell, PriceLevel: book.PriceLevel{Level: a.Level, Amount: a.Amount}})
	}
	if len(changes) == 0 {
		return nil
	}
	mustWithBook(k.multi, k.bookIdx, func(b *book.Book) {
		b.Update(book.Update{Changes: changes})
	})
	return nil
}

// Trade is a no-op: the book-<depth> channel this adapter subscribes to
// carries no trade data, and the separate "trade" channel is out of scope.
func (k *Kraken) Trade(_ context.Context, _ []byte) error {
	return nil
}
