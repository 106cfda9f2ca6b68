package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// GeminiPairs maps canonical pair names to Gemini's lowercase
// no-separator wire symbols.
var GeminiPairs = map[string]string{
	"BTC-USD": "btcusd",
	"ETH-USD": "ethusd",
}

// geminiChange decodes a ["buy"|"sell", "price", "amount"] wire tuple, the
// same shape for both the l2_updates snapshot and delta channels.
type geminiChange struct {
	Side   book.Side
	Level  book.Level
	Amount float64
}

func (c *geminiChange) UnmarshalJSON(data []byte) error {
	var tuple [3]string
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("gemini: change tuple: %w", err)
	}
	switch tuple[0] {
	case "buy":
		c.Side = book.Buy
	case "sell":
		c.Side = book.Sell
	default:
		return fmt.Errorf("gemini: unknown change side %q", tuple[0])
	}
	lvl, err := book.ParseLevel(tuple[1])
	if err != nil {
		return err
	}
	amt, err := strconv.ParseFloat(tuple[2], 64)
	if err != nil {
		return fmt.Errorf("gemini: parse amount %q: %w", tuple[2], err)
	}
	c.Level, c.Amount = lvl, amt
	return nil
}

// geminiAuxTrade is one entry of the optional "trades" array carried
// alongside "changes" in an l2_updates delta frame.
type geminiAuxTrade struct {
	Side   string `json:"side"`
	Price  string `json:"price"`
	Amount string `json:"quantity"`
}

type geminiFrame struct {
	Type    string           `json:"type"`
	Changes []geminiChange   `json:"changes"`
	Trades  []geminiAuxTrade `json:"trades"`
}

// Gemini adapts Gemini's l2_updates WebSocket channel for one (pair,
// book) assignment within a MultiBook. The first frame on a subscription
// has type "l2_updates" with a full set of changes (functionally a
// snapshot); every later frame is a small delta, optionally carrying
// "trades" in the same frame as the book delta.
type Gemini struct {
	multi   *multibook.MultiBook
	bookIdx int
}

// NewGemini returns a Gemini adapter writing into multi's book at bookIdx.
func NewGemini(multi *multibook.MultiBook, bookIdx int) *Gemini {
	return &Gemini{multi: multi, bookIdx: bookIdx}
}

func decodeGeminiFrame(raw []byte) (geminiFrame, error) {
	var frame geminiFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return geminiFrame{}, fmt.Errorf("gemini: decode frame: %w", err)
	}
	return frame, nil
}

// InitOrderBook treats raw's full changes list as the initial book state.
func (g *Gemini) InitOrderBook(_ context.Context, raw []byte) error {
	frame, err := decodeGeminiFrame(raw)
	if err != nil {
		return err
	}
	var snap book.Snapshot
	for _, ch := range frame.Changes {
		pl := book.PriceLevel{Level: ch.Level, Amount: ch.Amount}
		if ch.Side == book.Buy {
			snap.Bids = append(snap.Bids, pl)
		} else {
			snap.Asks = append(snap.Asks, pl)
		}
	}
	var initErr error
	mustWithBook(g.multi, g.bookIdx, func(b *book.Book) {
		initErr = b.Init(snap)
	})
	return initErr
}

// Update applies raw's changes list as an incremental delta.
func (g *Gemini) Update(_ context.Context, raw []byte) error {
	frame, err := decodeGeminiFrame(raw)
	if err != nil {
		return err
	}
	if len(frame.Changes) == 0 {
		return nil
	}
	changes := make([]book.Change, len(frame.Changes))
	for i, ch := range frame.Changes {
		changes[i] = book.Change{Side: ch.Side, PriceLevel: book.PriceLevel{Level: ch.Level, Amount: ch.Amount}}
	}
	mustWithBook(g.multi, g.bookIdx, func(b *book.Book) {
		b.Update(book.Update{Changes: changes})
	})
	return nil
}

// Trade applies raw's optional "trades" entries as impulses, in array order.
func (g *Gemini) Trade(_ context.Context, raw []byte) error {
	frame, err := decodeGeminiFrame(raw)
	if err != nil {
		return err
	}
	for _, t := range frame.Trades {
		var side book.Side
		switch t.Side {
		case "buy":
			side = book.Buy
		case "sell":
			side = book.Sell
		default:
			return fmt.Errorf("gemini: unknown trade side %q", t.Side)
		}
		lvl, err := book.ParseLevel(t.Price)
		if err != nil {
			return err
		}
		size, err := strconv.ParseFloat(t.Amount, 64)
		if err != nil {
			return fmt.Errorf("gemini: parse trade amount %q: %w", t.Amount, err)
		}
		mustWithBook(g.multi, g.bookIdx, func(b *book.Book) {
			b.UpdateImpulse(book.Trade{Side: side, Size: size, Price: lvl})
		})
	}
	return nil
}
