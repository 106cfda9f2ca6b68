package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// InboundMessage is the canonical pre-normalized record accepted by the
// relay listener from its single inbound connection. Fields are pointers
// where presence depends on MessageType: "book" carries the bid/ask
// fields, "trade" carries price/amount/buy.
type InboundMessage struct {
	MessageType string  `json:"message_type"`
	Pair        string  `json:"pair"`
	Sent        int64   `json:"sent"`
	Price       *string `json:"price,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	BidLevel    *string `json:"bid_level,omitempty"`
	AskLevel    *string `json:"ask_level,omitempty"`
	BidAmount   *string `json:"bid_amount,omitempty"`
	AskAmount   *string `json:"ask_amount,omitempty"`
	Buy         *bool   `json:"buy,omitempty"`
}

// Relay adapts the InboundMessage feed accepted by relay.Listener for one
// (pair, book) assignment within a MultiBook. Unlike the native exchange
// adapters, the relay never receives an explicit full-book snapshot: its
// upstream already reconstructs a book and emits only normalized deltas
// and trades, so InitOrderBook is unsupported.
type Relay struct {
	multi   *multibook.MultiBook
	bookIdx int
}

// NewRelay returns a Relay adapter writing into multi's book at bookIdx.
func NewRelay(multi *multibook.MultiBook, bookIdx int) *Relay {
	return &Relay{multi: multi, bookIdx: bookIdx}
}

// InitOrderBook always fails: the relay's upstream never emits a snapshot.
func (r *Relay) InitOrderBook(_ context.Context, _ []byte) error {
	return fmt.Errorf("relay: adapter has no snapshot concept, upstream never emits one")
}

// Update decodes raw as an InboundMessage of type "book" and applies the
// present bid/ask fields as a one- or two-change Update.
func (r *Relay) Update(_ context.Context, raw []byte) error {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("relay: decode inbound message: %w", err)
	}
	if msg.MessageType != "book" {
		return nil
	}
	var changes []book.Change
	if msg.BidLevel != nil && msg.BidAmount != nil {
		lvl, err := book.ParseLevel(*msg.BidLevel)
		if err != nil {
			return err
		}
		amt, err := parseInboundFloat(*msg.BidAmount)
		if err != nil {
			return err
		}
		changes = append(changes, book.Change{Side: book.Buy, PriceLevel: book.PriceLevel{Level: lvl, Amount: amt}})
	}
	if msg.AskLevel != nil && msg.AskAmount != nil {
		lvl, err := book.ParseLevel(*msg.AskLevel)
		if err != nil {
			return err
		}
		amt, err := parseInboundFloat(*msg.AskAmount)
		if err != nil {
			return err
		}
		changes = append(changes, book.Change{Side: book.Sell, PriceLevel: book.PriceLevel{Level: lvl, Amount: amt}})
	}
	if len(changes) == 0 {
		return nil
	}
	mustWithBook(r.multi, r.bookIdx, func(b *book.Book) {
		b.Update(book.Update{Changes: changes})
	})
	return nil
}

// Trade decodes raw as an InboundMessage of type "trade" and feeds the
// trade impulse into the book.
func (r *Relay) Trade(_ context.Context, raw []byte) error {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("relay: decode inbound message: %w", err)
	}
	if msg.MessageType != "trade" {
		return nil
	}
	if msg.Price == nil || msg.Amount == nil || msg.Buy == nil {
		return fmt.Errorf("relay: trade message missing price/amount/buy")
	}
	lvl, err := book.ParseLevel(*msg.Price)
	if err != nil {
		return err
	}
	size, err := parseInboundFloat(*msg.Amount)
	if err != nil {
		return err
	}
	side := book.Sell
	if *msg.Buy {
		side = book.Buy
	}
	mustWithBook(r.multi, r.bookIdx, func(b *book.Book) {
		b.UpdateImpulse(book.Trade{Side: side, Size: size, Price: lvl})
	})
	return nil
}

func parseInboundFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("relay: parse amount %q: %w", s, err)
	}
	return f, nil
}
