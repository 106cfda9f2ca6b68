// Package adapter translates each exchange's native WebSocket wire format
// into the shared book.Snapshot/book.Update/book.Trade shapes and drives
// a multibook.MultiBook through them. One file per exchange; all share the
// Exchange contract so the supervisor can dispatch without per-exchange
// branching.
package adapter

import (
	"context"
	"fmt"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

// Exchange is the contract every per-exchange adapter satisfies. Trade is
// a no-op for exchanges whose wire feed carries no trade/match channel.
type Exchange interface {
	InitOrderBook(ctx context.Context, raw []byte) error
	Update(ctx context.Context, raw []byte) error
	Trade(ctx context.Context, raw []byte) error
}

// ErrUnconfiguredPair is the panic value of TranslatePair on a lookup miss. Per
// the configuration error-handling class, the caller is expected to treat
// this as fatal at task start, not to retry per-message.
type ErrUnconfiguredPair struct {
	Exchange, Pair string
}

func (e *ErrUnconfiguredPair) Error() string {
	return fmt.Sprintf("adapter: %s has no wire translation configured for pair %q", e.Exchange, e.Pair)
}

// TranslatePair looks up pair in table or panics: an unconfigured pair is
// a configuration error, not a runtime condition, per the error taxonomy.
// Exported so the supervisor can resolve a wire pair before dialing, ahead
// of constructing the adapter that will parse that connection's frames.
func TranslatePair(exchange, pair string, table map[string]string) string {
	wire, ok := table[pair]
	if !ok {
		panic(&ErrUnconfiguredPair{Exchange: exchange, Pair: pair})
	}
	return wire
}

// mustWithBook wraps multibook.MultiBook.WithBook and panics on the index
// error: bookIdx is assigned once at adapter construction from a trusted
// config slice, so an out-of-range index can only mean a programming error.
func mustWithBook(m *multibook.MultiBook, bookIdx int, fn func(b *book.Book)) {
	if err := m.WithBook(bookIdx, fn); err != nil {
		panic(fmt.Sprintf("adapter: %v", err))
	}
}
