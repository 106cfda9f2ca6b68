// Package supervisor owns one reconnect loop per (exchange, pair) and a
// monitor task that periodically prints a MultiBook summary. The
// doubling-backoff reconnect shape is grounded in
// yoghaf-market-indikator's internal/ingest package.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wdg3/prism/adapter"
	"github.com/wdg3/prism/applog"
	"github.com/wdg3/prism/multibook"
	"github.com/wdg3/prism/wsclient"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 30 * time.Second
)

// ExchangeEndpoint is the fixed connection/subscription shape for one
// exchange, built once at task start from each exchange's documented wire formats.
type ExchangeEndpoint struct {
	Name          string
	URL           string
	PairTable     map[string]string
	BuildSubscribe func(wirePair string) []byte
	NewAdapter    func(m *multibook.MultiBook, bookIdx int) adapter.Exchange
	// EnvelopeType, when non-nil, extracts a message's dispatch
	// discriminator without fully decoding it (Coinbase needs this;
	// Kraken/Bitstamp/Gemini are routed by dispatch's first-frame rules).
	EnvelopeType func(raw []byte) (string, error)
}

// CoinbaseEndpoint returns the fixed Coinbase connection/subscription shape.
func CoinbaseEndpoint() ExchangeEndpoint {
	return ExchangeEndpoint{
		Name:      "coinbase",
		URL:       "wss://ws-feed.exchange.coinbase.com",
		PairTable: adapter.CoinbasePairs,
		BuildSubscribe: func(wirePair string) []byte {
			msg, _ := json.Marshal(map[string]any{
				"type":        "subscribe",
				"product_ids": []string{wirePair},
				"channels":    []string{"level2", "matches"},
			})
			return msg
		},
		NewAdapter: func(m *multibook.MultiBook, bookIdx int) adapter.Exchange {
			return adapter.NewCoinbase(m, bookIdx)
		},
		EnvelopeType: adapter.CoinbaseEnvelopeType,
	}
}

// KrakenEndpoint returns the fixed Kraken connection/subscription shape.
func KrakenEndpoint() ExchangeEndpoint {
	return ExchangeEndpoint{
		Name:      "kraken",
		URL:       "wss://ws.kraken.com",
		PairTable: adapter.KrakenPairs,
		BuildSubscribe: func(wirePair string) []byte {
			msg, _ := json.Marshal(map[string]any{
				"event": "subscribe",
				"pair":  []string{wirePair},
				"subscription": map[string]any{
					"name":  "book",
					"depth": 1000,
				},
			})
			return msg
		},
		NewAdapter: func(m *multibook.MultiBook, bookIdx int) adapter.Exchange {
			return adapter.NewKraken(m, bookIdx)
		},
	}
}

// BitstampEndpoint returns the fixed Bitstamp connection/subscription shape.
func BitstampEndpoint() ExchangeEndpoint {
	return ExchangeEndpoint{
		Name:      "bitstamp",
		URL:       "wss://ws.bitstamp.net",
		PairTable: adapter.BitstampPairs,
		BuildSubscribe: func(wirePair string) []byte {
			msg, _ := json.Marshal(map[string]any{
				"event": "bts:subscribe",
				"data": map[string]string{
					"channel": "diff_order_book_" + wirePair,
				},
			})
			return msg
		},
		NewAdapter: func(m *multibook.MultiBook, bookIdx int) adapter.Exchange {
			return adapter.NewBitstamp(m, bookIdx)
		},
	}
}

// GeminiEndpoint returns the fixed Gemini connection/subscription shape.
func GeminiEndpoint() ExchangeEndpoint {
	return ExchangeEndpoint{
		Name:      "gemini",
		URL:       "wss://api.gemini.com/v2/marketdata",
		PairTable: adapter.GeminiPairs,
		BuildSubscribe: func(wirePair string) []byte {
			msg, _ := json.Marshal(map[string]any{
				"type": "subscribe",
				"subscriptions": []map[string]any{
					{"name": "l2", "symbols": []string{wirePair}},
				},
			})
			return msg
		},
		NewAdapter: func(m *multibook.MultiBook, bookIdx int) adapter.Exchange {
			return adapter.NewGemini(m, bookIdx)
		},
	}
}

// Task is one (exchange, pair) reconnect loop. It is never rebuilt across
// reconnects; only its wsclient.Client and adapter.Exchange instance are.
type Task struct {
	endpoint ExchangeEndpoint
	pair     string
	bookIdx  int
	multi    *multibook.MultiBook
	log      *applog.Logger
}

// NewTask returns a reconnect loop writing into multi's book at bookIdx
// for endpoint/pair.
func NewTask(endpoint ExchangeEndpoint, pair string, multi *multibook.MultiBook, bookIdx int) *Task {
	return &Task{
		endpoint: endpoint,
		pair:     pair,
		bookIdx:  bookIdx,
		multi:    multi,
		log:      applog.New(fmt.Sprintf("supervisor.%s", endpoint.Name)),
	}
}

// Run blocks, dialing and reconnecting endlessly until ctx is canceled.
// Every iteration of the inner loop is a Transport-class error per the
// error handling design: log and reconnect, never propagate.
func (t *Task) Run(ctx context.Context) {
	wirePair := adapter.TranslatePair(t.endpoint.Name, t.pair, t.endpoint.PairTable)
	delay := baseReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ok := t.connectAndConsume(ctx, wirePair)
		if ctx.Err() != nil {
			return
		}
		if ok {
			delay = baseReconnectDelay
			continue
		}

		t.log.Warnf("reconnecting %s in %v", t.pair, delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// connectAndConsume dials once, drives a fresh adapter instance until
// ReadMessage errors, and reports whether it ever successfully processed
// a frame (used only to decide whether to reset the backoff).
func (t *Task) connectAndConsume(ctx context.Context, wirePair string) bool {
	sub := t.endpoint.BuildSubscribe(wirePair)
	client, err := wsclient.Dial(ctx, t.endpoint.URL, sub)
	if err != nil {
		t.log.Errorf("dial %s: %v", t.endpoint.URL, err)
		return false
	}
	defer client.Close()

	ex := t.endpoint.NewAdapter(t.multi, t.bookIdx)
	gotSnapshot := false
	progressed := false

	for {
		select {
		case <-ctx.Done():
			return progressed
		default:
		}

		raw, err := client.ReadMessage()
		if err != nil {
			t.log.Warnf("%s read: %v", t.pair, err)
			return progressed
		}

		if err := t.dispatch(ctx, ex, raw, &gotSnapshot); err != nil {
			t.log.Errorf("%s parse: %v", t.pair, err)
			continue
		}
		progressed = true
	}
}

// dispatch routes one frame to InitOrderBook, Update, or Trade.
//
// Coinbase tags every frame with a "type" field, so EnvelopeType decides
// directly. Bitstamp's adapter is itself the have-we-seen-a-snapshot
// state machine (its wire format never tags frames with a type), so dispatch
// defers to HasSeenSnapshot rather than tracking that state here.
// Kraken and Gemini both have the plain "first frame received is the
// snapshot" rule, which dispatch tracks via gotSnapshot.
func (t *Task) dispatch(ctx context.Context, ex adapter.Exchange, raw []byte, gotSnapshot *bool) error {
	if t.endpoint.EnvelopeType != nil {
		typ, err := t.endpoint.EnvelopeType(raw)
		if err != nil {
			return err
		}
		switch typ {
		case "snapshot":
			return ex.InitOrderBook(ctx, raw)
		case "l2update":
			return ex.Update(ctx, raw)
		case "match", "last_match":
			return ex.Trade(ctx, raw)
		default:
			return nil
		}
	}

	if bs, ok := ex.(*adapter.Bitstamp); ok {
		if !bs.HasSeenSnapshot() {
			return bs.InitOrderBook(ctx, raw)
		}
		return bs.Update(ctx, raw)
	}

	if !*gotSnapshot {
		*gotSnapshot = true
		return ex.InitOrderBook(ctx, raw)
	}
	if err := ex.Update(ctx, raw); err != nil {
		return err
	}
	return ex.Trade(ctx, raw)
}

// Monitor periodically logs a summary of a MultiBook's state: one line
// per book with its best bid/ask, then one line of running arbitrage counters. It runs on
// its own ticker, independent of the reconnect Tasks feeding the book.
type Monitor struct {
	multi    *multibook.MultiBook
	interval time.Duration
	log      *applog.Logger
}

// NewMonitor returns a Monitor for multi, ticking every interval.
func NewMonitor(multi *multibook.MultiBook, interval time.Duration) *Monitor {
	return &Monitor{
		multi:    multi,
		interval: interval,
		log:      applog.New(fmt.Sprintf("supervisor.monitor.%s", multi.Pair())),
	}
}

// Run blocks, logging a summary every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.logSummary()
		}
	}
}

func (m *Monitor) logSummary() {
	s := m.multi.Snapshot()
	for _, b := range s.Books {
		m.log.Infof("%s %s: bid=%d(%v) ask=%d(%v) depth=%d/%d pressure=%.2f theo=%.2f",
			s.Pair, b.Name, b.BestBid, b.HasBid, b.BestAsk, b.HasAsk, b.BidDepth, b.AskDepth, b.Pressure, b.TheoreticalPrice)
	}
	m.log.Infof("%s arbCount=%d above025=%d above020=%d above015=%d above010=%d above005=%d max=%.4f%%",
		s.Pair, s.Counters.ArbCount, s.Counters.AboveO25, s.Counters.AboveO20,
		s.Counters.AboveO15, s.Counters.AboveO10, s.Counters.AboveO05, s.Counters.Max*100)
}
