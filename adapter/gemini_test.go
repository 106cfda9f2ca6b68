package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdg3/prism/multibook"
)

const geminiSnapshotFrame = `{
	"type": "l2_updates",
	"symbol": "BTCUSD",
	"changes": [
		["buy", "9000.00", "1.0"],
		["buy", "8999.50", "2.0"],
		["sell", "9001.00", "1.0"],
		["sell", "9002.00", "3.0"]
	],
	"auction_events": []
}`

const geminiDeltaFrame = `{
	"type": "l2_updates",
	"symbol": "BTCUSD",
	"changes": [
		["sell", "9001.00", "0"]
	],
	"trades": [
		{"side": "buy", "price": "9001.00", "quantity": "0.5"}
	]
}`

func TestGeminiInitOrderBookSplitsChangesBySide(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"gemini", "coinbase"})
	g := NewGemini(m, 0)

	require.NoError(t, g.InitOrderBook(t.Context(), []byte(geminiSnapshotFrame)))

	bk := m.Book(0)
	assert.Equal(t, 2, bk.BidDepth)
	assert.Equal(t, 2, bk.AskDepth)
}

func TestGeminiUpdateAndTradeInSameFrame(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"gemini", "coinbase"})
	g := NewGemini(m, 0)
	require.NoError(t, g.InitOrderBook(t.Context(), []byte(geminiSnapshotFrame)))

	require.NoError(t, g.Update(t.Context(), []byte(geminiDeltaFrame)))
	bk := m.Book(0)
	assert.Equal(t, 1, bk.AskDepth)

	require.NoError(t, g.Trade(t.Context(), []byte(geminiDeltaFrame)))
}

func TestGeminiChangeTupleRejectsUnknownSide(t *testing.T) {
	t.Parallel()
	var c geminiChange
	err := c.UnmarshalJSON([]byte(`["hold", "1.00", "1.0"]`))
	assert.Error(t, err)
}
