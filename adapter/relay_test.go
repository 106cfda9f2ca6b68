package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdg3/prism/book"
	"github.com/wdg3/prism/multibook"
)

func TestRelayInitOrderBookIsUnsupported(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"relay", "coinbase"})
	r := NewRelay(m, 0)
	assert.Error(t, r.InitOrderBook(t.Context(), []byte(`{}`)))
}

func TestRelayUpdateAppliesBothSides(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"relay", "coinbase"})
	r := NewRelay(m, 0)

	raw := []byte(`{
		"message_type": "book",
		"pair": "BTC-USD",
		"sent": 1700000000000,
		"bid_level": "30000.00",
		"bid_amount": "1.5",
		"ask_level": "30001.00",
		"ask_amount": "2.0"
	}`)
	require.NoError(t, r.Update(t.Context(), raw))

	bk := m.Book(0)
	assert.True(t, bk.HasBid)
	assert.True(t, bk.HasAsk)
	assert.Equal(t, book.Level(3000000), bk.BestBid)
	assert.Equal(t, book.Level(3000100), bk.BestAsk)
}

func TestRelayTradeAppliesBuyAggressorImpulse(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"relay", "coinbase"})
	r := NewRelay(m, 0)
	require.NoError(t, r.Update(t.Context(), []byte(`{
		"message_type": "book",
		"bid_level": "30000.00",
		"bid_amount": "1.0",
		"ask_level": "30001.00",
		"ask_amount": "1.0"
	}`)))

	err := r.Trade(t.Context(), []byte(`{
		"message_type": "trade",
		"price": "30001.00",
		"amount": "0.5",
		"buy": true
	}`))
	assert.NoError(t, err)
}

func TestRelayUpdateIgnoresNonBookMessageType(t *testing.T) {
	t.Parallel()
	m := multibook.New("BTC-USD", []string{"relay", "coinbase"})
	r := NewRelay(m, 0)
	assert.NoError(t, r.Update(t.Context(), []byte(`{"message_type":"trade"}`)))
}
