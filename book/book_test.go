package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotFixture() Snapshot {
	return Snapshot{
		Bids: []PriceLevel{
			{Level: 10000, Amount: 1.0},
			{Level: 9950, Amount: 2.0},
		},
		Asks: []PriceLevel{
			{Level: 10050, Amount: 1.0},
			{Level: 10100, Amount: 3.0},
		},
	}
}

func TestInitSetsBestPricesAndPressure(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	bid, ok := b.BestBid()
	require.True(t, ok)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, Level(10000), bid)
	assert.Equal(t, Level(10050), ask)

	// Init alone, with no intervening Update, must already compute pressure
	// from the snapshot's top of book.
	assert.InDelta(t, 10025.0, b.Pressure(), 1e-9)
}

func TestDeleteViaZeroAmount(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	b.Update(Update{Changes: []Change{{Side: Buy, PriceLevel: PriceLevel{Level: 10000, Amount: 0}}}})

	_, ok := b.Lookup(Buy, 10000)
	assert.False(t, ok)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Level(9950), bid)
}

func TestStaleTipIsSkippedLazily(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	b.Update(Update{Changes: []Change{{Side: Sell, PriceLevel: PriceLevel{Level: 10050, Amount: 0}}}})
	b.Update(Update{Changes: []Change{{Side: Sell, PriceLevel: PriceLevel{Level: 10040, Amount: 0.5}}}})

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, Level(10040), ask)

	pl, ok := b.Lookup(Sell, ask)
	require.True(t, ok)
	assert.Equal(t, ask, pl.Level)
}

func TestTradeImpulse(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(Snapshot{
		Bids: []PriceLevel{{Level: 10000, Amount: 1.0}},
		Asks: []PriceLevel{{Level: 10050, Amount: 1.0}},
	}))
	require.InDelta(t, 10025.0, b.Pressure(), 1e-9)

	b.UpdateImpulse(Trade{Side: Buy, Size: 2.0, Price: 10050})
	assert.InDelta(t, 10075.0, b.TheoreticalPrice(), 1e-6)

	// Any subsequent non-trade update resets the theoretical price to 0.
	b.Update(Update{Changes: []Change{{Side: Buy, PriceLevel: PriceLevel{Level: 8900, Amount: 1.0}}}})
	assert.Equal(t, 0.0, b.TheoreticalPrice())
}

func TestInitTwiceReplacesState(t *testing.T) {
	t.Parallel()
	b := New("kraken", "ETH-USD")
	require.NoError(t, b.Init(snapshotFixture()))
	require.NoError(t, b.Init(Snapshot{
		Bids: []PriceLevel{{Level: 200, Amount: 1}},
		Asks: []PriceLevel{{Level: 210, Amount: 1}},
	}))

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, Level(200), bid)
	assert.Equal(t, Level(210), ask)
	assert.Equal(t, 1, b.BidDepth())
	assert.Equal(t, 1, b.AskDepth())
}

func TestRepeatedZeroDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New("kraken", "ETH-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	del := Update{Changes: []Change{{Side: Buy, PriceLevel: PriceLevel{Level: 9950, Amount: 0}}}}
	b.Update(del)
	b.Update(del)

	_, ok := b.Lookup(Buy, 9950)
	assert.False(t, ok)
}

func TestSingleLevelSideIsBest(t *testing.T) {
	t.Parallel()
	b := New("bitstamp", "ETH-USD")
	require.NoError(t, b.Init(Snapshot{
		Bids: []PriceLevel{{Level: 500, Amount: 1}},
		Asks: []PriceLevel{{Level: 550, Amount: 1}},
	}))
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Level(500), bid)
}

func TestCompactionPreservesLookupParity(t *testing.T) {
	t.Parallel()
	b := New("gemini", "ETH-USD")
	require.NoError(t, b.Init(Snapshot{
		Bids: []PriceLevel{{Level: 100, Amount: 1}},
		Asks: []PriceLevel{{Level: 200, Amount: 1}},
	}))

	// Churn the same bid level past MaxBookDepth distinct heap pushes to
	// force at least one compaction; best/lookup parity must survive it.
	for i := 0; i < MaxBookDepth+100; i++ {
		b.Update(Update{Changes: []Change{{Side: Buy, PriceLevel: PriceLevel{Level: 100, Amount: float64(i%3 + 1)}}}})
	}
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, Level(100), bid)
	assert.Equal(t, 1, b.BidDepth())
}

func TestInitRejectsOversizedSnapshot(t *testing.T) {
	t.Parallel()
	levels := make([]PriceLevel, MaxSnapshotLevels+1)
	for i := range levels {
		levels[i] = PriceLevel{Level: Level(i + 1), Amount: 1}
	}
	b := New("coinbase", "BTC-USD")
	err := b.Init(Snapshot{Bids: levels, Asks: []PriceLevel{{Level: 999999, Amount: 1}}})
	assert.Error(t, err)
}

func TestUpdateOverCapacityChangesPanics(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	changes := make([]Change, MaxUpdateChanges+1)
	for i := range changes {
		changes[i] = Change{Side: Buy, PriceLevel: PriceLevel{Level: Level(i + 1), Amount: 1}}
	}
	assert.Panics(t, func() { b.Update(Update{Changes: changes}) })
}

func TestDesyncPanicsOnCrossedBook(t *testing.T) {
	t.Parallel()
	b := New("coinbase", "BTC-USD")
	require.NoError(t, b.Init(snapshotFixture()))

	assert.Panics(t, func() {
		b.Update(Update{Changes: []Change{{Side: Buy, PriceLevel: PriceLevel{Level: 20000, Amount: 1}}}})
	})
}

func TestParseLevelScalesByHundred(t *testing.T) {
	t.Parallel()
	lvl, err := ParseLevel("100.00")
	require.NoError(t, err)
	assert.Equal(t, Level(10000), lvl)

	lvl, err = ParseLevel("12.34")
	require.NoError(t, err)
	assert.Equal(t, Level(1234), lvl)

	_, err = ParseLevel("not-a-number")
	assert.Error(t, err)
}
