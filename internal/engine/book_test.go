package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/marketsim/internal/domain"
)

var testSec = domain.NewSecurityID("SBER", "TQBR")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func q(price, volume string) domain.Quote {
	return domain.Quote{Price: dec(price), Volume: dec(volume)}
}

func TestQuoteBook_ReplaceOrdersLevels(t *testing.T) {
	b := NewQuoteBook(testSec)
	err := b.Replace(
		[]domain.Quote{q("99", "5"), q("100", "1"), q("98", "2")},
		[]domain.Quote{q("103", "1"), q("101", "4"), q("102", "2")},
	)
	require.NoError(t, err)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100", bid.Price.String())

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "101", ask.Price.String())

	bids, asks := b.Depth(10)
	assert.Equal(t, []string{"100", "99", "98"}, prices(bids))
	assert.Equal(t, []string{"101", "102", "103"}, prices(asks))

	bids, _ = b.Depth(2)
	assert.Len(t, bids, 2)
}

func TestQuoteBook_DropsEmptyAndAggregates(t *testing.T) {
	b := NewQuoteBook(testSec)
	require.NoError(t, b.Replace(
		[]domain.Quote{q("100", "0"), q("99", "1"), q("99", "2")},
		nil,
	))

	bids, asks := b.Depth(10)
	require.Len(t, bids, 1)
	assert.Equal(t, "99", bids[0].Price.String())
	assert.Equal(t, "3", bids[0].Volume.String())
	assert.Empty(t, asks)
}

func TestQuoteBook_RejectsCrossedSnapshot(t *testing.T) {
	b := NewQuoteBook(testSec)
	require.NoError(t, b.Replace([]domain.Quote{q("100", "1")}, []domain.Quote{q("101", "1")}))

	err := b.Replace([]domain.Quote{q("101", "1")}, []domain.Quote{q("101", "1")})
	assert.ErrorIs(t, err, domain.ErrCrossedBook)

	bid, _ := b.BestBid()
	assert.Equal(t, "100", bid.Price.String(), "previous snapshot must be kept")
}

func TestQuoteBook_Mid(t *testing.T) {
	b := NewQuoteBook(testSec)
	_, ok := b.Mid()
	assert.False(t, ok)

	require.NoError(t, b.Replace([]domain.Quote{q("100", "1")}, []domain.Quote{q("101", "1")}))
	mid, ok := b.Mid()
	require.True(t, ok)
	assert.Equal(t, "100.5", mid.String())
}

func TestQuoteBook_Consume(t *testing.T) {
	b := NewQuoteBook(testSec)
	require.NoError(t, b.Replace(nil, []domain.Quote{q("101", "5"), q("102", "5")}))

	b.Consume(domain.SideSell, dec("101"), dec("3"))
	ask, _ := b.BestAsk()
	assert.Equal(t, "2", ask.Volume.String())

	b.Consume(domain.SideSell, dec("101"), dec("2"))
	ask, _ = b.BestAsk()
	assert.Equal(t, "102", ask.Price.String())

	// unknown level is a no-op
	b.Consume(domain.SideSell, dec("150"), dec("2"))
	_, asks := b.Depth(5)
	assert.Len(t, asks, 1)
}

func TestQuoteBook_TouchIsLocked(t *testing.T) {
	b := NewQuoteBook(testSec)
	b.Touch(dec("100"), decimal.Zero)

	bid, ok := b.BestBid()
	require.True(t, ok)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, bid.Price.Equal(ask.Price))
	assert.True(t, bid.Unbounded)

	// unbounded levels survive consumption
	b.Consume(domain.SideBuy, dec("100"), dec("1000000"))
	_, ok = b.BestBid()
	assert.True(t, ok)

	b.Touch(dec("100"), dec("5"))
	ask, _ = b.BestAsk()
	assert.False(t, ask.Unbounded)
	assert.Equal(t, "5", ask.Volume.String())

	b.Clear()
	assert.True(t, b.IsEmpty())
}

func TestBookManager(t *testing.T) {
	bm := NewBookManager()
	_, ok := bm.BestBid(testSec)
	assert.False(t, ok)

	require.NoError(t, bm.ApplyQuotes(testSec, []domain.Quote{q("10", "1")}, []domain.Quote{q("11", "1")}))
	bid, ok := bm.BestBid(testSec)
	require.True(t, ok)
	assert.Equal(t, "10", bid.Price.String())

	bm.ApplyTouch(testSec, dec("12"), decimal.Zero)
	ask, _ := bm.BestAsk(testSec)
	assert.Equal(t, "12", ask.Price.String())

	bm.ClearTouch(testSec)
	_, ok = bm.BestAsk(testSec)
	assert.False(t, ok)
	bm.ClearTouch(domain.NewSecurityID("NONE", "X"))

	assert.Same(t, bm.GetOrCreate(testSec), bm.GetOrCreate(testSec))

	bm.Reset()
	_, ok = bm.Get(testSec)
	assert.False(t, ok)
}

func prices(levels []Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.Price.String()
	}
	return out
}
