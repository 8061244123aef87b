package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/marketsim/internal/domain"
)

func limitOrder(side domain.Side, price, volume string) *domain.SimulatedOrder {
	p := dec(price)
	return &domain.SimulatedOrder{
		SecurityID: testSec,
		Side:       side,
		Price:      &p,
		Volume:     dec(volume),
		Balance:    dec(volume),
		Type:       domain.OrderTypeLimit,
		State:      domain.OrderStateActive,
	}
}

func marketOrder(side domain.Side, volume string) *domain.SimulatedOrder {
	return &domain.SimulatedOrder{
		SecurityID: testSec,
		Side:       side,
		Volume:     dec(volume),
		Balance:    dec(volume),
		Type:       domain.OrderTypeMarket,
		State:      domain.OrderStateActive,
	}
}

func ladderBook(t *testing.T) *QuoteBook {
	t.Helper()
	b := NewQuoteBook(testSec)
	require.NoError(t, b.Replace(
		[]domain.Quote{q("100", "5"), q("99", "5")},
		[]domain.Quote{q("101", "5"), q("102", "5")},
	))
	return b
}

func TestTryMatch_LimitBuyWalksAsks(t *testing.T) {
	b := ladderBook(t)

	fills, remaining, err := TryMatch(limitOrder(domain.SideBuy, "102", "12"), b)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "101", fills[0].Price.String())
	assert.Equal(t, "5", fills[0].Volume.String())
	assert.Equal(t, "102", fills[1].Price.String())
	assert.Equal(t, "5", fills[1].Volume.String())
	assert.Equal(t, "2", remaining.String())

	_, ok := b.BestAsk()
	assert.False(t, ok, "matched liquidity must be consumed")
}

func TestTryMatch_LimitCrossingIsInclusive(t *testing.T) {
	b := ladderBook(t)

	fills, remaining, err := TryMatch(limitOrder(domain.SideSell, "100", "3"), b)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "100", fills[0].Price.String())
	assert.True(t, remaining.IsZero())
}

func TestTryMatch_FillsAtBookPrice(t *testing.T) {
	b := ladderBook(t)

	fills, _, err := TryMatch(limitOrder(domain.SideBuy, "150", "1"), b)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "101", fills[0].Price.String())
}

func TestTryMatch_NonCrossingLimitRests(t *testing.T) {
	b := ladderBook(t)

	fills, remaining, err := TryMatch(limitOrder(domain.SideBuy, "100", "10"), b)
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Equal(t, "10", remaining.String())
}

func TestTryMatch_Market(t *testing.T) {
	t.Run("walks depth and reports residual", func(t *testing.T) {
		b := ladderBook(t)
		fills, remaining, err := TryMatch(marketOrder(domain.SideSell, "12"), b)
		require.NoError(t, err)
		require.Len(t, fills, 2)
		assert.Equal(t, "100", fills[0].Price.String())
		assert.Equal(t, "99", fills[1].Price.String())
		assert.Equal(t, "2", remaining.String())
	})

	t.Run("empty opposite side", func(t *testing.T) {
		b := NewQuoteBook(testSec)
		require.NoError(t, b.Replace([]domain.Quote{q("100", "1")}, nil))
		fills, _, err := TryMatch(marketOrder(domain.SideBuy, "1"), b)
		assert.ErrorIs(t, err, domain.ErrNoLiquidity)
		assert.Empty(t, fills)
	})

	t.Run("no book", func(t *testing.T) {
		_, _, err := TryMatch(marketOrder(domain.SideBuy, "1"), nil)
		assert.ErrorIs(t, err, domain.ErrNoLiquidity)
	})
}

func TestTryMatch_UnboundedTouch(t *testing.T) {
	b := NewQuoteBook(testSec)
	b.Touch(dec("100"), decimal.Zero)

	fills, remaining, err := TryMatch(limitOrder(domain.SideBuy, "100", "1000000"), b)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "1000000", fills[0].Volume.String())
	assert.True(t, remaining.IsZero())
}

func TestEstimateMarket(t *testing.T) {
	b := ladderBook(t)

	est := EstimateMarket(b, domain.SideBuy, dec("8"))
	assert.True(t, est.FullyFillable)
	assert.Equal(t, "8", est.VolumeAvailable.String())
	require.NotNil(t, est.Total)
	assert.Equal(t, "811", est.Total.String())
	require.Len(t, est.Levels, 2)

	// the estimate must not consume liquidity
	ask, _ := b.BestAsk()
	assert.Equal(t, "5", ask.Volume.String())

	est = EstimateMarket(b, domain.SideBuy, dec("20"))
	assert.False(t, est.FullyFillable)
	assert.Equal(t, "10", est.VolumeAvailable.String())

	est = EstimateMarket(nil, domain.SideBuy, dec("1"))
	assert.Nil(t, est.AveragePrice)
	assert.False(t, est.FullyFillable)
}
