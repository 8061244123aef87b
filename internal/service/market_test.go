package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/efreitasn/marketsim/internal/domain"
)

func TestGetBook(t *testing.T) {
	sess := newTestSession(t)
	seed(t, sess)

	book, err := sess.GetBook(testSec, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Fatalf("got %d bids and %d asks, want 1 and 1", len(book.Bids), len(book.Asks))
	}
	if book.Spread == nil || !book.Spread.Equal(dec("1")) {
		t.Errorf("Spread = %v, want 1", book.Spread)
	}
	if !book.SnapshotAt.Equal(baseTime) {
		t.Errorf("SnapshotAt = %v, want %v", book.SnapshotAt, baseTime)
	}
}

func TestGetBook_Errors(t *testing.T) {
	sess := newTestSession(t)

	if _, err := sess.GetBook(testSec, 5); !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Errorf("expected ErrSecurityNotFound, got %v", err)
	}
	for _, depth := range []int{0, 51} {
		var verr *domain.ValidationError
		if _, err := sess.GetBook(testSec, depth); !errors.As(err, &verr) {
			t.Errorf("depth %d: expected ValidationError, got %v", depth, err)
		}
	}
}

func TestGetBook_OneSidedHasNoSpread(t *testing.T) {
	sess := newTestSession(t)
	_, err := sess.Submit([]domain.Message{
		&domain.QuoteMessage{Time: baseTime, SecurityID: testSec, Bids: []domain.Quote{{Price: dec("10"), Volume: dec("1")}}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	book, err := sess.GetBook(testSec, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Spread != nil {
		t.Errorf("Spread = %s, want nil", book.Spread)
	}
}

func TestEstimate(t *testing.T) {
	sess := newTestSession(t)
	seed(t, sess)

	est, err := sess.Estimate(testSec, domain.SideBuy, dec("60"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.FullyFillable {
		t.Error("60 against 50 of depth should not be fully fillable")
	}
	if !est.VolumeAvailable.Equal(dec("50")) {
		t.Errorf("VolumeAvailable = %s, want 50", est.VolumeAvailable)
	}
	if est.AveragePrice == nil || !est.AveragePrice.Equal(dec("101")) {
		t.Errorf("AveragePrice = %v, want 101", est.AveragePrice)
	}

	var verr *domain.ValidationError
	if _, err := sess.Estimate(testSec, "hold", dec("1")); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for side, got %v", err)
	}
	if _, err := sess.Estimate(testSec, domain.SideSell, dec("0")); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for volume, got %v", err)
	}
	if _, err := sess.Estimate(domain.NewSecurityID("X", "Y"), domain.SideSell, dec("1")); !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Errorf("expected ErrSecurityNotFound, got %v", err)
	}
}

func TestGetPrice(t *testing.T) {
	sess := newTestSession(t)
	seed(t, sess)

	resp, err := sess.GetPrice(testSec, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CurrentPrice != nil || resp.LastTradeAt != nil {
		t.Errorf("expected no price before any trade, got %+v", resp)
	}
	if resp.Window != "5m" {
		t.Errorf("Window = %q, want 5m", resp.Window)
	}

	if _, err := sess.Submit([]domain.Message{limit(1, domain.SideBuy, "101", "10")}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	resp, err = sess.GetPrice(testSec, 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.CurrentPrice == nil || !resp.CurrentPrice.Equal(dec("101")) {
		t.Errorf("CurrentPrice = %v, want 101", resp.CurrentPrice)
	}
	if resp.TradesInWindow != 1 {
		t.Errorf("TradesInWindow = %d, want 1", resp.TradesInWindow)
	}

	if _, err := sess.GetPrice(domain.NewSecurityID("X", "Y"), time.Minute); !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Errorf("expected ErrSecurityNotFound, got %v", err)
	}
	var verr *domain.ValidationError
	if _, err := sess.GetPrice(testSec, 0); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{5 * time.Minute, "5m"},
		{90 * time.Second, "1m30s"},
		{500 * time.Millisecond, "500ms"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// For any set of trades, VWAP equals sum(price * volume) / sum(volume) over
// the trades within the window of the last trade.
func TestProperty_VWAPComputation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := 5 * time.Minute
		last := baseTime.Add(time.Hour)

		var trades []*domain.Trade
		numOutside := rapid.IntRange(0, 5).Draw(t, "numOutside")
		for i := 0; i < numOutside; i++ {
			trades = append(trades, &domain.Trade{
				Price:  decimal.NewFromInt(rapid.Int64Range(1, 100000).Draw(t, fmt.Sprintf("outsidePrice-%d", i))),
				Volume: decimal.NewFromInt(rapid.Int64Range(1, 10000).Draw(t, fmt.Sprintf("outsideVolume-%d", i))),
				Time:   last.Add(-time.Duration(1000-i) * time.Second),
			})
		}

		numInside := rapid.IntRange(1, 20).Draw(t, "numInside")
		sumPV := decimal.Zero
		sumV := decimal.Zero
		for i := 0; i < numInside; i++ {
			price := decimal.NewFromInt(rapid.Int64Range(1, 100000).Draw(t, fmt.Sprintf("price-%d", i)))
			volume := decimal.NewFromInt(rapid.Int64Range(1, 10000).Draw(t, fmt.Sprintf("volume-%d", i)))
			at := last.Add(-time.Duration(numInside-1-i) * time.Second)
			trades = append(trades, &domain.Trade{Price: price, Volume: volume, Time: at})
			sumPV = sumPV.Add(price.Mul(volume))
			sumV = sumV.Add(volume)
		}

		resp := VWAP(testSec, trades, window)
		if resp.TradesInWindow != numInside {
			t.Fatalf("TradesInWindow = %d, want %d", resp.TradesInWindow, numInside)
		}
		want := sumPV.DivRound(sumV, domain.MaxDecimalPlaces)
		if resp.CurrentPrice == nil || !resp.CurrentPrice.Equal(want) {
			t.Fatalf("CurrentPrice = %v, want %s", resp.CurrentPrice, want)
		}
		if !resp.LastTradeAt.Equal(last) {
			t.Fatalf("LastTradeAt = %v, want %v", resp.LastTradeAt, last)
		}
	})
}
