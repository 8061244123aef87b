package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/fault"
)

var (
	testSec  = domain.NewSecurityID("SBER", "TQBR")
	baseTime = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func newTestService(t *testing.T) *SessionService {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := NewSessionService(config.Engine{VerifyMode: true}, 10*time.Millisecond, logger)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
	svc.clock = func() time.Time { return baseTime }
	return svc
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	svc := newTestService(t)
	sess, err := svc.Create(CreateSessionRequest{Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close(sess.ID, false) })
	return sess
}

// seed funds "pf" and quotes a 100/101 book.
func seed(t *testing.T, sess *Session) {
	t.Helper()
	_, err := sess.Submit([]domain.Message{
		&domain.FundPositionMessage{Time: baseTime, SecurityID: domain.CashSecurity, PortfolioName: "pf", BeginValue: dec("1000000")},
		&domain.QuoteMessage{
			Time: baseTime, SecurityID: testSec,
			Bids: []domain.Quote{{Price: dec("100"), Volume: dec("50")}},
			Asks: []domain.Quote{{Price: dec("101"), Volume: dec("50")}},
		},
	})
	require.NoError(t, err)
}

func limit(tx int64, side domain.Side, price, volume string) *domain.OrderRegisterMessage {
	return &domain.OrderRegisterMessage{
		Time: baseTime, TransactionID: tx, SecurityID: testSec, PortfolioName: "pf",
		Side: side, Price: decp(price), Volume: dec(volume), OrderType: domain.OrderTypeLimit,
	}
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Create(CreateSessionRequest{Name: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "session-1", sess.ID)
	assert.Equal(t, "alpha", sess.Name)
	assert.True(t, sess.Settings.VerifyMode)
	assert.Equal(t, baseTime, sess.CreatedAt)

	got, err := svc.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	infos := svc.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "alpha", infos[0].Name)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name string
		req  CreateSessionRequest
	}{
		{"bad name", CreateSessionRequest{Name: "no spaces allowed"}},
		{"bad probability", CreateSessionRequest{Engine: &config.Engine{Fault: fault.Config{RejectProbability: 3}}}},
		{"bad security", CreateSessionRequest{Engine: &config.Engine{Securities: []string{"SBER"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(tt.req)
			var verr *domain.ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Empty(t, svc.List())
}

func TestCreate_EngineOverride(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.Create(CreateSessionRequest{Engine: &config.Engine{
		VerifyMode: true,
		Securities: []string{"GAZP@TQBR"},
	}})
	require.NoError(t, err)

	_, err = sess.GetBook(domain.NewSecurityID("GAZP", "TQBR"), 5)
	assert.NoError(t, err)
}

func TestSubmit_ReturnsOutputs(t *testing.T) {
	sess := newTestSession(t)
	seed(t, sess)

	out, err := sess.Submit([]domain.Message{limit(1, domain.SideBuy, "101", "10")})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, domain.MessageTypeExecution, out[0].Type())
	assert.Equal(t, domain.MessageTypePositionChange, out[3].Type())

	// fund change plus this order's four messages
	msgs, next, err := sess.Messages(0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
	assert.Equal(t, 5, next)
}

func TestSubmit_StampsMissingTime(t *testing.T) {
	sess := newTestSession(t)
	out, err := sess.Submit([]domain.Message{
		&domain.FundPositionMessage{SecurityID: domain.CashSecurity, PortfolioName: "pf", BeginValue: dec("10")},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, baseTime, out[0].MessageTime())
}

func TestSubmit_Validation(t *testing.T) {
	sess := newTestSession(t)

	_, err := sess.Submit(nil)
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = sess.Submit([]domain.Message{&domain.ExecutionMessage{}})
	assert.True(t, errors.As(err, &verr))
}

func TestMessages_Paging(t *testing.T) {
	sess := newTestSession(t)
	seed(t, sess)
	_, err := sess.Submit([]domain.Message{limit(1, domain.SideBuy, "101", "10")})
	require.NoError(t, err)

	page, next, err := sess.Messages(1, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 3, next)

	page, next, err = sess.Messages(99, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, 99, next)

	_, _, err = sess.Messages(-1, 0)
	assert.Error(t, err)
	_, _, err = sess.Messages(0, 5000)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.Create(CreateSessionRequest{})
	require.NoError(t, err)
	sub := sess.Subscribe(4)

	res, err := svc.Close(sess.ID, true)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, res.SessionID)

	_, open := <-sub.C
	assert.False(t, open, "subscription should be closed")

	_, err = sess.Submit([]domain.Message{&domain.ResetMessage{Time: baseTime}})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	_, err = svc.Get(sess.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Close(sess.ID, true)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestClose_DrainsOrDiscardsDeferredOutput(t *testing.T) {
	for _, drain := range []bool{true, false} {
		t.Run(fmt.Sprintf("drain=%v", drain), func(t *testing.T) {
			svc := newTestService(t)
			sess, err := svc.Create(CreateSessionRequest{Engine: &config.Engine{
				Fault: fault.Config{LatencyMin: time.Hour, LatencyMax: time.Hour},
			}})
			require.NoError(t, err)

			out, err := sess.Submit([]domain.Message{
				&domain.FundPositionMessage{Time: baseTime, SecurityID: domain.CashSecurity, PortfolioName: "pf", BeginValue: dec("10")},
			})
			require.NoError(t, err)
			assert.Empty(t, out)
			assert.Equal(t, 1, sess.Info().PendingBatches)

			res, err := svc.Close(sess.ID, drain)
			require.NoError(t, err)
			if drain {
				assert.Equal(t, 1, res.Drained)
				assert.Equal(t, 1, sess.journal.Len())
			} else {
				assert.Equal(t, 1, res.Discarded)
				assert.Equal(t, 0, sess.journal.Len())
			}
		})
	}
}

func TestDeferredOutputFlushedByTicker(t *testing.T) {
	svc := newTestService(t)
	var mu sync.Mutex
	now := baseTime
	svc.clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	sess, err := svc.Create(CreateSessionRequest{Engine: &config.Engine{
		Fault: fault.Config{LatencyMin: time.Second, LatencyMax: time.Second},
	}})
	require.NoError(t, err)
	defer svc.Close(sess.ID, false)

	_, err = sess.Submit([]domain.Message{
		&domain.FundPositionMessage{Time: baseTime, SecurityID: domain.CashSecurity, PortfolioName: "pf", BeginValue: dec("10")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sess.journal.Len())

	mu.Lock()
	now = baseTime.Add(2 * time.Second)
	mu.Unlock()

	assert.Eventually(t, func() bool { return sess.journal.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCloseAll(t *testing.T) {
	svc := newTestService(t)
	for i := 0; i < 3; i++ {
		_, err := svc.Create(CreateSessionRequest{})
		require.NoError(t, err)
	}
	svc.CloseAll(false)
	assert.Empty(t, svc.List())
}
