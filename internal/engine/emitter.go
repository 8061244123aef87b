package engine

import (
	"time"

	"github.com/efreitasn/marketsim/internal/commission"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/fault"
	"github.com/efreitasn/marketsim/internal/ledger"
)

// OutputFunc receives every output message in emission order.
type OutputFunc func(msg domain.Message)

// emitter assembles the output batch of one input message: executions in
// order of occurrence followed by the ledger's position deltas. The batch is
// delivered directly or deferred through the delay queue.
type emitter struct {
	out        OutputFunc
	commission commission.Evaluator
	ledger     *ledger.Ledger
	injector   *fault.Injector
	queue      *fault.DelayQueue

	batch []domain.Message
}

func newEmitter(out OutputFunc, eval commission.Evaluator, l *ledger.Ledger, inj *fault.Injector) *emitter {
	if out == nil {
		out = func(domain.Message) {}
	}
	if eval == nil {
		eval = commission.None
	}
	e := &emitter{out: out, commission: eval, ledger: l, injector: inj}
	e.queue = fault.NewDelayQueue(e.deliver)
	return e
}

// execution charges commission for exec and appends it to the batch.
func (e *emitter) execution(exec *domain.ExecutionMessage) {
	if fee := e.commission.Evaluate(exec); fee != nil && e.chargeable(exec) {
		v := *fee
		exec.Commission = &v
		e.ledger.AddCommission(exec.PortfolioName, exec.SecurityID, v)
	}
	e.batch = append(e.batch, exec)
}

// chargeable reports whether a commission can be booked for exec: the
// portfolio must be funded and the security tradable.
func (e *emitter) chargeable(exec *domain.ExecutionMessage) bool {
	return e.ledger.HasPortfolio(exec.PortfolioName) &&
		!exec.SecurityID.IsZero() &&
		!exec.SecurityID.IsCash()
}

// finish closes the batch for the current input message and emits it.
func (e *emitter) finish(now time.Time, security domain.SecurityID) {
	for _, change := range e.ledger.Changes(now) {
		e.batch = append(e.batch, change)
	}
	batch := e.batch
	e.batch = nil
	if len(batch) == 0 {
		return
	}

	if e.injector.Delays() {
		e.queue.Push(batchKeys(security, batch), now, e.injector.Latency(), batch)
		return
	}
	e.deliver(batch)
}

// batchKeys returns the streams a batch must stay ordered on: the input
// security and every position it changes, cash included.
func batchKeys(security domain.SecurityID, batch []domain.Message) []fault.Key {
	keys := []fault.Key{{Security: security}}
	for _, m := range batch {
		if pc, ok := m.(*domain.PositionChangeMessage); ok {
			keys = append(keys, fault.Key{Portfolio: pc.PortfolioName, Security: pc.SecurityID})
		}
	}
	return keys
}

func (e *emitter) deliver(msgs []domain.Message) {
	for _, m := range msgs {
		e.out(m)
	}
}

// discard drops the open batch and every deferred one.
func (e *emitter) discard() int {
	e.batch = nil
	return e.queue.Discard()
}
