// Package commission defines how the engine obtains commission amounts.
// Rule evaluation is owned by the caller; the engine only invokes an
// Evaluator once per emitted execution and accumulates the result.
package commission

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Evaluator returns the commission charged for an execution event, or nil
// when the event is not chargeable. Implementations must be pure functions
// of the event.
type Evaluator interface {
	Evaluate(exec *domain.ExecutionMessage) *decimal.Decimal
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(exec *domain.ExecutionMessage) *decimal.Decimal

// Evaluate calls f(exec).
func (f EvaluatorFunc) Evaluate(exec *domain.ExecutionMessage) *decimal.Decimal {
	return f(exec)
}

// None never charges anything.
var None Evaluator = EvaluatorFunc(func(*domain.ExecutionMessage) *decimal.Decimal { return nil })

// PerTrade charges a fixed amount for every execution carrying a trade.
func PerTrade(amount decimal.Decimal) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		if !exec.HasTrade() {
			return nil
		}
		v := amount
		return &v
	})
}

// PerVolume charges rate × traded volume.
func PerVolume(rate decimal.Decimal) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		if !exec.HasTrade() {
			return nil
		}
		v := exec.TradeVolume.Mul(rate)
		return &v
	})
}

// Turnover charges rate × price × volume of the trade.
func Turnover(rate decimal.Decimal) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		if !exec.HasTrade() {
			return nil
		}
		v := exec.TradePrice.Mul(exec.TradeVolume).Mul(rate)
		return &v
	})
}

// PerOrder charges a fixed amount when an order is accepted (first Active
// transition without a trade).
func PerOrder(amount decimal.Decimal) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		if exec.HasTrade() || exec.OrderState != domain.OrderStateActive {
			return nil
		}
		v := amount
		return &v
	})
}

// Sum evaluates every evaluator and adds the non-nil results. It returns nil
// when none of them charged.
func Sum(evaluators ...Evaluator) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		var total *decimal.Decimal
		for _, e := range evaluators {
			v := e.Evaluate(exec)
			if v == nil {
				continue
			}
			if total == nil {
				t := *v
				total = &t
				continue
			}
			t := total.Add(*v)
			total = &t
		}
		return total
	})
}
