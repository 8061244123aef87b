package commission

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/marketsim/internal/domain"
)

// Rule types accepted in configuration files.
const (
	RuleTypePerTrade  = "per_trade"
	RuleTypePerVolume = "per_volume"
	RuleTypeTurnover  = "turnover"
	RuleTypePerOrder  = "per_order"
)

// Rule is the serialized form of a commission rule.
type Rule struct {
	Type      string `yaml:"type" json:"type"`
	Value     string `yaml:"value" json:"value"`
	Security  string `yaml:"security,omitempty" json:"security,omitempty"`
	Portfolio string `yaml:"portfolio,omitempty" json:"portfolio,omitempty"`
}

// Build turns a list of rules into a single Evaluator that sums them.
// An empty list yields None.
func Build(rules []Rule) (Evaluator, error) {
	if len(rules) == 0 {
		return None, nil
	}
	evaluators := make([]Evaluator, 0, len(rules))
	for i, r := range rules {
		e, err := r.evaluator()
		if err != nil {
			return nil, errors.Wrapf(err, "commission rule %d", i)
		}
		evaluators = append(evaluators, e)
	}
	return Sum(evaluators...), nil
}

func (r Rule) evaluator() (Evaluator, error) {
	value, err := domain.ParseDecimal(r.Value)
	if err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if value.IsNegative() {
		return nil, errors.Errorf("value %s must not be negative", value)
	}

	var base Evaluator
	switch r.Type {
	case RuleTypePerTrade:
		base = PerTrade(value)
	case RuleTypePerVolume:
		base = PerVolume(value)
	case RuleTypeTurnover:
		base = Turnover(value)
	case RuleTypePerOrder:
		base = PerOrder(value)
	default:
		return nil, errors.Errorf("unknown rule type %q", r.Type)
	}

	var security *domain.SecurityID
	if r.Security != "" {
		id, err := domain.ParseSecurityID(r.Security)
		if err != nil {
			return nil, errors.Wrap(err, "security")
		}
		security = &id
	}
	if security == nil && r.Portfolio == "" {
		return base, nil
	}
	return filtered(base, security, r.Portfolio), nil
}

func filtered(e Evaluator, security *domain.SecurityID, portfolio string) Evaluator {
	return EvaluatorFunc(func(exec *domain.ExecutionMessage) *decimal.Decimal {
		if security != nil && exec.SecurityID != *security {
			return nil
		}
		if portfolio != "" && exec.PortfolioName != portfolio {
			return nil
		}
		return e.Evaluate(exec)
	})
}
