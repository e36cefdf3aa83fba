package search

import "fmt"

// BudgetPolicy sizes the evaluation budget of one search round when a
// caller runs several rounds in sequence.
type BudgetPolicy interface {
	Name() string
	Budget(baseBudget, round, totalRounds int) int
}

type FixedBudgetPolicy struct{}

func (FixedBudgetPolicy) Name() string { return "fixed" }

func (FixedBudgetPolicy) Budget(baseBudget, _round, _totalRounds int) int {
	if baseBudget < 0 {
		return 0
	}
	return baseBudget
}

// LinearDecayBudgetPolicy shrinks the budget as rounds progress, never
// below MinBudget.
type LinearDecayBudgetPolicy struct {
	MinBudget int
}

func (LinearDecayBudgetPolicy) Name() string { return "linear_decay" }

func (p LinearDecayBudgetPolicy) Budget(baseBudget, round, totalRounds int) int {
	if baseBudget <= 0 {
		return 0
	}
	if totalRounds <= 0 {
		return baseBudget
	}
	remaining := totalRounds - round
	if remaining < 1 {
		remaining = 1
	}
	budget := (baseBudget * remaining) / totalRounds
	if budget < p.MinBudget {
		budget = p.MinBudget
	}
	if budget < 0 {
		return 0
	}
	return budget
}

func BudgetPolicyFromConfig(name string, param float64) (BudgetPolicy, error) {
	switch name {
	case "", "fixed", "const":
		return FixedBudgetPolicy{}, nil
	case "linear_decay":
		min := int(param)
		if min < 1 {
			min = 1
		}
		return LinearDecayBudgetPolicy{MinBudget: min}, nil
	default:
		return nil, fmt.Errorf("unsupported budget policy: %s", name)
	}
}
