package model

import (
	"errors"
	"fmt"
)

// Shared error taxonomy. Components wrap these sentinels with their own
// context so callers can branch on errors.Is across package boundaries.
var (
	ErrConfig    = errors.New("invalid configuration")
	ErrDimension = errors.New("dimension mismatch")
	ErrNumerical = errors.New("non-finite numerical result")
	ErrNotFitted = errors.New("estimator is not fitted")
)

// Validate checks hyperparameter ranges. It reports the first violation
// wrapped in ErrConfig.
func (c ReservoirConfig) Validate() error {
	if c.HiddenSize <= 0 {
		return fmt.Errorf("%w: hidden size must be > 0, got %d", ErrConfig, c.HiddenSize)
	}
	if c.Leakage <= 0 || c.Leakage > 1 {
		return fmt.Errorf("%w: leakage must be in (0, 1], got %v", ErrConfig, c.Leakage)
	}
	if c.SparsityInput < 0 || c.SparsityInput > 1 {
		return fmt.Errorf("%w: input sparsity must be in [0, 1], got %v", ErrConfig, c.SparsityInput)
	}
	if c.SparsityRecurrent < 0 || c.SparsityRecurrent > 1 {
		return fmt.Errorf("%w: recurrent sparsity must be in [0, 1], got %v", ErrConfig, c.SparsityRecurrent)
	}
	if c.Activation == "" {
		return fmt.Errorf("%w: activation name is required", ErrConfig)
	}
	return nil
}
