package engine

import "fmt"

// RoundBudget bounds how many frontier rounds the resolver spends on one
// method.
//
// Each method scan has its own budget. Together with the visited-method
// set this guarantees termination on obfuscated input:
//   - The visited set catches delegation cycles (A forwards to B forwards to A)
//   - The round budget catches long or pathological branch chains
type RoundBudget struct {
	max     int
	current int
}

// NewRoundBudget creates a budget of max rounds.
func NewRoundBudget(max int) *RoundBudget {
	return &RoundBudget{max: max}
}

// Spend consumes one round. It returns RoundsExceededError once the budget
// is exhausted.
func (b *RoundBudget) Spend(method string) error {
	if b.current >= b.max {
		return &RoundsExceededError{Method: method, Rounds: b.current, Limit: b.max}
	}
	b.current++
	return nil
}

// Current returns the number of rounds spent.
func (b *RoundBudget) Current() int { return b.current }

// Max returns the round limit.
func (b *RoundBudget) Max() int { return b.max }

// RoundsExceededError reports a frontier that was still non-empty when the
// budget ran out. The resolver logs it and keeps the partial result.
type RoundsExceededError struct {
	Method string
	Rounds int
	Limit  int
}

// Error implements the error interface.
func (e *RoundsExceededError) Error() string {
	return fmt.Sprintf("%s: frontier not exhausted after %d rounds (limit %d)", e.Method, e.Rounds, e.Limit)
}
