package cost

import (
	"errors"
	"fmt"
)

// ErrBudgetExceeded matches every *BudgetExceededError via errors.Is.
var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetExceededError reports that a request would push a user over their
// monthly budget.
type BudgetExceededError struct {
	UserID        string
	CurrentUsage  float64
	Budget        float64
	EstimatedCost float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf(
		"AI token budget exceeded for user %s. Current: $%.2f, Budget: $%.2f, Estimated cost: $%.4f",
		e.UserID, e.CurrentUsage, e.Budget, e.EstimatedCost,
	)
}

// Is reports whether target is ErrBudgetExceeded.
func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }
