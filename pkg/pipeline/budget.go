package pipeline

// RetryBudget counts the refinements a run may still perform. It is shared by every
// hypothesis of the run and never reset.
type RetryBudget struct {
	max  int
	used int
}

// NewRetryBudget returns a budget allowing max refinements.
func NewRetryBudget(max int) *RetryBudget {
	if max < 0 {
		max = 0
	}
	return &RetryBudget{max: max}
}

// TryConsume takes one unit if any remain.
func (b *RetryBudget) TryConsume() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

func (b *RetryBudget) Remaining() int { return b.max - b.used }

func (b *RetryBudget) Used() int { return b.used }
