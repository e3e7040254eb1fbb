package research

import "sync"

// RunBudget caps the work of one frontier run. It is shared by every branch.
type RunBudget struct {
	mu                 sync.Mutex
	maxQueries         int
	maxDepthIterations int
	queries            int
	depthIterations    int
}

// NewRunBudget returns a budget allowing maxQueries searches and
// maxDepthIterations recursive expansions.
func NewRunBudget(maxQueries, maxDepthIterations int) *RunBudget {
	return &RunBudget{maxQueries: maxQueries, maxDepthIterations: maxDepthIterations}
}

// TakeQuery reserves one search, reporting false once the cap is reached.
func (b *RunBudget) TakeQuery() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queries >= b.maxQueries {
		return false
	}
	b.queries++
	return true
}

// TakeDepthIteration reserves one recursive expansion.
func (b *RunBudget) TakeDepthIteration() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.depthIterations >= b.maxDepthIterations {
		return false
	}
	b.depthIterations++
	return true
}

// Exhausted reports whether no searches remain.
func (b *RunBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries >= b.maxQueries
}

// Queries reports how many searches were reserved.
func (b *RunBudget) Queries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries
}

// DepthIterations reports how many recursive expansions were reserved.
func (b *RunBudget) DepthIterations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.depthIterations
}

// MaxQueries is the query cap.
func (b *RunBudget) MaxQueries() int { return b.maxQueries }
