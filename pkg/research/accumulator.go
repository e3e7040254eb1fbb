package research

import (
	"strings"
	"sync"
)

// orderedSet keeps the first occurrence of each value in insertion order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(values ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) slice() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// accumulator merges summaries from one run. Safe for concurrent use.
type accumulator struct {
	mu        sync.Mutex
	learnings orderedSet
	urls      orderedSet
}

func (a *accumulator) add(s Summary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.learnings.add(s.Learnings...)
	a.urls.add(s.VisitedURLs...)
}

func (a *accumulator) result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Result{Learnings: a.learnings.slice(), VisitedURLs: a.urls.slice()}
}
