package router

import (
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"switchyard/internal/api"
)

// Selector picks the instance that receives a request.
type Selector interface {
	// Select returns one routable instance of candidates, or false if none
	// is routable.
	Select(name string, candidates []api.ServiceInstance) (api.ServiceInstance, bool)
}

// PrioritySelector picks the highest priority routable instance, rotating
// round-robin among instances of equal priority.
type PrioritySelector struct {
	counters *xsync.Map[string, *atomic.Uint64]
}

// NewPrioritySelector creates a PrioritySelector.
func NewPrioritySelector() *PrioritySelector {
	return &PrioritySelector{counters: xsync.NewMap[string, *atomic.Uint64]()}
}

func (s *PrioritySelector) Select(name string, candidates []api.ServiceInstance) (api.ServiceInstance, bool) {
	var routable []api.ServiceInstance
	for _, c := range candidates {
		if c.Routable() {
			routable = append(routable, c)
		}
	}
	switch len(routable) {
	case 0:
		return api.ServiceInstance{}, false
	case 1:
		return routable[0], true
	}

	slices.SortStableFunc(routable, func(a, b api.ServiceInstance) int {
		return a.Registration.Priority.Rank() - b.Registration.Priority.Rank()
	})
	top := routable[0].Registration.Priority.Rank()
	n := 1
	for n < len(routable) && routable[n].Registration.Priority.Rank() == top {
		n++
	}

	counter, _ := s.counters.LoadOrStore(name, &atomic.Uint64{})
	i := (counter.Add(1) - 1) % uint64(n)
	return routable[i], true
}
