package order

import (
	"fmt"
	"slices"
)

// Machine is an immutable table of legal status transitions. It holds no
// state of its own and is safe for concurrent use.
type Machine[S ~string] struct {
	states []S
	edges  map[S][]S
}

// NewMachine builds a machine from a transition table. Every state named in
// the table, as a source or a target, is known to the machine. The table is
// copied; later changes to it have no effect.
func NewMachine[S ~string](table map[S][]S) *Machine[S] {
	m := &Machine[S]{edges: make(map[S][]S, len(table))}
	seen := make(map[S]bool)
	add := func(s S) {
		if !seen[s] {
			seen[s] = true
			m.states = append(m.states, s)
		}
	}
	for from, targets := range table {
		add(from)
		m.edges[from] = append([]S(nil), targets...)
		for _, to := range targets {
			add(to)
		}
	}
	slices.Sort(m.states)
	return m
}

// Known reports whether s appears in the table.
func (m *Machine[S]) Known(s S) bool {
	if _, ok := m.edges[s]; ok {
		return true
	}
	for _, k := range m.states {
		if k == s {
			return true
		}
	}
	return false
}

// States returns every known state in lexical order.
func (m *Machine[S]) States() []S {
	return append([]S(nil), m.states...)
}

// CanTransition is true when to == from or to is one of from's edges.
func (m *Machine[S]) CanTransition(from, to S) bool {
	if from == to {
		return true
	}
	for _, t := range m.edges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// NextPossible returns from's edges in declaration order.
func (m *Machine[S]) NextPossible(from S) []S {
	return append([]S(nil), m.edges[from]...)
}

// IsFinal is true iff s is known and has no outgoing edges.
func (m *Machine[S]) IsFinal(s S) bool {
	return m.Known(s) && len(m.edges[s]) == 0
}

// Path returns the shortest sequence of states leading from `from` to `to`,
// excluding from itself. Ties are broken by edge declaration order.
func (m *Machine[S]) Path(from, to S) ([]S, bool) {
	if from == to {
		return nil, true
	}
	prev := map[S]S{from: from}
	queue := []S{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.edges[cur] {
			if _, ok := prev[next]; ok {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []S
				for s := to; s != from; s = prev[s] {
					path = append([]S{s}, path...)
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// Validate checks that every non-final state can still reach some final state.
func (m *Machine[S]) Validate() error {
	for _, s := range m.states {
		if m.IsFinal(s) {
			continue
		}
		reachable := false
		for _, f := range m.states {
			if m.IsFinal(f) {
				if _, ok := m.Path(s, f); ok {
					reachable = true
					break
				}
			}
		}
		if !reachable {
			return fmt.Errorf("state %s cannot reach a final state", s)
		}
	}
	return nil
}

// DefaultOrderTable is the order-level transition table.
func DefaultOrderTable() map[Status][]Status {
	return map[Status][]Status{
		StatusPending:       {StatusPaid, StatusPaymentFailed, StatusCancelled, StatusOnHold},
		StatusPaymentFailed: {StatusPending, StatusCancelled},
		StatusPaid:          {StatusProcessing, StatusCancelled, StatusOnHold, StatusRefunded},
		StatusProcessing:    {StatusShipped, StatusCancelled, StatusOnHold, StatusRefunded},
		StatusShipped:       {StatusDelivered, StatusReturned},
		StatusDelivered:     {StatusCompleted, StatusReturned},
		StatusOnHold:        {StatusProcessing, StatusPaid, StatusCancelled},
		StatusReturned:      {StatusRefunded},
		StatusCompleted:     {},
		StatusCancelled:     {},
		StatusRefunded:      {},
	}
}

// DefaultItemTable is the item-level transition table.
func DefaultItemTable() map[ItemStatus][]ItemStatus {
	return map[ItemStatus][]ItemStatus{
		ItemPending:          {ItemProcessing, ItemCancelled},
		ItemProcessing:       {ItemPartiallyShipped, ItemShipped, ItemCancelled},
		ItemPartiallyShipped: {ItemShipped, ItemReturned},
		ItemShipped:          {ItemDelivered, ItemReturned},
		ItemDelivered:        {ItemReturned},
		ItemReturned:         {ItemRefunded},
		ItemCancelled:        {},
		ItemRefunded:         {},
	}
}

func NewOrderMachine() *Machine[Status] { return NewMachine(DefaultOrderTable()) }

func NewItemMachine() *Machine[ItemStatus] { return NewMachine(DefaultItemTable()) }
