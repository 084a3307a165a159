package workflow

// OrderMap maps a step's order before an operation to its order after it.
// Orders missing from a non-nil map belong to steps the operation removed.
// A nil map means no step changed position.
type OrderMap map[int]int

// InsertionMap describes inserting one step at position at into a list of
// n steps: every step at or after that position moves down by one.
func InsertionMap(n, at int) OrderMap {
	m := make(OrderMap, n)
	for o := 1; o <= n; o++ {
		if o >= at {
			m[o] = o + 1
		} else {
			m[o] = o
		}
	}
	return m
}

// DeletionMap describes removing the step at order from a list of n steps.
func DeletionMap(n, order int) OrderMap {
	m := make(OrderMap, n)
	for o := 1; o <= n; o++ {
		switch {
		case o < order:
			m[o] = o
		case o > order:
			m[o] = o - 1
		}
	}
	return m
}

// SwapMap describes exchanging the steps at orders a and b.
func SwapMap(n, a, b int) OrderMap {
	m := make(OrderMap, n)
	for o := 1; o <= n; o++ {
		m[o] = o
	}
	m[a], m[b] = b, a
	return m
}

// Apply returns the new order of a step and whether it still exists.
func (m OrderMap) Apply(order int) (int, bool) {
	if m == nil {
		return order, true
	}
	next, ok := m[order]
	return next, ok
}
