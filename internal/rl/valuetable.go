package rl

// ValueTable stores one action-value vector per discretized state. Vectors
// live in a single arena slice; the map only records each key's offset.
// Entries are never removed.
type ValueTable struct {
	numActions int
	alpha      float64
	gamma      float64

	index map[StateKey]int
	arena []float64
}

// NewValueTable creates an empty table.
func NewValueTable(numActions int, alpha, gamma float64) *ValueTable {
	return &ValueTable{
		numActions: numActions,
		alpha:      alpha,
		gamma:      gamma,
		index:      make(map[StateKey]int),
	}
}

// Update blends the chosen action's value toward reward + gamma*max(next).
// The key is created with zeros if absent, before next is read, so a
// transition back into the same new key sees zeros. Missing next keys read
// as zeros without being created. Returns the updated value.
func (t *ValueTable) Update(key StateKey, action int, reward float64, next StateKey) float64 {
	row := t.row(t.ensure(key))

	nextMax := 0.0
	if off, ok := t.index[next]; ok {
		nextMax = maxOf(t.row(off))
	}

	row[action] += t.alpha * (reward + t.gamma*nextMax - row[action])
	return row[action]
}

// Values returns a copy of the action values stored for key.
func (t *ValueTable) Values(key StateKey) ([]float64, bool) {
	off, ok := t.index[key]
	if !ok {
		return nil, false
	}
	out := make([]float64, t.numActions)
	copy(out, t.row(off))
	return out, true
}

// Len returns the number of stored states.
func (t *ValueTable) Len() int {
	return len(t.index)
}

func (t *ValueTable) ensure(key StateKey) int {
	if off, ok := t.index[key]; ok {
		return off
	}
	off := len(t.arena)
	t.arena = append(t.arena, make([]float64, t.numActions)...)
	t.index[key] = off
	return off
}

func (t *ValueTable) row(off int) []float64 {
	return t.arena[off : off+t.numActions]
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
