// Package rl holds the learning primitives each decision agent owns: a
// trainable stochastic policy, a tabular action-value store and the helpers
// that connect them to continuous market state.
package rl

import (
	"math"
	"math/rand/v2"

	"swarm_hft/internal/domain"
)

// Policy maps a state vector to a probability distribution over a fixed
// discrete action set and is trained by gradient descent on a scalar loss.
type Policy interface {
	InputDim() int
	NumActions() int
	// Predict returns action probabilities for state. It must not mutate the policy.
	Predict(state []float64) ([]float64, error)
	// Update applies one gradient step on -log(p(action|state)) * weight.
	Update(state []float64, action int, weight float64) error
}

// MLPConfig sizes a policy network.
type MLPConfig struct {
	InputDim     int
	Hidden       []int
	NumActions   int
	LearningRate float64
}

// DefaultMLPConfig returns the 10-64-32-4 network trained with lr 0.001.
func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		InputDim:     10,
		Hidden:       []int{64, 32},
		NumActions:   4,
		LearningRate: 0.001,
	}
}

type dense struct {
	in, out int
	w       []float64 // row-major [out][in]
	b       []float64
	gw      []float64
	gb      []float64
}

func newDense(in, out int, rng *rand.Rand) *dense {
	d := &dense{
		in:  in,
		out: out,
		w:   make([]float64, in*out),
		b:   make([]float64, out),
		gw:  make([]float64, in*out),
		gb:  make([]float64, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	for i := range d.w {
		d.w[i] = (rng.Float64()*2 - 1) * bound
	}
	for i := range d.b {
		d.b[i] = (rng.Float64()*2 - 1) * bound
	}
	return d
}

func (d *dense) forward(x []float64) []float64 {
	y := make([]float64, d.out)
	for o := 0; o < d.out; o++ {
		sum := d.b[o]
		row := d.w[o*d.in : (o+1)*d.in]
		for i, xi := range x {
			sum += row[i] * xi
		}
		y[o] = sum
	}
	return y
}

// MLP is a feed-forward policy network: ReLU hidden layers, softmax output,
// optimized with Adam.
type MLP struct {
	layers []*dense
	opt    *Adam
}

// NewMLP builds a network with uniform ±1/sqrt(fan_in) initialization drawn from rng.
func NewMLP(cfg MLPConfig, rng *rand.Rand) *MLP {
	sizes := append([]int{cfg.InputDim}, cfg.Hidden...)
	sizes = append(sizes, cfg.NumActions)

	m := &MLP{}
	var params, grads [][]float64
	for i := 0; i+1 < len(sizes); i++ {
		l := newDense(sizes[i], sizes[i+1], rng)
		m.layers = append(m.layers, l)
		params = append(params, l.w, l.b)
		grads = append(grads, l.gw, l.gb)
	}
	m.opt = NewAdam(cfg.LearningRate, params, grads)
	return m
}

// InputDim returns the expected state length.
func (m *MLP) InputDim() int { return m.layers[0].in }

// NumActions returns the size of the action set.
func (m *MLP) NumActions() int { return m.layers[len(m.layers)-1].out }

// Predict returns the softmax distribution over actions.
func (m *MLP) Predict(state []float64) ([]float64, error) {
	if err := domain.CheckDimension("policy_predict", m.InputDim(), len(state)); err != nil {
		return nil, err
	}
	acts := m.forward(state)
	return Softmax(acts[len(acts)-1]), nil
}

// forward returns every layer's output; hidden outputs are post-ReLU and the
// last entry holds the raw logits.
func (m *MLP) forward(state []float64) [][]float64 {
	acts := make([][]float64, 0, len(m.layers)+1)
	acts = append(acts, state)
	x := state
	for i, l := range m.layers {
		x = l.forward(x)
		if i < len(m.layers)-1 {
			for j, v := range x {
				if v < 0 {
					x[j] = 0
				}
			}
		}
		acts = append(acts, x)
	}
	return acts
}

// Update backpropagates -log(p[action]) * weight and takes one Adam step.
// A negative weight pushes probability away from the action.
func (m *MLP) Update(state []float64, action int, weight float64) error {
	if err := domain.CheckDimension("policy_update", m.InputDim(), len(state)); err != nil {
		return err
	}
	if action < 0 || action >= m.NumActions() {
		return &domain.DimensionError{Op: "policy_update_action", Want: m.NumActions(), Got: action}
	}

	acts := m.forward(state)
	probs := Softmax(acts[len(acts)-1])

	// d/dz of -log softmax(z)[a] is p - onehot(a)
	delta := make([]float64, len(probs))
	for j, p := range probs {
		delta[j] = p * weight
	}
	delta[action] -= weight

	for li := len(m.layers) - 1; li >= 0; li-- {
		l := m.layers[li]
		in := acts[li]
		for o := 0; o < l.out; o++ {
			l.gb[o] = delta[o]
			row := l.gw[o*l.in : (o+1)*l.in]
			for i, x := range in {
				row[i] = delta[o] * x
			}
		}
		if li == 0 {
			break
		}
		prev := make([]float64, l.in)
		for o := 0; o < l.out; o++ {
			row := l.w[o*l.in : (o+1)*l.in]
			for i := range prev {
				prev[i] += row[i] * delta[o]
			}
		}
		// ReLU mask of the previous hidden layer
		for i, a := range in {
			if a <= 0 {
				prev[i] = 0
			}
		}
		delta = prev
	}

	m.opt.Step()
	return nil
}

// Softmax returns a numerically stable softmax of logits.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// SampleAction draws an action index from probs. Probabilities that do not
// sum to one (or are NaN) fall through to the last action.
func SampleAction(probs []float64, rng *rand.Rand) int {
	u := rng.Float64()
	var cum float64
	for i, p := range probs {
		cum += p
		if u < cum {
			return i
		}
	}
	return len(probs) - 1
}
