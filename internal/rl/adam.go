package rl

import "math"

// Adam is the Adam optimizer over a fixed set of parameter slices. Gradient
// slices are written by the owner before each Step.
type Adam struct {
	lr, beta1, beta2, eps float64

	params [][]float64
	grads  [][]float64
	m, v   [][]float64
	t      int
}

// NewAdam binds the optimizer to params and their same-shaped grads.
func NewAdam(lr float64, params, grads [][]float64) *Adam {
	a := &Adam{
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		params: params,
		grads:  grads,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

// Step applies one bias-corrected update using the current gradients.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		g, m, v := a.grads[i], a.m[i], a.v[i]
		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			p[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
		}
	}
}

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }
