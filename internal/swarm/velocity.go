package swarm

import "swarm_hft/internal/domain"

// PSOParams are the particle swarm coefficients.
type PSOParams struct {
	Inertia   float64 `yaml:"inertia"`
	Cognitive float64 `yaml:"cognitive"`
	Social    float64 `yaml:"social"`
}

// DefaultPSO returns inertia 0.8, cognitive 1.5, social 1.5.
func DefaultPSO() PSOParams {
	return PSOParams{Inertia: 0.8, Cognitive: 1.5, Social: 1.5}
}

// velocityStep is the PSO kernel. It is a pure function of fixed-size
// vectors and returns the new position and velocity:
//
//	v' = w*v + c1*r1*(pbest-x) + c2*r2*(gbest-x)
//	x' = x + v'
//
// An unset best contributes nothing to its term.
func velocityStep(x, v, pbest, gbest domain.Vector, hasP, hasG bool, p PSOParams, r1, r2 domain.Vector) (domain.Vector, domain.Vector) {
	var nx, nv domain.Vector
	for d := 0; d < domain.VectorDim; d++ {
		vel := p.Inertia * v[d]
		if hasP {
			vel += p.Cognitive * r1[d] * (pbest[d] - x[d])
		}
		if hasG {
			vel += p.Social * r2[d] * (gbest[d] - x[d])
		}
		nv[d] = vel
		nx[d] = x[d] + vel
	}
	return nx, nv
}
