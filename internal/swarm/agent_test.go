package swarm

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/rl"
)

// fixedPolicy always picks the same action and counts updates.
type fixedPolicy struct {
	dim     int
	action  int
	updates int
	weights []float64
}

func (p *fixedPolicy) InputDim() int   { return p.dim }
func (p *fixedPolicy) NumActions() int { return numArchetypes }

func (p *fixedPolicy) Predict(state []float64) ([]float64, error) {
	if err := domain.CheckDimension("fixed_predict", p.dim, len(state)); err != nil {
		return nil, err
	}
	probs := make([]float64, numArchetypes)
	probs[p.action] = 1
	return probs, nil
}

func (p *fixedPolicy) Update(state []float64, action int, weight float64) error {
	if err := domain.CheckDimension("fixed_update", p.dim, len(state)); err != nil {
		return err
	}
	p.updates++
	p.weights = append(p.weights, weight)
	return nil
}

// errPolicy is a fixedPolicy whose updates always fail.
type errPolicy struct {
	fixedPolicy
	err error
}

func (p *errPolicy) Update([]float64, int, float64) error { return p.err }

var scenario = domain.MarketContext{
	Price:              100,
	BidAskSpread:       0.1,
	OrderFlowImbalance: 5,
	LiquidityShift:     200,
	TrendlineSlope:     0.02,
	Volatility:         1.5,
}

func scenarioState(t *testing.T) []float64 {
	t.Helper()
	state, err := scenario.StateVector(10)
	if err != nil {
		t.Fatalf("StateVector failed: %v", err)
	}
	return state
}

func newTestAgent(policy rl.Policy) *Agent {
	cfg := DefaultConfig()
	return newAgent(0, cfg, policy, rand.New(rand.NewPCG(11, 0)))
}

func TestMapActionToTrade(t *testing.T) {
	tests := []struct {
		action int
		want   domain.TradeProposal
	}{
		{ActionLongSmall, domain.TradeProposal{Entry: 100, Target: 103, Stop: 98, Quantity: 1800}},
		{ActionLongLarge, domain.TradeProposal{Entry: 100, Target: 103, Stop: 98, Quantity: 5400}},
		{ActionShortSmall, domain.TradeProposal{Entry: 100, Target: 97, Stop: 102, Quantity: 1800}},
		{ActionShortLarge, domain.TradeProposal{Entry: 100, Target: 97, Stop: 102, Quantity: 5400}},
	}
	for _, tt := range tests {
		got := MapActionToTrade(tt.action, 100, 5400)
		if got != tt.want {
			t.Errorf("action %d: got %+v, want %+v", tt.action, got, tt.want)
		}
		if !got.Valid() {
			t.Errorf("action %d: archetype violates the direction invariant", tt.action)
		}
	}

	t.Run("tiny max quantity keeps a positive small tier", func(t *testing.T) {
		if q := MapActionToTrade(ActionLongSmall, 100, 2).Quantity; q != 1 {
			t.Errorf("Expected small tier 1, got %d", q)
		}
	})
}

func TestEvaluateFitness(t *testing.T) {
	long := domain.TradeProposal{Entry: 100, Target: 103, Stop: 98, Quantity: 1800}
	short := domain.TradeProposal{Entry: 100, Target: 97, Stop: 102, Quantity: 1800}

	t.Run("formula", func(t *testing.T) {
		// 3*1800 - 0.5*2*1800 - 0.1*0.001
		want := 5400.0 - 1800.0 - 0.0001
		if got := EvaluateFitness(long, scenario); math.Abs(got-want) > 1e-9 {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})

	t.Run("direction aware", func(t *testing.T) {
		if EvaluateFitness(long, scenario) != EvaluateFitness(short, scenario) {
			t.Error("Mirrored long/short trades should score the same")
		}
	})

	t.Run("pure", func(t *testing.T) {
		a := EvaluateFitness(long, scenario)
		b := EvaluateFitness(long, scenario)
		if a != b {
			t.Errorf("Repeated calls differ: %v vs %v", a, b)
		}
	})

	t.Run("permissive edge cases", func(t *testing.T) {
		zero := domain.TradeProposal{Entry: 100, Target: 103, Stop: 98}
		if got := EvaluateFitness(zero, scenario); math.Abs(got+0.0001) > 1e-12 {
			t.Errorf("Zero quantity should only pay the latency penalty, got %v", got)
		}
		flat := domain.TradeProposal{Entry: 100, Target: 100, Stop: 98, Quantity: 10}
		if got := EvaluateFitness(flat, scenario); got >= 0 {
			t.Errorf("Flat trade should score negative, got %v", got)
		}
	})
}

func TestAgent_ProposeTrade(t *testing.T) {
	agent := newTestAgent(&fixedPolicy{dim: 10, action: ActionShortLarge})

	trade, action, err := agent.ProposeTrade(scenarioState(t))
	if err != nil {
		t.Fatalf("ProposeTrade failed: %v", err)
	}
	if action != ActionShortLarge {
		t.Errorf("Expected action %d, got %d", ActionShortLarge, action)
	}
	if trade.Entry != 100 || trade.Quantity != 5400 || trade.Direction() != domain.DirectionShort {
		t.Errorf("Unexpected trade %+v", trade)
	}

	t.Run("dimension mismatch", func(t *testing.T) {
		_, _, err := agent.ProposeTrade([]float64{100, 0.1})
		var de *domain.DimensionError
		if !errors.As(err, &de) {
			t.Fatalf("Expected DimensionError, got %v", err)
		}
	})
}

func TestAgent_UpdateVelocity_InertiaOnly(t *testing.T) {
	agent := newTestAgent(&fixedPolicy{dim: 10})
	agent.observe(domain.TradeProposal{Entry: 100, Target: 103, Stop: 98, Quantity: 1800}, 10)
	agent.velocity = domain.Vector{1, 2, 3, 4}

	gbest := domain.BestRecord{Trade: domain.TradeProposal{Entry: 50, Target: 53, Stop: 48, Quantity: 5400}, Fitness: 20, Set: true}
	pso := PSOParams{Inertia: 0.5}

	want := agent.velocity
	for i := 0; i < 3; i++ {
		agent.UpdateVelocity(gbest, pso)
		for d := range want {
			want[d] *= 0.5
		}
		if agent.Velocity() != want {
			t.Fatalf("step %d: velocity %v, want %v", i, agent.Velocity(), want)
		}
	}

	// position accumulates 0.5 + 0.25 + 0.125 of the initial velocity
	wantPos := domain.Vector{0.875, 1.75, 2.625, 3.5}
	if agent.Position() != wantPos {
		t.Errorf("position %v, want %v", agent.Position(), wantPos)
	}

	t.Run("unit inertia keeps velocity", func(t *testing.T) {
		before := agent.Velocity()
		agent.UpdateVelocity(gbest, PSOParams{Inertia: 1})
		if agent.Velocity() != before {
			t.Errorf("velocity changed: %v -> %v", before, agent.Velocity())
		}
	})
}

func TestAgent_UpdateVelocity_NoGlobalBest(t *testing.T) {
	agent := newTestAgent(&fixedPolicy{dim: 10})

	// No personal or global best yet: only inertia acts, so a resting
	// particle stays put.
	agent.UpdateVelocity(domain.EmptyBest(), DefaultPSO())
	if agent.Velocity() != (domain.Vector{}) || agent.Position() != (domain.Vector{}) {
		t.Errorf("Expected resting particle, got x=%v v=%v", agent.Position(), agent.Velocity())
	}
}

func TestVelocityStep(t *testing.T) {
	one := domain.Vector{1, 1, 1, 1}
	x := domain.Vector{}
	pbest := domain.Vector{1, 1, 1, 1}
	gbest := domain.Vector{2, 2, 2, 2}

	nx, nv := velocityStep(x, domain.Vector{}, pbest, gbest, true, true, PSOParams{Cognitive: 1, Social: 1}, one, one)
	want := domain.Vector{3, 3, 3, 3}
	if nv != want || nx != want {
		t.Errorf("Expected x=v=%v, got x=%v v=%v", want, nx, nv)
	}

	t.Run("pull moves toward the bests", func(t *testing.T) {
		half := domain.Vector{0.5, 0.5, 0.5, 0.5}
		nx, _ := velocityStep(x, domain.Vector{}, pbest, gbest, true, false, PSOParams{Cognitive: 1}, half, half)
		if nx != half {
			t.Errorf("Expected %v, got %v", half, nx)
		}
	})
}

func TestAgent_Learn(t *testing.T) {
	t.Run("tabular update from empty table", func(t *testing.T) {
		policy := &fixedPolicy{dim: 10}
		agent := newTestAgent(policy)
		state := scenarioState(t)

		if err := agent.Learn(state, ActionLongLarge, 10, state); err != nil {
			t.Fatalf("Learn failed: %v", err)
		}

		values, ok := agent.Values(state)
		if !ok {
			t.Fatal("Expected value entry for state")
		}
		for a, v := range values {
			want := 0.0
			if a == ActionLongLarge {
				want = 0.1
			}
			if math.Abs(v-want) > 1e-12 {
				t.Errorf("action %d = %v, want %v", a, v, want)
			}
		}
		if policy.updates != 1 || policy.weights[0] != 10 {
			t.Errorf("Expected one policy update with weight 10, got %v", policy.weights)
		}
	})

	t.Run("negative reward reaches the policy unclamped", func(t *testing.T) {
		policy := &fixedPolicy{dim: 10}
		agent := newTestAgent(policy)
		state := scenarioState(t)

		if err := agent.Learn(state, 0, -250, state); err != nil {
			t.Fatalf("Learn failed: %v", err)
		}
		if policy.weights[0] != -250 {
			t.Errorf("Expected weight -250, got %v", policy.weights[0])
		}
	})

	t.Run("rejected call leaves agent untouched", func(t *testing.T) {
		policy := &fixedPolicy{dim: 10}
		agent := newTestAgent(policy)
		state := scenarioState(t)

		err := agent.Learn(state, 0, 1, state[:4])
		if !errors.Is(err, domain.ErrDimensionMismatch) {
			t.Fatalf("Expected dimension mismatch, got %v", err)
		}
		if agent.ValueStates() != 0 || policy.updates != 0 {
			t.Error("Rejected Learn must not mutate the agent")
		}

		if err := agent.Learn(state, 7, 1, state); err == nil {
			t.Error("Expected error for out-of-range action")
		}
		if agent.ValueStates() != 0 {
			t.Error("Rejected Learn must not mutate the value table")
		}
	})

	t.Run("failed policy update leaves value table untouched", func(t *testing.T) {
		diverged := errors.New("optimizer diverged")
		agent := newTestAgent(&errPolicy{fixedPolicy: fixedPolicy{dim: 10}, err: diverged})
		state := scenarioState(t)

		if err := agent.Learn(state, 0, 10, state); !errors.Is(err, diverged) {
			t.Fatalf("Expected policy error, got %v", err)
		}
		if agent.ValueStates() != 0 {
			t.Errorf("Failed Learn applied the tabular update: %d states", agent.ValueStates())
		}
	})
}
