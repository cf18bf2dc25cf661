// Package swarm runs a population of decision agents that combine particle
// swarm optimization over trade parameters with a reinforcement-learning
// policy, and reduces their proposals to one consensus trade per market
// update.
package swarm

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/rl"
)

// PolicyFactory builds the policy of agent id. The factory must draw any
// randomness from rng so a seeded swarm is reproducible.
type PolicyFactory func(id int, rng *rand.Rand) rl.Policy

// Config is the constructor-time configuration of a swarm.
type Config struct {
	NumAgents   int
	MaxQuantity int64
	StateDim    int
	NumActions  int
	PSO         PSOParams

	Alpha     float64 // tabular learning rate
	Gamma     float64 // tabular discount factor
	PolicyLR  float64 // policy optimizer learning rate
	ValueStep float64 // value table bucket width, <= 0 for exact keys

	Seed uint64
	// Parallelism selects the per-agent backend: <= 1 runs agents
	// sequentially, > 1 fans out with at most that many goroutines.
	// Results are identical for a given seed.
	Parallelism int

	NewPolicy PolicyFactory // nil builds the default MLP
}

// DefaultConfig returns 100 agents, max quantity 5400, a 10-dim state and
// 4 actions with the default PSO and learning coefficients.
func DefaultConfig() Config {
	return Config{
		NumAgents:   100,
		MaxQuantity: 5400,
		StateDim:    10,
		NumActions:  numArchetypes,
		PSO:         DefaultPSO(),
		Alpha:       0.01,
		Gamma:       0.95,
		PolicyLR:    0.001,
		ValueStep:   0.01,
		Seed:        1,
		Parallelism: 1,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.NumAgents < 0:
		return &domain.ConfigError{Field: "num_agents", Err: errors.New("must not be negative")}
	case c.MaxQuantity < 1:
		return &domain.ConfigError{Field: "max_quantity", Err: errors.New("must be at least 1")}
	case c.StateDim < domain.LiveFeatures:
		return &domain.ConfigError{Field: "state_dim", Err: fmt.Errorf("must be at least %d", domain.LiveFeatures)}
	case c.NumActions != numArchetypes:
		return &domain.ConfigError{Field: "num_actions", Err: fmt.Errorf("must be %d (one per trade archetype)", numArchetypes)}
	}
	return nil
}

// DefaultPolicyFactory builds a 64-32 hidden-layer MLP sized for cfg.
func DefaultPolicyFactory(cfg Config) PolicyFactory {
	return func(_ int, rng *rand.Rand) rl.Policy {
		return rl.NewMLP(rl.MLPConfig{
			InputDim:     cfg.StateDim,
			Hidden:       []int{64, 32},
			NumActions:   cfg.NumActions,
			LearningRate: cfg.PolicyLR,
		}, rng)
	}
}

// Swarm owns the agent population and the swarm-wide best.
type Swarm struct {
	cfg    Config
	agents []*Agent

	globalBest domain.BestRecord
	iterations uint64

	mu sync.RWMutex
}

// New creates a swarm. Every agent starts with zero position and velocity,
// an empty personal best, an empty value table and a fresh policy seeded
// from cfg.Seed and its index.
func New(cfg Config) (*Swarm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory := cfg.NewPolicy
	if factory == nil {
		factory = DefaultPolicyFactory(cfg)
	}

	s := &Swarm{
		cfg:        cfg,
		agents:     make([]*Agent, cfg.NumAgents),
		globalBest: domain.EmptyBest(),
	}
	for i := range s.agents {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		s.agents[i] = newAgent(i, cfg, factory(i, rng), rng)
	}
	return s, nil
}

type candidate struct {
	trade   domain.TradeProposal
	action  int
	fitness float64
}

// RunIteration runs one propose/score/update/learn pass and returns the
// consensus trade, or domain.NoTrade when the swarm is empty or every score
// was degenerate.
//
// The pass is a two-phase reduce:
//  1. every agent proposes and scores without touching shared state;
//  2. a single fold in agent index order picks the global best, then the
//     consensus (strict > throughout, so ties keep the incumbent and the
//     lowest index wins);
//  3. every policy takes its gradient step on its own fitness;
//  4. personal and global bests are committed, then every agent updates
//     its velocity against the final global best and its value table.
//
// Learning uses the current state as both state and next state. NaN/Inf
// scores are excluded from bests, consensus and learning.
//
// A DimensionError is returned before any agent is mutated. A policy
// update error leaves bests, particles and value tables untouched, though
// policies that already stepped keep their step.
func (s *Swarm) RunIteration(mc domain.MarketContext) (domain.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.agents) == 0 {
		return domain.NoTrade, nil
	}

	state, err := mc.StateVector(s.cfg.StateDim)
	if err != nil {
		return domain.NoTrade, err
	}
	for _, a := range s.agents {
		if err := domain.CheckDimension("run_iteration", a.policy.InputDim(), len(state)); err != nil {
			return domain.NoTrade, fmt.Errorf("agent %d: %w", a.id, err)
		}
	}

	// 1. Propose and score
	cands := make([]candidate, len(s.agents))
	err = s.forEachAgent(func(a *Agent) error {
		trade, action, err := a.ProposeTrade(state)
		if err != nil {
			return fmt.Errorf("agent %d: %w", a.id, err)
		}
		cands[a.id] = candidate{trade: trade, action: action, fitness: a.EvaluateFitness(trade, mc)}
		return nil
	})
	if err != nil {
		return domain.NoTrade, err
	}

	// 2. Pick the global best and the consensus in agent index order.
	// Nothing is committed yet.
	decision := domain.NoTrade
	decision.Iteration = s.iterations + 1
	gbest := s.globalBest
	for i, c := range cands {
		if !domain.IsFinite(c.fitness) {
			decision.Degenerate++
			continue
		}
		if gbest.Improves(c.fitness) {
			gbest = domain.BestRecord{Trade: c.trade, Fitness: c.fitness, Set: true}
		}
		if c.fitness > decision.Fitness {
			decision.Trade = c.trade
			decision.Fitness = c.fitness
			decision.Agent = i
		}
	}

	// 3. Policy-gradient steps, the only fallible update. A failure here
	// returns before any best, particle or value table changes.
	err = s.forEachAgent(func(a *Agent) error {
		c := cands[a.id]
		if !domain.IsFinite(c.fitness) {
			return nil
		}
		if err := a.policy.Update(state, c.action, c.fitness); err != nil {
			return fmt.Errorf("agent %d: %w", a.id, err)
		}
		return nil
	})
	if err != nil {
		return domain.NoTrade, err
	}

	// 4. Commit bests, then move particles and update value tables.
	for i, c := range cands {
		if domain.IsFinite(c.fitness) {
			s.agents[i].observe(c.trade, c.fitness)
		}
	}
	s.globalBest = gbest
	_ = s.forEachAgent(func(a *Agent) error {
		a.UpdateVelocity(gbest, s.cfg.PSO)
		if c := cands[a.id]; domain.IsFinite(c.fitness) {
			a.learnValue(state, c.action, c.fitness, state)
		}
		return nil
	})

	s.iterations++
	if decision.Degenerate > 0 {
		slog.Warn("Degenerate fitness excluded",
			slog.Uint64("iteration", decision.Iteration),
			slog.Int("count", decision.Degenerate))
	}
	slog.Debug("Swarm iteration",
		slog.Uint64("iteration", decision.Iteration),
		slog.Int("agent", decision.Agent),
		slog.Float64("fitness", decision.Fitness),
		slog.Float64("global_best", s.globalBest.Fitness))

	return decision, nil
}

func (s *Swarm) forEachAgent(fn func(a *Agent) error) error {
	if s.cfg.Parallelism <= 1 {
		for _, a := range s.agents {
			if err := fn(a); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, a := range s.agents {
		g.Go(func() error { return fn(a) })
	}
	return g.Wait()
}

// GlobalBest returns the best trade any agent has produced.
func (s *Swarm) GlobalBest() domain.BestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalBest
}

// Iterations returns the number of completed iterations.
func (s *Swarm) Iterations() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iterations
}

// Len returns the population size.
func (s *Swarm) Len() int {
	return len(s.agents)
}

// Agent returns agent i. The agent must not be mutated while an iteration runs.
func (s *Swarm) Agent(i int) *Agent {
	return s.agents[i]
}

// AgentSnapshot is the exported view of one agent.
type AgentSnapshot struct {
	ID           int                  `json:"id"`
	Position     domain.Vector        `json:"position"`
	AsTrade      domain.TradeProposal `json:"position_trade"`
	Velocity     domain.Vector        `json:"velocity"`
	PersonalBest *domain.BestRecord   `json:"personal_best,omitempty"`
	ValueStates  int                  `json:"value_states"`
}

// Snapshot is a point-in-time copy of the swarm state (for state dumps).
type Snapshot struct {
	Iterations uint64             `json:"iterations"`
	GlobalBest *domain.BestRecord `json:"global_best,omitempty"`
	Agents     []AgentSnapshot    `json:"agents"`
}

// Snapshot returns a copy of the swarm state. Unset bests are omitted.
func (s *Swarm) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Iterations: s.iterations,
		Agents:     make([]AgentSnapshot, len(s.agents)),
	}
	if s.globalBest.Set {
		gb := s.globalBest
		snap.GlobalBest = &gb
	}
	for i, a := range s.agents {
		as := AgentSnapshot{
			ID:          a.id,
			Position:    a.position,
			AsTrade:     domain.TradeFromVector(a.position),
			Velocity:    a.velocity,
			ValueStates: a.values.Len(),
		}
		if a.best.Set {
			pb := a.best
			as.PersonalBest = &pb
		}
		snap.Agents[i] = as
	}
	return snap
}
