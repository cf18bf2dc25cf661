package swarm

import (
	"math"
	"math/rand/v2"

	"swarm_hft/internal/domain"
	"swarm_hft/internal/rl"
)

// Fitness weights and the fixed decision-overhead penalty.
const (
	profitWeight   = 1.0
	riskWeight     = 0.5
	latencyWeight  = 0.1
	latencyPenalty = 0.001
)

// Trade archetypes indexed by policy action.
const (
	ActionLongSmall = iota
	ActionLongLarge
	ActionShortSmall
	ActionShortLarge

	numArchetypes
)

// Archetype offsets from the current price.
const (
	targetOffset = 3.0
	stopOffset   = 2.0
)

// MapActionToTrade deterministically maps an archetype to a trade around
// price. The small tier is a third of maxQuantity, the large tier is
// maxQuantity itself.
func MapActionToTrade(action int, price float64, maxQuantity int64) domain.TradeProposal {
	small := maxQuantity / 3
	if small < 1 {
		small = 1
	}

	switch action {
	case ActionLongSmall:
		return domain.TradeProposal{Entry: price, Target: price + targetOffset, Stop: price - stopOffset, Quantity: small}
	case ActionLongLarge:
		return domain.TradeProposal{Entry: price, Target: price + targetOffset, Stop: price - stopOffset, Quantity: maxQuantity}
	case ActionShortSmall:
		return domain.TradeProposal{Entry: price, Target: price - targetOffset, Stop: price + stopOffset, Quantity: small}
	default:
		return domain.TradeProposal{Entry: price, Target: price - targetOffset, Stop: price + stopOffset, Quantity: maxQuantity}
	}
}

// EvaluateFitness scores a trade: profit minus half the risk minus a small
// latency penalty. It is pure; the market context is part of the contract
// but the current score depends on the trade alone.
//
// Zero quantities and equal entry/target are scored normally. NaN or Inf
// inputs propagate and the caller must discard the score.
func EvaluateFitness(trade domain.TradeProposal, _ domain.MarketContext) float64 {
	q := float64(trade.Quantity)
	profit := math.Abs(trade.Target-trade.Entry) * q
	risk := math.Abs(trade.Entry-trade.Stop) * q
	return profitWeight*profit - riskWeight*risk - latencyWeight*latencyPenalty
}

// Agent is one decision-maker: a PSO particle plus its own policy and value
// table. All of its state is private and mutated only through its methods.
type Agent struct {
	id          int
	maxQuantity int64

	position domain.Vector
	velocity domain.Vector
	best     domain.BestRecord

	policy rl.Policy
	values *rl.ValueTable
	disc   rl.Discretizer
	rng    *rand.Rand
}

func newAgent(id int, cfg Config, policy rl.Policy, rng *rand.Rand) *Agent {
	return &Agent{
		id:          id,
		maxQuantity: cfg.MaxQuantity,
		best:        domain.EmptyBest(),
		policy:      policy,
		values:      rl.NewValueTable(cfg.NumActions, cfg.Alpha, cfg.Gamma),
		disc:        rl.Discretizer{Step: cfg.ValueStep},
		rng:         rng,
	}
}

// ID returns the agent's index in the swarm.
func (a *Agent) ID() int { return a.id }

// Position returns the current PSO position.
func (a *Agent) Position() domain.Vector { return a.position }

// Velocity returns the current PSO velocity.
func (a *Agent) Velocity() domain.Vector { return a.velocity }

// PersonalBest returns the best trade this agent has produced.
func (a *Agent) PersonalBest() domain.BestRecord { return a.best }

// ValueStates returns how many discretized states the value table holds.
func (a *Agent) ValueStates() int { return a.values.Len() }

// Values returns the stored action values for state.
func (a *Agent) Values(state []float64) ([]float64, bool) {
	return a.values.Values(a.disc.Key(state))
}

// ProposeTrade samples an archetype from the policy distribution and maps
// it onto the current price (state[0]).
func (a *Agent) ProposeTrade(state []float64) (domain.TradeProposal, int, error) {
	if err := domain.CheckDimension("propose_trade", a.policy.InputDim(), len(state)); err != nil {
		return domain.TradeProposal{}, 0, err
	}
	probs, err := a.policy.Predict(state)
	if err != nil {
		return domain.TradeProposal{}, 0, err
	}
	action := rl.SampleAction(probs, a.rng)
	return MapActionToTrade(action, state[0], a.maxQuantity), action, nil
}

// EvaluateFitness scores trade. See the package-level EvaluateFitness.
func (a *Agent) EvaluateFitness(trade domain.TradeProposal, ctx domain.MarketContext) float64 {
	return EvaluateFitness(trade, ctx)
}

// observe records trade as the personal best when fitness strictly improves it.
func (a *Agent) observe(trade domain.TradeProposal, fitness float64) bool {
	if !a.best.Improves(fitness) {
		return false
	}
	a.best = domain.BestRecord{Trade: trade, Fitness: fitness, Set: true}
	return true
}

// UpdateVelocity pulls the particle toward its personal best and the given
// global best, then advances the position by the new velocity. r1 and r2
// are drawn fresh from the agent's RNG on every call.
func (a *Agent) UpdateVelocity(globalBest domain.BestRecord, p PSOParams) {
	var r1, r2 domain.Vector
	for d := range r1 {
		r1[d] = a.rng.Float64()
	}
	for d := range r2 {
		r2[d] = a.rng.Float64()
	}
	a.position, a.velocity = velocityStep(
		a.position, a.velocity,
		a.best.Trade.Vector(), globalBest.Trade.Vector(),
		a.best.Set, globalBest.Set,
		p, r1, r2,
	)
}

// Learn applies one policy-gradient step and the tabular update for the
// transition. Inputs are validated first and the policy step runs before
// the table is touched, so a rejected or failed call leaves the value table
// as it was. The reward is used signed and unclamped.
func (a *Agent) Learn(state []float64, action int, reward float64, nextState []float64) error {
	want := a.policy.InputDim()
	if err := domain.CheckDimension("learn_state", want, len(state)); err != nil {
		return err
	}
	if err := domain.CheckDimension("learn_next_state", want, len(nextState)); err != nil {
		return err
	}
	if action < 0 || action >= a.policy.NumActions() {
		return &domain.DimensionError{Op: "learn_action", Want: a.policy.NumActions(), Got: action}
	}

	if err := a.policy.Update(state, action, reward); err != nil {
		return err
	}
	a.learnValue(state, action, reward, nextState)
	return nil
}

// learnValue applies the tabular update. It cannot fail once the
// transition has been validated.
func (a *Agent) learnValue(state []float64, action int, reward float64, nextState []float64) {
	a.values.Update(a.disc.Key(state), action, reward, a.disc.Key(nextState))
}
