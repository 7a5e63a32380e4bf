// Package opt holds the search backends that solve vrp models: an exact
// branch and bound for small instances and an adaptive large neighbourhood
// search for everything else.
package opt

import (
	"time"

	"go.uber.org/zap"

	"routeopt/internal/vrp"
)

type Metrics struct {
	Strategy              string           `json:"strategy"`
	RemovalSelects        [2]int           `json:"removalSelects"` // random, related
	InsertSelects         [2]int           `json:"insertSelects"`  // greedy, regret2
	Iterations            int              `json:"iterations"`
	Improvements          int              `json:"improvements"`
	AcceptedWorse         int              `json:"acceptedWorse"`
	Expanded              int              `json:"expanded,omitempty"`
	ExactComplete         bool             `json:"exactComplete,omitempty"`
	Unassigned            int              `json:"unassigned"`
	BestCost              int64            `json:"bestCost"`
	FinalCost             int64            `json:"finalCost"`
	FinalRemovalWeights   [2]float64       `json:"finalRemovalWeights"`
	FinalInsertionWeights [2]float64       `json:"finalInsertionWeights"`
	Snapshots             []WeightSnapshot `json:"snapshots,omitempty"`
	ElapsedMs             int64            `json:"elapsedMs"`
}

type WeightSnapshot struct {
	Iteration int        `json:"iteration"`
	Removal   [2]float64 `json:"removal"`
	Insertion [2]float64 `json:"insertion"`
}

// Backend is a vrp.Solver that picks a search strategy per solve. Use a
// fresh Backend for each solve; Metrics describes the last one.
type Backend struct {
	log     *zap.Logger
	metrics Metrics
}

func NewBackend(log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{log: log}
}

func (b *Backend) Metrics() Metrics { return b.metrics }

func (b *Backend) Solve(m *vrp.Model, params vrp.SearchParameters) (*vrp.Assignment, vrp.Status) {
	params = params.WithDefaults()
	started := time.Now()
	s := newSearch(m, params.Seed, started.Add(params.TimeLimit))
	b.metrics = Metrics{Strategy: string(params.Strategy)}

	var routes [][]int
	switch params.Strategy {
	case vrp.StrategyExact:
		routes, _ = s.exact(&b.metrics)
	case vrp.StrategyGreedy:
		p := s.construct()
		b.metrics.BestCost, b.metrics.FinalCost = p.cost, p.cost
		b.metrics.Unassigned = len(p.unassigned)
		if p.complete() {
			routes = p.routes
		}
	case vrp.StrategyALNS:
		routes = b.runALNS(s, params)
	default:
		routes = b.auto(s, params)
	}
	b.metrics.ElapsedMs = time.Since(started).Milliseconds()

	if routes == nil {
		status := vrp.StatusFail
		if s.expired() {
			status = vrp.StatusFailTimeout
		}
		b.log.Debug("search found no plan", zap.String("strategy", b.metrics.Strategy), zap.Stringer("status", status))
		return nil, status
	}
	a, err := vrp.NewAssignment(m, routes)
	if err != nil {
		b.log.Warn("search returned an infeasible plan", zap.Error(err))
		return nil, vrp.StatusFail
	}
	return a, vrp.StatusSuccess
}

// auto proves small instances exactly and falls back to ALNS when the
// exact search is too large or runs out of budget.
func (b *Backend) auto(s *search, params vrp.SearchParameters) [][]int {
	free := 0
	for _, u := range s.units {
		free += len(u.nodes)
	}
	if free <= params.ExactNodeLimit {
		b.metrics.Strategy = string(vrp.StrategyExact)
		routes, complete := s.exact(&b.metrics)
		if complete || s.expired() {
			return routes
		}
		exact := b.metrics
		heuristic := b.runALNS(s, params)
		b.metrics.Expanded = exact.Expanded
		if routes != nil && (heuristic == nil || s.m.PlanCost(routes) <= s.m.PlanCost(heuristic)) {
			b.metrics.BestCost = exact.BestCost
			return routes
		}
		return heuristic
	}
	return b.runALNS(s, params)
}

func (b *Backend) runALNS(s *search, params vrp.SearchParameters) [][]int {
	b.metrics.Strategy = string(vrp.StrategyALNS)
	init := s.construct()
	s.relocate(&init)
	best := s.alns(init, params, &b.metrics)
	b.metrics.Unassigned = len(best.unassigned)
	if !best.complete() {
		return nil
	}
	return best.routes
}
