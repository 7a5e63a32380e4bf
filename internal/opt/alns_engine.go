package opt

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"routeopt/internal/vrp"
)

// unit is the smallest thing the search moves: one visit, or a pickup and
// its delivery together.
type unit struct {
	nodes   []int
	vehicle int // -1 when any vehicle may serve it
}

// plan is a candidate solution. Routes include locked prefixes; the
// unassigned units are kept sorted.
type plan struct {
	routes     [][]int
	unassigned []int
	cost       int64
}

func (p plan) clone() plan {
	out := plan{routes: make([][]int, len(p.routes)), unassigned: append([]int(nil), p.unassigned...), cost: p.cost}
	for v, r := range p.routes {
		out.routes[v] = append([]int(nil), r...)
	}
	return out
}

func (p plan) complete() bool { return len(p.unassigned) == 0 }

type insertion struct {
	unit    int
	vehicle int
	route   []int
	delta   int64
}

// search holds the per-solve view of a model shared by every strategy.
type search struct {
	m        *vrp.Model
	units    []unit
	unitOf   []int
	lockLen  []int
	closed   []bool
	twin     []int
	penalty  int64
	rng      *rand.Rand
	deadline time.Time
	timeDim  *vrp.Dimension
}

func newSearch(m *vrp.Model, seed int64, deadline time.Time) *search {
	n, nv := m.NumNodes(), m.NumVehicles()
	s := &search{
		m:        m,
		unitOf:   make([]int, n),
		lockLen:  make([]int, nv),
		closed:   make([]bool, nv),
		twin:     make([]int, nv),
		rng:      rand.New(rand.NewSource(seed)),
		deadline: deadline,
	}
	s.timeDim, _ = m.GetDimension(vrp.DimensionTime)
	for i := range s.unitOf {
		s.unitOf[i] = -1
	}
	for v := 0; v < nv; v++ {
		s.lockLen[v] = len(m.LockedPrefix(v))
		s.closed[v] = m.RouteClosed(v)
	}
	s.twin = vehicleTwins(m)

	var maxArc int64
	for a := 0; a < n; a++ {
		for b := 0; b < n; b++ {
			c := m.ArcCost(a, b)
			if c < 0 {
				c = -c
			}
			maxArc = max(maxArc, c)
		}
	}
	s.penalty = 2*maxArc*int64(n+1) + 1

	for _, node := range m.Visits() {
		if m.LockOwner(node) >= 0 || s.unitOf[node] >= 0 {
			continue
		}
		u := unit{nodes: []int{node}, vehicle: -1}
		if partner, isPickup, paired := m.Partner(node); paired {
			switch {
			case m.LockOwner(partner) >= 0:
				u.vehicle = m.LockOwner(partner)
			case isPickup:
				u.nodes = []int{node, partner}
			default:
				u.nodes = []int{partner, node}
			}
		}
		id := len(s.units)
		s.units = append(s.units, u)
		for _, x := range u.nodes {
			s.unitOf[x] = id
		}
	}
	return s
}

// vehicleTwins maps each vehicle to the first vehicle that is
// interchangeable with it: same capacities and no lock.
func vehicleTwins(m *vrp.Model) []int {
	dims := m.Dimensions()
	nv := m.NumVehicles()
	twin := make([]int, nv)
	for v := 0; v < nv; v++ {
		twin[v] = v
		if len(m.LockedPrefix(v)) > 0 {
			continue
		}
	next:
		for u := 0; u < v; u++ {
			if twin[u] != u || len(m.LockedPrefix(u)) > 0 {
				continue
			}
			for _, d := range dims {
				if d.Capacity(u) != d.Capacity(v) {
					continue next
				}
			}
			twin[v] = u
			break
		}
	}
	return twin
}

func (s *search) expired() bool { return !time.Now().Before(s.deadline) }

func (s *search) emptyPlan() plan {
	p := plan{routes: make([][]int, s.m.NumVehicles())}
	for v := range p.routes {
		p.routes[v] = s.m.LockedPrefix(v)
	}
	for id := range s.units {
		p.unassigned = append(p.unassigned, id)
	}
	p.cost = s.m.PlanCost(p.routes)
	return p
}

// objective is the plan cost plus a penalty per unassigned unit, so any
// complete plan beats any incomplete one.
func (s *search) objective(p plan) float64 {
	return float64(p.cost) + float64(s.penalty)*float64(len(p.unassigned))
}

func insertAt(route []int, pos, node int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, node)
	return append(out, route[pos:]...)
}

// insertions returns the cheapest and second cheapest feasible insertion
// of unit id into p. Empty interchangeable vehicles are tried once.
func (s *search) insertions(p *plan, id int) (best, second insertion, ok bool) {
	u := s.units[id]
	best.delta, second.delta = math.MaxInt64, math.MaxInt64
	consider := func(v int, route []int, baseCost int64) {
		if !s.m.CheckRoute(v, route, true) {
			return
		}
		d := s.m.RouteCost(v, route) - baseCost
		switch {
		case !ok || d < best.delta:
			second = best
			best = insertion{unit: id, vehicle: v, route: route, delta: d}
			ok = true
		case d < second.delta:
			second = insertion{unit: id, vehicle: v, route: route, delta: d}
		}
	}
	for v, base := range p.routes {
		if s.closed[v] || (u.vehicle >= 0 && u.vehicle != v) {
			continue
		}
		if t := s.twin[v]; t != v && len(base) == 0 && len(p.routes[t]) == 0 {
			continue
		}
		baseCost := s.m.RouteCost(v, base)
		for i := s.lockLen[v]; i <= len(base); i++ {
			withFirst := insertAt(base, i, u.nodes[0])
			if len(u.nodes) == 1 {
				consider(v, withFirst, baseCost)
				continue
			}
			if !s.m.CheckRoute(v, withFirst[:i+1], false) {
				continue
			}
			for j := i + 1; j <= len(withFirst); j++ {
				consider(v, insertAt(withFirst, j, u.nodes[1]), baseCost)
			}
		}
	}
	return best, second, ok
}

func (s *search) apply(p *plan, ins insertion) {
	p.routes[ins.vehicle] = ins.route
	p.cost += ins.delta
	for i, id := range p.unassigned {
		if id == ins.unit {
			p.unassigned = append(p.unassigned[:i], p.unassigned[i+1:]...)
			break
		}
	}
}

// greedyInsert inserts units by cheapest feasible insertion until none
// fits. Units that fit nowhere stay unassigned.
func (s *search) greedyInsert(p *plan) {
	for len(p.unassigned) > 0 && !s.expired() {
		var chosen insertion
		found := false
		for _, id := range p.unassigned {
			best, _, ok := s.insertions(p, id)
			if ok && (!found || best.delta < chosen.delta) {
				chosen, found = best, true
			}
		}
		if !found {
			return
		}
		s.apply(p, chosen)
	}
}

// regretInsert inserts first the unit that loses most by not getting its
// best position (regret-2). A unit with a single option has maximal regret.
func (s *search) regretInsert(p *plan) {
	for len(p.unassigned) > 0 && !s.expired() {
		var chosen insertion
		var chosenRegret int64
		found := false
		for _, id := range p.unassigned {
			best, second, ok := s.insertions(p, id)
			if !ok {
				continue
			}
			regret := int64(math.MaxInt64)
			if second.delta != math.MaxInt64 {
				regret = second.delta - best.delta
			}
			if !found || regret > chosenRegret || (regret == chosenRegret && best.delta < chosen.delta) {
				chosen, chosenRegret, found = best, regret, true
			}
		}
		if !found {
			return
		}
		s.apply(p, chosen)
	}
}

// assignedUnits lists units in route order.
func (s *search) assignedUnits(p plan) []int {
	var out []int
	seen := make(map[int]bool)
	for _, r := range p.routes {
		for _, n := range r {
			if id := s.unitOf[n]; id >= 0 && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (s *search) randomRemoval(p plan, k int) []int {
	all := s.assignedUnits(p)
	var removed []int
	for i := 0; i < k && len(all) > 0; i++ {
		j := s.rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	return removed
}

// relatedRemoval picks a random unit and the k-1 units closest to it by
// arc cost and time window opening.
func (s *search) relatedRemoval(p plan, k int) []int {
	all := s.assignedUnits(p)
	if len(all) == 0 {
		return nil
	}
	seed := all[s.rng.Intn(len(all))]
	type scored struct {
		id    int
		score int64
	}
	rel := make([]scored, 0, len(all))
	for _, id := range all {
		if id != seed {
			rel = append(rel, scored{id: id, score: s.relatedness(seed, id)})
		}
	}
	sort.SliceStable(rel, func(i, j int) bool { return rel[i].score < rel[j].score })
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].id)
	}
	return removed
}

func (s *search) relatedness(a, b int) int64 {
	na, nb := s.units[a].nodes[0], s.units[b].nodes[0]
	score := s.m.ArcCost(na, nb) + s.m.ArcCost(nb, na)
	if s.timeDim != nil {
		d := s.timeDim.CumulVar(na).Min() - s.timeDim.CumulVar(nb).Min()
		if d < 0 {
			d = -d
		}
		score += d
	}
	return score
}

func (s *search) removeUnits(p *plan, ids []int) {
	if len(ids) == 0 {
		return
	}
	rm := make(map[int]bool, len(ids))
	for _, id := range ids {
		rm[id] = true
	}
	for v, r := range p.routes {
		kept := r[:0:0]
		for _, n := range r {
			if id := s.unitOf[n]; id < 0 || !rm[id] {
				kept = append(kept, n)
			}
		}
		p.routes[v] = kept
	}
	p.unassigned = append(p.unassigned, ids...)
	sort.Ints(p.unassigned)
	p.cost = s.m.PlanCost(p.routes)
}

// relocate moves each unit to its best position when that lowers the cost.
func (s *search) relocate(p *plan) {
	for _, id := range s.assignedUnits(*p) {
		if s.expired() {
			return
		}
		trial := p.clone()
		s.removeUnits(&trial, []int{id})
		best, _, ok := s.insertions(&trial, id)
		if ok && trial.cost+best.delta < p.cost {
			s.apply(&trial, best)
			*p = trial
		}
	}
}

// twoOpt reverses route segments after the locked prefix when that lowers
// the cost.
func (s *search) twoOpt(p *plan) {
	for v, r := range p.routes {
		if s.closed[v] || len(r)-s.lockLen[v] < 2 {
			continue
		}
		improved := ImproveRoute2Opt(s.m, v, r, s.lockLen[v], 4)
		p.routes[v] = improved
	}
	p.cost = s.m.PlanCost(p.routes)
}

// construct builds the initial plan by cheapest insertion.
func (s *search) construct() plan {
	p := s.emptyPlan()
	s.greedyInsert(&p)
	return p
}

// alns improves init with adaptive large neighbourhood search and returns
// the best plan seen. Operator weights adapt to the moves that paid off.
func (s *search) alns(init plan, params vrp.SearchParameters, m *Metrics) plan {
	curr := init
	best := init.clone()
	remW := []float64{1, 1}
	insW := []float64{1, 1}
	temp := params.InitialTemperature
	if temp <= 0 {
		temp = 0.05*float64(init.cost) + 1
	}
	cool := params.Cooling
	const snapshotEvery = 50
	m.BestCost = best.cost

	for m.Iterations < params.IterationLimit && !s.expired() {
		if len(s.units) == 0 {
			break
		}
		m.Iterations++
		k := 1 + s.rng.Intn(min(3, len(s.units)))
		op := selectOp(remW, s.rng)
		m.RemovalSelects[op]++
		ip := selectOp(insW, s.rng)
		m.InsertSelects[ip]++

		cand := curr.clone()
		var removed []int
		switch op {
		case 0:
			removed = s.randomRemoval(cand, k)
		case 1:
			removed = s.relatedRemoval(cand, k)
		}
		s.removeUnits(&cand, removed)
		switch ip {
		case 0:
			s.greedyInsert(&cand)
		case 1:
			s.regretInsert(&cand)
		}
		s.twoOpt(&cand)

		delta := s.objective(cand) - s.objective(curr)
		if delta < 0 || s.rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			if s.objective(cand) < s.objective(best) {
				s.relocate(&curr)
				best = curr.clone()
				remW[op] += 0.1
				insW[ip] += 0.1
				m.Improvements++
				m.BestCost = best.cost
			} else {
				remW[op] += 0.01
				insW[ip] += 0.01
				if delta > 0 {
					m.AcceptedWorse++
				}
			}
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
		}
		temp *= cool
		if m.Iterations%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, WeightSnapshot{Iteration: m.Iterations, Removal: [2]float64{remW[0], remW[1]}, Insertion: [2]float64{insW[0], insW[1]}})
		}
	}
	m.FinalCost = curr.cost
	m.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	m.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	return best
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
