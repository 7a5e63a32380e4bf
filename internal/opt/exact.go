package opt

import "routeopt/internal/vrp"

// maxExactExpansions caps the nodes the exact search may expand.
const maxExactExpansions = 2_000_000

// exactSearch enumerates plans vehicle by vehicle: the open vehicle is
// either extended by one visit or closed, and the next vehicle opens.
// Filling vehicles in order avoids enumerating the same plan twice.
type exactSearch struct {
	*search
	routes   [][]int
	where    []int
	free     []int
	allowed  []int
	prune    bool
	best     [][]int
	bestCost int64
	found    bool
	expanded int
	aborted  bool
}

// exact returns the cheapest complete plan and whether the search space
// was exhausted. A nil plan with complete set proves infeasibility.
func (s *search) exact(m *Metrics) (routes [][]int, complete bool) {
	e := &exactSearch{search: s, prune: true}
	n, nv := s.m.NumNodes(), s.m.NumVehicles()
	for a := 0; a < n && e.prune; a++ {
		for b := 0; b < n; b++ {
			if s.m.ArcCost(a, b) < 0 {
				e.prune = false
				break
			}
		}
	}
	e.where = make([]int, n)
	e.allowed = make([]int, n)
	for i := range e.where {
		e.where[i] = s.m.LockOwner(i)
		e.allowed[i] = -1
	}
	for _, u := range s.units {
		for _, x := range u.nodes {
			e.free = append(e.free, x)
			e.allowed[x] = u.vehicle
		}
	}
	e.routes = make([][]int, nv)
	for v := range e.routes {
		e.routes[v] = s.m.LockedPrefix(v)
	}
	e.dfs(0, len(e.free), 0, e.pathCost(0))
	m.Expanded = e.expanded
	m.ExactComplete = !e.aborted
	if e.found {
		m.BestCost = e.bestCost
		m.FinalCost = e.bestCost
	}
	return e.best, !e.aborted
}

// pathCost is the cost from the vehicle start through its current route,
// without the return to the depot.
func (e *exactSearch) pathCost(v int) int64 {
	var total int64
	prev := e.m.Start(v)
	for _, n := range e.routes[v] {
		total += e.m.GetArcCostForVehicle(prev, n, v)
		prev = n
	}
	return total
}

func (e *exactSearch) stop() bool {
	if e.aborted {
		return true
	}
	if e.expanded >= maxExactExpansions || (e.expanded%1024 == 0 && e.expired()) {
		e.aborted = true
	}
	return e.aborted
}

// closable reports whether the open vehicle v can end here: the route
// returns in time and leaves no pickup or vehicle-bound visit behind.
func (e *exactSearch) closable(v int) bool {
	for _, n := range e.free {
		if e.where[n] >= 0 {
			partner, isPickup, paired := e.m.Partner(n)
			if paired && isPickup && e.where[n] == v && e.where[partner] < 0 {
				return false
			}
			continue
		}
		if e.allowed[n] == v {
			return false
		}
	}
	return e.m.CheckRoute(v, e.routes[v], true)
}

func (e *exactSearch) dfs(v, remaining int, closedCost, openCost int64) {
	if e.stop() {
		return
	}
	if e.prune && e.found && closedCost+openCost >= e.bestCost {
		return
	}
	nv := e.m.NumVehicles()

	// interchangeable with an earlier vehicle that stayed empty: stay empty too
	forcedEmpty := e.twin[v] != v && len(e.routes[e.twin[v]]) == 0
	if !e.closed[v] && !forcedEmpty {
		last := e.m.Start(v)
		if r := e.routes[v]; len(r) > 0 {
			last = r[len(r)-1]
		}
		for _, n := range e.free {
			if e.where[n] >= 0 || (e.allowed[n] >= 0 && e.allowed[n] != v) {
				continue
			}
			if partner, isPickup, paired := e.m.Partner(n); paired && !isPickup && e.where[partner] != v {
				continue
			}
			e.routes[v] = append(e.routes[v], n)
			if e.m.CheckRoute(v, e.routes[v], false) {
				e.expanded++
				e.where[n] = v
				e.dfs(v, remaining-1, closedCost, openCost+e.m.GetArcCostForVehicle(last, n, v))
				e.where[n] = -1
			}
			e.routes[v] = e.routes[v][:len(e.routes[v])-1]
			if e.aborted {
				return
			}
		}
	}

	if !e.closable(v) {
		return
	}
	routeCost := e.m.RouteCost(v, e.routes[v])
	if v == nv-1 {
		total := closedCost + routeCost
		if remaining == 0 && (!e.found || total < e.bestCost) {
			e.found = true
			e.bestCost = total
			e.best = make([][]int, nv)
			for u, r := range e.routes {
				e.best[u] = append([]int(nil), r...)
			}
		}
		return
	}
	e.dfs(v+1, remaining, closedCost+routeCost, e.pathCost(v+1))
}
