package vrp

import "math"

// span is the feasible range of one cumul.
type span struct{ lo, hi int64 }

// plan is the propagated state of a set of routes: who serves each index,
// its successor and the cumul bounds of every dimension.
type plan struct {
	vehicle []int
	next    []int
	bounds  [][]span
}

func (m *Model) newPlan() *plan {
	size := m.Size()
	p := &plan{
		vehicle: make([]int, size),
		next:    make([]int, size),
		bounds:  make([][]span, len(m.dimensions)),
	}
	for i := range p.vehicle {
		p.vehicle[i] = -1
		p.next[i] = -1
	}
	for d := range p.bounds {
		p.bounds[d] = make([]span, size)
	}
	return p
}

// routeBounds propagates every dimension along seq. The forward pass
// decides feasibility; the backward pass narrows each interval to the
// values that still admit a completion of the chain.
func (m *Model) routeBounds(vehicle int, seq []int, p *plan) bool {
	for _, d := range m.dimensions {
		b := make([]span, len(seq))
		capacity := d.capacities[vehicle]
		for k, idx := range seq {
			c := d.cumuls[idx]
			lo, hi := max(c.min, 0), min(c.max, capacity)
			if k > 0 {
				t := d.transit(m.IndexToNode(seq[k-1]), m.IndexToNode(idx))
				lo = max(lo, satAdd(b[k-1].lo, t))
				hi = min(hi, satAdd(satAdd(b[k-1].hi, t), d.slackMax))
			}
			if lo > hi {
				return false
			}
			b[k] = span{lo: lo, hi: hi}
		}
		for k := len(seq) - 2; k >= 0; k-- {
			t := d.transit(m.IndexToNode(seq[k]), m.IndexToNode(seq[k+1]))
			b[k].hi = min(b[k].hi, satSub(b[k+1].hi, t))
			b[k].lo = max(b[k].lo, satSub(satSub(b[k+1].lo, t), d.slackMax))
		}
		for k, idx := range seq {
			p.bounds[d.index][idx] = b[k]
		}
	}
	return true
}

// satAdd adds without wrapping: results clamp to the int64 range, so an
// unbounded horizon or slack cannot turn a bound negative.
func satAdd(a, b int64) int64 {
	c := a + b
	if (c > a) == (b > 0) {
		return c
	}
	if b > 0 {
		return math.MaxInt64
	}
	return math.MinInt64
}

func satSub(a, b int64) int64 {
	c := a - b
	if (c < a) == (b > 0) {
		return c
	}
	if b > 0 {
		return math.MinInt64
	}
	return math.MaxInt64
}

// place writes one vehicle's route into p. It rejects the depot, repeated
// nodes, a broken lock prefix and a delivery placed before its pickup.
func (m *Model) place(p *plan, vehicle int, nodes []int, closed bool) bool {
	if !m.respectsLock(vehicle, nodes, closed) {
		return false
	}
	seq := make([]int, 0, len(nodes)+2)
	seq = append(seq, m.Start(vehicle))
	for _, n := range nodes {
		if n < 0 || n >= m.numNodes || n == m.depot || p.vehicle[n] >= 0 {
			return false
		}
		// a pickup whose delivery is already on this route came too late
		if delivery, ok := m.partner[n]; ok && m.pickup[n] && p.vehicle[delivery] == vehicle {
			return false
		}
		p.vehicle[n] = vehicle
		seq = append(seq, n)
	}
	p.vehicle[m.Start(vehicle)] = vehicle
	if closed {
		seq = append(seq, m.End(vehicle))
		p.vehicle[m.End(vehicle)] = vehicle
	}
	for k := 0; k+1 < len(seq); k++ {
		p.next[seq[k]] = seq[k+1]
	}
	return m.routeBounds(vehicle, seq, p)
}

func (m *Model) respectsLock(vehicle int, nodes []int, closed bool) bool {
	lock := m.locks[vehicle]
	if len(nodes) < len(lock) {
		return false
	}
	for i, n := range lock {
		if nodes[i] != n {
			return false
		}
	}
	if closed && m.closeRoutes && len(lock) > 0 && len(nodes) != len(lock) {
		return false
	}
	return true
}

func (m *Model) propagateConstraints(p *plan) bool {
	for round := 0; round <= len(m.constraints); round++ {
		changed := false
		for _, c := range m.constraints {
			ch, ok := c.propagate(p)
			if !ok {
				return false
			}
			changed = changed || ch
		}
		if !changed {
			return true
		}
	}
	return true
}

// CheckRoute reports whether nodes is a feasible route for vehicle on its
// own. With closed false the route is treated as a prefix: the return to
// the depot is not checked and more nodes may follow.
func (m *Model) CheckRoute(vehicle int, nodes []int, closed bool) bool {
	p := m.newPlan()
	if !m.place(p, vehicle, nodes, closed) {
		return false
	}
	return m.propagateConstraints(p)
}

// CheckPlan reports whether routes (one per vehicle) together serve every
// visit exactly once and satisfy all constraints.
func (m *Model) CheckPlan(routes [][]int) bool {
	_, ok := m.evaluatePlan(routes)
	return ok
}

func (m *Model) evaluatePlan(routes [][]int) (*plan, bool) {
	if len(routes) != m.numVehicles {
		return nil, false
	}
	p := m.newPlan()
	served := 0
	for v, nodes := range routes {
		if !m.place(p, v, nodes, true) {
			return nil, false
		}
		served += len(nodes)
	}
	if served != m.numNodes-1 {
		return nil, false
	}
	for _, pd := range m.pairs {
		if p.vehicle[pd.Pickup] != p.vehicle[pd.Delivery] {
			return nil, false
		}
	}
	if !m.propagateConstraints(p) {
		return nil, false
	}
	return p, true
}

// RouteCost is the arc cost of serving nodes with vehicle, including the
// legs from and back to the depot. An empty route costs nothing.
func (m *Model) RouteCost(vehicle int, nodes []int) int64 {
	if len(nodes) == 0 {
		return 0
	}
	var total int64
	prev := m.Start(vehicle)
	for _, n := range nodes {
		total += m.GetArcCostForVehicle(prev, n, vehicle)
		prev = n
	}
	return total + m.GetArcCostForVehicle(prev, m.End(vehicle), vehicle)
}

// PlanCost sums RouteCost over all vehicles.
func (m *Model) PlanCost(routes [][]int) int64 {
	var total int64
	for v, nodes := range routes {
		total += m.RouteCost(v, nodes)
	}
	return total
}
