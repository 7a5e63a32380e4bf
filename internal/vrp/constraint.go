package vrp

// Constraint restricts how indices are assigned and scheduled. Constraints
// are evaluated on every candidate route and plan; they may tighten cumul
// bounds and report whether the candidate is still feasible.
type Constraint interface {
	propagate(p *plan) (changed, ok bool)
}

type sameVehicle struct{ a, b int }

// SameVehicle requires a and b to be served by the same vehicle.
func SameVehicle(a, b int) Constraint { return sameVehicle{a: a, b: b} }

func (c sameVehicle) propagate(p *plan) (bool, bool) {
	va, vb := p.vehicle[c.a], p.vehicle[c.b]
	if va < 0 || vb < 0 {
		return false, true
	}
	return false, va == vb
}

type cumulLessOrEqual struct {
	dim  *Dimension
	a, b int
}

// CumulLessOrEqual requires cumul(a) <= cumul(b) on dim.
func CumulLessOrEqual(dim *Dimension, a, b int) Constraint {
	return cumulLessOrEqual{dim: dim, a: a, b: b}
}

func (c cumulLessOrEqual) propagate(p *plan) (bool, bool) {
	if p.vehicle[c.a] < 0 || p.vehicle[c.b] < 0 {
		return false, true
	}
	bounds := p.bounds[c.dim.index]
	sa, sb := bounds[c.a], bounds[c.b]
	hiA := min(sa.hi, sb.hi)
	loB := max(sb.lo, sa.lo)
	changed := hiA != sa.hi || loB != sb.lo
	bounds[c.a].hi = hiA
	bounds[c.b].lo = loB
	return changed, sa.lo <= hiA && loB <= sb.hi
}
