package vrp

import "errors"

// ErrInfeasibleRoutes is returned by NewAssignment for routes that do not
// form a complete feasible plan of the model.
var ErrInfeasibleRoutes = errors.New("vrp: routes are not a feasible plan")

// Assignment is a solved plan: the successor and vehicle of every visited
// index, the cumul bounds of every dimension and the objective value.
type Assignment struct {
	next      []int
	vehicle   []int
	bounds    [][]span
	objective int64
}

// NewAssignment binds routes (one node list per vehicle, depot omitted)
// to m. Solver backends use it to hand their best plan back.
func NewAssignment(m *Model, routes [][]int) (*Assignment, error) {
	p, ok := m.evaluatePlan(routes)
	if !ok {
		return nil, ErrInfeasibleRoutes
	}
	return &Assignment{
		next:      p.next,
		vehicle:   p.vehicle,
		bounds:    p.bounds,
		objective: m.PlanCost(routes),
	}, nil
}

// Next returns the successor of index, or -1 for an end index.
func (a *Assignment) Next(index int) int { return a.next[index] }

// Vehicle returns the vehicle serving index, or -1.
func (a *Assignment) Vehicle(index int) int { return a.vehicle[index] }

func (a *Assignment) Min(d *Dimension, index int) int64 { return a.bounds[d.index][index].lo }
func (a *Assignment) Max(d *Dimension, index int) int64 { return a.bounds[d.index][index].hi }

func (a *Assignment) ObjectiveValue() int64 { return a.objective }
