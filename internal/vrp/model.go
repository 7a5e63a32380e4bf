// Package vrp builds and solves capacitated vehicle routing models with
// time windows, pickup-delivery pairs and locked route prefixes.
//
// The search itself is delegated to a Solver; this package owns input
// validation, model construction and solution extraction.
package vrp

import "fmt"

// Model is a routing model over numNodes nodes served by numVehicles
// vehicles that all start and end at one depot.
//
// Indices [0, numNodes) address nodes (the depot index is never visited),
// followed by one start index and then one end index per vehicle.
type Model struct {
	numNodes    int
	numVehicles int
	depot       int

	arcCost    TransitFunc
	dimensions []*Dimension
	byName     map[string]*Dimension

	constraints []Constraint
	pairs       []PickupDelivery
	partner     map[int]int
	pickup      map[int]bool

	closed      bool
	locks       [][]int
	lockOwner   []int
	closeRoutes bool

	status Status
}

// PickupDelivery links a pickup node to the delivery node it must precede
// on the same vehicle.
type PickupDelivery struct {
	Pickup   int `json:"pickup"`
	Delivery int `json:"delivery"`
}

func NewModel(numNodes, numVehicles, depot int) *Model {
	if numNodes <= 0 || numVehicles <= 0 || depot < 0 || depot >= numNodes {
		panic(fmt.Sprintf("vrp: invalid model shape nodes=%d vehicles=%d depot=%d", numNodes, numVehicles, depot))
	}
	owner := make([]int, numNodes)
	for i := range owner {
		owner[i] = -1
	}
	return &Model{
		numNodes:    numNodes,
		numVehicles: numVehicles,
		depot:       depot,
		arcCost:     func(int, int) int64 { return 0 },
		byName:      map[string]*Dimension{},
		partner:     map[int]int{},
		pickup:      map[int]bool{},
		locks:       make([][]int, numVehicles),
		lockOwner:   owner,
	}
}

func (m *Model) NumNodes() int    { return m.numNodes }
func (m *Model) NumVehicles() int { return m.numVehicles }
func (m *Model) Depot() int       { return m.depot }

// Size is the number of routing indices.
func (m *Model) Size() int { return m.numNodes + 2*m.numVehicles }

func (m *Model) Start(vehicle int) int { return m.numNodes + vehicle }
func (m *Model) End(vehicle int) int   { return m.numNodes + m.numVehicles + vehicle }

func (m *Model) IsStart(index int) bool {
	return index >= m.numNodes && index < m.numNodes+m.numVehicles
}

func (m *Model) IsEnd(index int) bool { return index >= m.numNodes+m.numVehicles }

// IndexToNode maps a routing index to its node; vehicle sentinels map to
// the depot.
func (m *Model) IndexToNode(index int) int {
	if index < m.numNodes {
		return index
	}
	return m.depot
}

func (m *Model) NodeToIndex(node int) int {
	if node < 0 || node >= m.numNodes {
		panic(fmt.Sprintf("vrp: node %d out of range [0, %d)", node, m.numNodes))
	}
	return node
}

// Visits lists every node that must be served, in index order.
func (m *Model) Visits() []int {
	out := make([]int, 0, m.numNodes-1)
	for n := 0; n < m.numNodes; n++ {
		if n != m.depot {
			out = append(out, n)
		}
	}
	return out
}

func (m *Model) SetArcCostEvaluatorOfAllVehicles(cost TransitFunc) error {
	if m.closed {
		return ErrModelClosed
	}
	m.arcCost = cost
	return nil
}

// ArcCost is the node level arc cost.
func (m *Model) ArcCost(from, to int) int64 { return m.arcCost(from, to) }

// GetArcCostForVehicle returns the cost of travelling between two routing
// indices. The start -> end arc of an unused vehicle is free.
func (m *Model) GetArcCostForVehicle(from, to, vehicle int) int64 {
	if from == m.Start(vehicle) && to == m.End(vehicle) {
		return 0
	}
	return m.arcCost(m.IndexToNode(from), m.IndexToNode(to))
}

// AddDimension adds a cumulative quantity with the same capacity for
// every vehicle.
func (m *Model) AddDimension(transit TransitFunc, slackMax, capacity int64, fixStartCumulToZero bool, name string) error {
	caps := make([]int64, m.numVehicles)
	for i := range caps {
		caps[i] = capacity
	}
	return m.AddDimensionWithVehicleCapacity(transit, slackMax, caps, fixStartCumulToZero, name)
}

func (m *Model) AddDimensionWithVehicleCapacity(transit TransitFunc, slackMax int64, capacities []int64, fixStartCumulToZero bool, name string) error {
	if m.closed {
		return ErrModelClosed
	}
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDim, name)
	}
	if len(capacities) != m.numVehicles {
		panic(fmt.Sprintf("vrp: dimension %s has %d capacities for %d vehicles", name, len(capacities), m.numVehicles))
	}
	var maxCap int64
	for _, c := range capacities {
		maxCap = max(maxCap, c)
	}
	d := &Dimension{
		name:       name,
		index:      len(m.dimensions),
		transit:    transit,
		slackMax:   slackMax,
		capacities: append([]int64(nil), capacities...),
		cumuls:     make([]IntVar, m.Size()),
	}
	for i := range d.cumuls {
		d.cumuls[i] = IntVar{min: 0, max: maxCap}
	}
	if fixStartCumulToZero {
		for v := 0; v < m.numVehicles; v++ {
			d.cumuls[m.Start(v)] = IntVar{min: 0, max: 0}
		}
	}
	m.dimensions = append(m.dimensions, d)
	m.byName[name] = d
	return nil
}

func (m *Model) GetDimension(name string) (*Dimension, error) {
	d, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDimension, name)
	}
	return d, nil
}

// Dimensions returns the registered dimensions in creation order.
func (m *Model) Dimensions() []*Dimension {
	return append([]*Dimension(nil), m.dimensions...)
}

// MustDimension is GetDimension for names the caller registered itself.
func (m *Model) MustDimension(name string) *Dimension {
	d, err := m.GetDimension(name)
	if err != nil {
		panic(err)
	}
	return d
}

func (m *Model) AddConstraint(c Constraint) error {
	if m.closed {
		return ErrModelClosed
	}
	m.constraints = append(m.constraints, c)
	return nil
}

// AddPickupAndDelivery registers pickup and delivery as one unit: both are
// served by the same vehicle with the pickup visited first.
func (m *Model) AddPickupAndDelivery(pickup, delivery int) error {
	if m.closed {
		return ErrModelClosed
	}
	m.NodeToIndex(pickup)
	m.NodeToIndex(delivery)
	m.pairs = append(m.pairs, PickupDelivery{Pickup: pickup, Delivery: delivery})
	m.partner[pickup] = delivery
	m.partner[delivery] = pickup
	m.pickup[pickup] = true
	return nil
}

func (m *Model) PickupDeliveryPairs() []PickupDelivery {
	return append([]PickupDelivery(nil), m.pairs...)
}

// Partner returns the node paired with node and whether node is the pickup.
func (m *Model) Partner(node int) (partner int, isPickup bool, ok bool) {
	partner, ok = m.partner[node]
	return partner, m.pickup[node], ok
}

// CloseModel freezes the model. Dimensions, constraints and pairs can no
// longer be added; locks can now be applied.
func (m *Model) CloseModel() { m.closed = true }

func (m *Model) Closed() bool { return m.closed }

// Dimension is a quantity accumulated along each route. Cumul(next) =
// Cumul(prev) + transit(prev, next) + slack, slack in [0, slackMax], and
// every cumul stays within [0, capacity of the vehicle].
type Dimension struct {
	name       string
	index      int
	transit    TransitFunc
	slackMax   int64
	capacities []int64
	cumuls     []IntVar
}

func (d *Dimension) Name() string               { return d.name }
func (d *Dimension) SlackMax() int64            { return d.slackMax }
func (d *Dimension) Capacity(vehicle int) int64 { return d.capacities[vehicle] }
func (d *Dimension) Transit(from, to int) int64 { return d.transit(from, to) }
func (d *Dimension) CumulVar(index int) *IntVar { return &d.cumuls[index] }

// IntVar is a bounded integer domain.
type IntVar struct {
	min, max int64
}

// SetRange intersects the domain with [lo, hi].
func (x *IntVar) SetRange(lo, hi int64) {
	x.min = max(x.min, lo)
	x.max = min(x.max, hi)
}

func (x *IntVar) Min() int64 { return x.min }
func (x *IntVar) Max() int64 { return x.max }
