package vrp

const (
	DimensionTime     = "time"
	DimensionCapacity = "capacity"
)

// ModelParameters tune model construction beyond the raw input.
type ModelParameters struct {
	// MaxWaitTime caps the idle time a vehicle may spend before a visit.
	// nil allows waiting up to the time horizon; 0 forbids waiting.
	MaxWaitTime *int64
}

// BuildModel turns a validated input into a closed model: arc costs,
// the time and capacity dimensions, time windows and pickup-delivery
// pairs. Locks are applied separately.
func BuildModel(in Input, params ModelParameters) (*Model, error) {
	m := NewModel(in.NumNodes, in.NumVehicles, in.VehicleDepot)
	if err := m.SetArcCostEvaluatorOfAllVehicles(in.Costs.Transit()); err != nil {
		return nil, err
	}

	slack := in.TimeHorizon
	if params.MaxWaitTime != nil {
		slack = *params.MaxWaitTime
	}
	if err := m.AddDimension(in.Durations.Transit(), slack, in.TimeHorizon, true, DimensionTime); err != nil {
		return nil, err
	}
	timeDim := m.MustDimension(DimensionTime)
	for node := 0; node < in.NumNodes; node++ {
		w := in.TimeWindows.At(node)
		if node != in.VehicleDepot {
			timeDim.CumulVar(m.NodeToIndex(node)).SetRange(w.Start, w.Stop)
			continue
		}
		for v := 0; v < in.NumVehicles; v++ {
			timeDim.CumulVar(m.Start(v)).SetRange(w.Start, w.Stop)
			timeDim.CumulVar(m.End(v)).SetRange(w.Start, w.Stop)
		}
	}

	if err := m.AddDimensionWithVehicleCapacity(in.Demands.Transit(), 0, in.VehicleCapacities, true, DimensionCapacity); err != nil {
		return nil, err
	}

	for i := range in.Pickups {
		p, d := m.NodeToIndex(in.Pickups[i]), m.NodeToIndex(in.Deliveries[i])
		if err := m.AddConstraint(SameVehicle(p, d)); err != nil {
			return nil, err
		}
		if err := m.AddConstraint(CumulLessOrEqual(timeDim, p, d)); err != nil {
			return nil, err
		}
		if err := m.AddPickupAndDelivery(in.Pickups[i], in.Deliveries[i]); err != nil {
			return nil, err
		}
	}

	m.CloseModel()
	return m, nil
}
