package vrp

// Input is everything one solve needs. The matrices may be shared with
// other concurrent solves and are never mutated.
type Input struct {
	Costs       *CostMatrix
	Durations   *DurationMatrix
	TimeWindows *TimeWindows
	Demands     *DemandMatrix

	NumNodes          int
	NumVehicles       int
	VehicleDepot      int
	TimeHorizon       int64
	VehicleCapacities []int64

	RouteLocks [][]int
	Pickups    []int
	Deliveries []int
}

// Validate checks the structural consistency of in before any model is
// built. It returns the first violation found.
func Validate(in Input) error {
	costsOk := in.Costs != nil && in.Costs.Dim() == in.NumNodes
	durationsOk := in.Durations != nil && in.Durations.Dim() == in.NumNodes
	timeWindowsOk := in.TimeWindows != nil && in.TimeWindows.Size() == in.NumNodes
	demandsOk := in.Demands != nil && in.Demands.Dim() == in.NumNodes
	if !costsOk || !durationsOk || !timeWindowsOk || !demandsOk {
		return ErrDimensionMismatch
	}

	if len(in.RouteLocks) != in.NumVehicles {
		return reasonError(ErrLockCountMismatch, "got %d locks for %d vehicles", len(in.RouteLocks), in.NumVehicles)
	}
	for v, locks := range in.RouteLocks {
		for _, node := range locks {
			if node < 0 || node >= in.NumNodes {
				return reasonError(ErrInvalidLockNode, "vehicle %d locks node %d out of range", v, node)
			}
			if node == in.VehicleDepot {
				return reasonError(ErrInvalidLockNode, "vehicle %d locks the depot", v)
			}
		}
	}

	if len(in.Pickups) != len(in.Deliveries) {
		return reasonError(ErrPickupDeliveryArityMismatch, "%d pickups, %d deliveries", len(in.Pickups), len(in.Deliveries))
	}

	if in.NumNodes <= 0 || in.NumVehicles <= 0 || in.VehicleDepot < 0 || in.VehicleDepot >= in.NumNodes {
		return ErrInvalidDepot
	}
	if len(in.VehicleCapacities) != in.NumVehicles {
		return reasonError(ErrCapacityCountMismatch, "got %d capacities for %d vehicles", len(in.VehicleCapacities), in.NumVehicles)
	}
	for node := 0; node < in.NumNodes; node++ {
		if w := in.TimeWindows.At(node); w.Start > w.Stop {
			return reasonError(ErrInvalidTimeWindow, "node %d window [%d, %d]", node, w.Start, w.Stop)
		}
	}
	seen := make(map[int]bool, 2*len(in.Pickups))
	for i := range in.Pickups {
		p, d := in.Pickups[i], in.Deliveries[i]
		for _, node := range [2]int{p, d} {
			if node < 0 || node >= in.NumNodes || node == in.VehicleDepot || seen[node] {
				return reasonError(ErrInvalidPickupDelivery, "pair %d (%d -> %d)", i, p, d)
			}
			seen[node] = true
		}
	}
	return nil
}
