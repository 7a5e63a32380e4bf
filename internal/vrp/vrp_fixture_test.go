package vrp

func uniform(n int, v int64) [][]int64 {
	rows := make([][]int64, n)
	for i := range rows {
		rows[i] = make([]int64, n)
		for j := range rows[i] {
			rows[i][j] = v
		}
	}
	return rows
}

// testInput is n nodes with depot 0, unit costs and durations, wide
// windows, no demand and capacity 10 per vehicle.
func testInput(n, vehicles int) Input {
	costs, _ := NewCostMatrix(uniform(n, 1))
	durations, _ := NewDurationMatrix(uniform(n, 1))
	windows := make([]Interval, n)
	for i := range windows {
		windows[i] = Interval{Start: 0, Stop: 100}
	}
	caps := make([]int64, vehicles)
	for i := range caps {
		caps[i] = 10
	}
	return Input{
		Costs:             costs,
		Durations:         durations,
		TimeWindows:       NewTimeWindows(windows),
		Demands:           NewDemandVector(make([]int64, n)),
		NumNodes:          n,
		NumVehicles:       vehicles,
		VehicleDepot:      0,
		TimeHorizon:       100,
		VehicleCapacities: caps,
		RouteLocks:        make([][]int, vehicles),
	}
}
