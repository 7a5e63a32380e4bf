package vrp

// Solution is the caller facing result of a successful solve. Routes,
// Times and CostDetails hold one entry per vehicle; unused vehicles get
// empty lists.
type Solution struct {
	Cost        int64        `json:"cost"`
	Routes      [][]int      `json:"routes"`
	Times       [][]Interval `json:"times"`
	CostDetails [][]int64    `json:"costDetails"`
}

// ExtractSolution reads routes, arrival intervals and per-arc costs out of
// a.
func ExtractSolution(m *Model, a *Assignment) Solution {
	timeDim := m.MustDimension(DimensionTime)
	sol := Solution{
		Cost:        a.ObjectiveValue(),
		Routes:      make([][]int, m.numVehicles),
		Times:       make([][]Interval, m.numVehicles),
		CostDetails: make([][]int64, m.numVehicles),
	}
	for v := 0; v < m.numVehicles; v++ {
		route := []int{}
		times := []Interval{}
		details := []int64{}
		index := m.Start(v)
		if a.Next(index) != m.End(v) {
			for !m.IsEnd(index) {
				prev := index
				index = a.Next(prev)
				details = append(details, m.GetArcCostForVehicle(prev, index, v))
				if m.IsEnd(index) {
					break
				}
				route = append(route, m.IndexToNode(index))
				times = append(times, Interval{Start: a.Min(timeDim, index), Stop: a.Max(timeDim, index)})
			}
		}
		sol.Routes[v] = route
		sol.Times[v] = times
		sol.CostDetails[v] = details
	}
	return sol
}
