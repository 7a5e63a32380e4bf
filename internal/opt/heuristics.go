package opt

import "routeopt/internal/vrp"

// ImproveRoute2Opt applies 2-opt moves to route, leaving the first fixed
// nodes in place. A reversal is kept only when the route stays feasible
// and its cost drops.
func ImproveRoute2Opt(m *vrp.Model, vehicle int, route []int, fixed, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), route...)
	bestCost := m.RouteCost(vehicle, best)
	n := len(route)
	for it := 0; it < iterations; it++ {
		improved := false
		for i := fixed; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				c := m.RouteCost(vehicle, cand)
				if c >= bestCost || !m.CheckRoute(vehicle, cand, true) {
					continue
				}
				best, bestCost = cand, c
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	// reverse i..k
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
