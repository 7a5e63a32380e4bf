package vrp

// ApplyLocksToAllVehicles fixes locks[v] as the first visits of vehicle v.
// With closeRoutes a non-empty lock is the whole route. It must be called
// after CloseModel and returns false, leaving the model unlocked, when the
// locks cannot be honoured: a node repeated across locks, a prefix that
// breaks a time or capacity bound, a delivery locked without its pickup
// ahead of it, or a pair split across vehicles.
func (m *Model) ApplyLocksToAllVehicles(locks [][]int, closeRoutes bool) bool {
	if !m.closed || len(locks) != m.numVehicles {
		return false
	}
	owner := make([]int, m.numNodes)
	for i := range owner {
		owner[i] = -1
	}
	for v, lock := range locks {
		for _, n := range lock {
			if n < 0 || n >= m.numNodes || n == m.depot || owner[n] >= 0 {
				return false
			}
			owner[n] = v
		}
	}
	for _, pd := range m.pairs {
		pv, dv := owner[pd.Pickup], owner[pd.Delivery]
		switch {
		case dv >= 0 && pv < 0:
			return false
		case dv >= 0 && pv != dv:
			return false
		case pv >= 0 && dv < 0 && closeRoutes:
			return false
		}
	}

	m.locks = make([][]int, m.numVehicles)
	for v, lock := range locks {
		m.locks[v] = append([]int(nil), lock...)
	}
	m.closeRoutes = closeRoutes
	m.lockOwner = owner
	for v, lock := range m.locks {
		if len(lock) == 0 {
			continue
		}
		if !m.CheckRoute(v, lock, closeRoutes) {
			m.clearLocks()
			return false
		}
	}
	return true
}

func (m *Model) clearLocks() {
	m.locks = make([][]int, m.numVehicles)
	m.closeRoutes = false
	for i := range m.lockOwner {
		m.lockOwner[i] = -1
	}
}

// LockedPrefix returns a copy of the nodes locked at the head of vehicle's
// route.
func (m *Model) LockedPrefix(vehicle int) []int {
	return append([]int(nil), m.locks[vehicle]...)
}

// RouteClosed reports whether vehicle's route is exactly its lock.
func (m *Model) RouteClosed(vehicle int) bool {
	return m.closeRoutes && len(m.locks[vehicle]) > 0
}

// LockOwner returns the vehicle whose lock holds node, or -1.
func (m *Model) LockOwner(node int) int { return m.lockOwner[node] }
