package api

import (
	"fmt"

	"routeopt/internal/model"
	"routeopt/internal/vrp"
)

// validateSolveRequest checks the request envelope. Structural consistency
// of the problem itself (sizes, locks, pairs) is reported by the solver
// with a reason, so it is not repeated here.
func validateSolveRequest(req *model.SolveRequest) error {
	if req.NumNodes < 0 || req.NumVehicles < 0 {
		return fmt.Errorf("numNodes and numVehicles must be >= 0")
	}
	if req.TimeHorizon < 0 {
		return fmt.Errorf("timeHorizon must be >= 0")
	}
	if req.MaxWaitTime != nil && *req.MaxWaitTime < 0 {
		return fmt.Errorf("maxWaitTime must be >= 0")
	}
	if req.MatrixSetID == "" && (req.Costs == nil || req.Durations == nil) {
		return fmt.Errorf("costs and durations are required unless matrixSetId is given")
	}
	if req.MatrixSetID != "" && (req.Costs != nil || req.Durations != nil) {
		return fmt.Errorf("give either matrixSetId or inline costs/durations, not both")
	}
	if req.Demands.Empty() {
		return fmt.Errorf("demands are required")
	}
	if req.CallbackSecret != "" && req.CallbackURL == "" {
		return fmt.Errorf("callbackSecret needs callbackUrl")
	}
	if so := req.Search; so != nil {
		if so.Strategy != "" && !vrp.Strategy(so.Strategy).Valid() {
			return fmt.Errorf("invalid strategy: %s", so.Strategy)
		}
		if so.TimeLimitMs < 0 {
			return fmt.Errorf("search.timeLimitMs must be >= 0")
		}
		if so.IterationLimit < 0 {
			return fmt.Errorf("search.iterationLimit must be >= 0")
		}
		if so.Cooling != 0 && (so.Cooling <= 0 || so.Cooling >= 1) {
			return fmt.Errorf("search.cooling must be in (0,1)")
		}
		if so.InitialTemperature < 0 {
			return fmt.Errorf("search.initialTemperature must be >= 0")
		}
		if so.ExactNodeLimit < 0 {
			return fmt.Errorf("search.exactNodeLimit must be >= 0")
		}
	}
	return nil
}

func validateMatrixSetRequest(req *model.MatrixSetRequest) error {
	if len(req.Costs) == 0 || len(req.Durations) == 0 {
		return fmt.Errorf("costs and durations are required")
	}
	return nil
}
