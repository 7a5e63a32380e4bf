package jobs

import (
	"errors"
	"fmt"
	"time"

	"routeopt/internal/model"
	"routeopt/internal/vrp"
)

// ErrBadRequest marks requests rejected before a job is created.
var ErrBadRequest = errors.New("bad request")

func newMatrices(costs, durations [][]int64) (*Matrices, error) {
	c, err := vrp.NewCostMatrix(costs)
	if err != nil {
		return nil, err
	}
	d, err := vrp.NewDurationMatrix(durations)
	if err != nil {
		return nil, err
	}
	return &Matrices{Costs: c, Durations: d}, nil
}

// buildInput converts a request and its resolved matrices into solver
// input. Shape problems inside a matrix surface as DimensionMismatch.
func buildInput(req model.SolveRequest, m *Matrices) (vrp.Input, error) {
	in := vrp.Input{
		Costs:             m.Costs,
		Durations:         m.Durations,
		TimeWindows:       vrp.NewTimeWindows(req.TimeWindows),
		NumNodes:          req.NumNodes,
		NumVehicles:       req.NumVehicles,
		VehicleDepot:      req.VehicleDepot,
		TimeHorizon:       req.TimeHorizon,
		VehicleCapacities: req.VehicleCapacities,
		RouteLocks:        req.RouteLocks,
		Pickups:           req.Pickups,
		Deliveries:        req.Deliveries,
	}
	switch {
	case req.Demands.Matrix != nil:
		d, err := vrp.NewDemandMatrix(req.Demands.Matrix)
		if err != nil {
			return in, err
		}
		in.Demands = d
	case req.Demands.Vector != nil:
		in.Demands = vrp.NewDemandVector(req.Demands.Vector)
	}
	return in, nil
}

// searchParameters overlays the request's search options on defaults.
func searchParameters(defaults vrp.SearchParameters, opts *model.SearchOptions) (vrp.SearchParameters, error) {
	p := defaults
	if opts == nil {
		return p, nil
	}
	if opts.Strategy != "" {
		p.Strategy = vrp.Strategy(opts.Strategy)
		if !p.Strategy.Valid() {
			return p, fmt.Errorf("%w: unknown strategy %q", ErrBadRequest, opts.Strategy)
		}
	}
	if opts.TimeLimitMs > 0 {
		p.TimeLimit = time.Duration(opts.TimeLimitMs) * time.Millisecond
	}
	if opts.IterationLimit > 0 {
		p.IterationLimit = opts.IterationLimit
	}
	if opts.Seed != 0 {
		p.Seed = opts.Seed
	}
	if opts.InitialTemperature > 0 {
		p.InitialTemperature = opts.InitialTemperature
	}
	if opts.Cooling > 0 {
		p.Cooling = opts.Cooling
	}
	if opts.ExactNodeLimit > 0 {
		p.ExactNodeLimit = opts.ExactNodeLimit
	}
	return p.WithDefaults(), nil
}
