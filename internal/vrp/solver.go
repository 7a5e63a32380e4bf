package vrp

import "time"

// Status is the outcome of the last solve on a model.
type Status int

const (
	StatusNotSolved Status = iota
	StatusSuccess
	StatusFail
	StatusFailTimeout
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusNotSolved:
		return "not_solved"
	case StatusSuccess:
		return "success"
	case StatusFail:
		return "fail"
	case StatusFailTimeout:
		return "fail_timeout"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Strategy names a search backend.
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyALNS   Strategy = "alns"
	StrategyExact  Strategy = "exact"
	StrategyGreedy Strategy = "greedy"
)

func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyALNS, StrategyExact, StrategyGreedy:
		return true
	}
	return false
}

// SearchParameters bound and tune the search. Zero fields take the values
// of DefaultSearchParameters.
type SearchParameters struct {
	Strategy           Strategy
	TimeLimit          time.Duration
	IterationLimit     int
	Seed               int64
	InitialTemperature float64
	Cooling            float64
	ExactNodeLimit     int
}

// DefaultSeed replaces a zero seed so unseeded solves are reproducible.
const DefaultSeed int64 = 1

func DefaultSearchParameters() SearchParameters {
	return SearchParameters{
		Strategy:       StrategyAuto,
		TimeLimit:      5 * time.Second,
		IterationLimit: 2000,
		Seed:           DefaultSeed,
		Cooling:        0.995,
		ExactNodeLimit: 9,
	}
}

// WithDefaults fills zero fields from DefaultSearchParameters.
func (p SearchParameters) WithDefaults() SearchParameters {
	d := DefaultSearchParameters()
	if p.Strategy == "" {
		p.Strategy = d.Strategy
	}
	if p.TimeLimit <= 0 {
		p.TimeLimit = d.TimeLimit
	}
	if p.IterationLimit <= 0 {
		p.IterationLimit = d.IterationLimit
	}
	if p.Seed == 0 {
		p.Seed = d.Seed
	}
	if p.Cooling <= 0 || p.Cooling >= 1 {
		p.Cooling = d.Cooling
	}
	if p.ExactNodeLimit <= 0 {
		p.ExactNodeLimit = d.ExactNodeLimit
	}
	return p
}

// Solver searches a closed, locked model for a low cost assignment.
type Solver interface {
	Solve(m *Model, params SearchParameters) (*Assignment, Status)
}

// SolveWithParameters runs s on the closed model and records the status.
// A nil assignment means no feasible plan was found.
func (m *Model) SolveWithParameters(s Solver, params SearchParameters) *Assignment {
	if !m.closed {
		m.status = StatusInvalid
		return nil
	}
	a, status := s.Solve(m, params.WithDefaults())
	if a == nil && status == StatusSuccess {
		status = StatusFail
	}
	m.status = status
	return a
}

func (m *Model) Status() Status { return m.status }
