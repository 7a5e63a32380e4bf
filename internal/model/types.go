// Package model holds the wire types shared by the API, job service and
// stores.
package model

import (
	"encoding/json"
	"errors"
	"time"

	"routeopt/internal/vrp"
)

// SolveRequest describes one routing problem. Costs and durations may be
// omitted when MatrixSetID names a stored matrix set.
type SolveRequest struct {
	Costs             [][]int64      `json:"costs,omitempty"`
	Durations         [][]int64      `json:"durations,omitempty"`
	TimeWindows       []vrp.Interval `json:"timeWindows"`
	Demands           Demands        `json:"demands"`
	NumNodes          int            `json:"numNodes"`
	NumVehicles       int            `json:"numVehicles"`
	VehicleDepot      int            `json:"vehicleDepot"`
	TimeHorizon       int64          `json:"timeHorizon"`
	VehicleCapacities []int64        `json:"vehicleCapacities"`
	RouteLocks        [][]int        `json:"routeLocks"`
	Pickups           []int          `json:"pickups"`
	Deliveries        []int          `json:"deliveries"`
	MaxWaitTime       *int64         `json:"maxWaitTime,omitempty"`

	Search *SearchOptions `json:"search,omitempty"`

	MatrixSetID    string `json:"matrixSetId,omitempty"`
	CallbackURL    string `json:"callbackUrl,omitempty"`
	CallbackSecret string `json:"callbackSecret,omitempty"`
}

type SearchOptions struct {
	Strategy           string  `json:"strategy,omitempty"`
	TimeLimitMs        int64   `json:"timeLimitMs,omitempty"`
	IterationLimit     int     `json:"iterationLimit,omitempty"`
	Seed               int64   `json:"seed,omitempty"`
	InitialTemperature float64 `json:"initialTemperature,omitempty"`
	Cooling            float64 `json:"cooling,omitempty"`
	ExactNodeLimit     int     `json:"exactNodeLimit,omitempty"`
}

// Demands accepts either a per-node vector or a full node x node matrix.
type Demands struct {
	Vector []int64
	Matrix [][]int64
}

func (d Demands) MarshalJSON() ([]byte, error) {
	if d.Matrix != nil {
		return json.Marshal(d.Matrix)
	}
	return json.Marshal(d.Vector)
}

func (d *Demands) UnmarshalJSON(b []byte) error {
	var vec []int64
	if err := json.Unmarshal(b, &vec); err == nil {
		d.Vector, d.Matrix = vec, nil
		return nil
	}
	var mat [][]int64
	if err := json.Unmarshal(b, &mat); err != nil {
		return errors.New("demands: want an array of numbers or an array of arrays")
	}
	d.Vector, d.Matrix = nil, mat
	return nil
}

func (d Demands) Empty() bool { return d.Vector == nil && d.Matrix == nil }

// ErrorResponse is the body of a failed solve.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Done() bool { return s == JobSucceeded || s == JobFailed }

// Job is the lifecycle record of one solve.
type Job struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenantId"`
	Status       JobStatus     `json:"status"`
	Strategy     string        `json:"strategy,omitempty"`
	SolverStatus string        `json:"solverStatus,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorDetail  string        `json:"errorDetail,omitempty"`
	NumNodes     int           `json:"numNodes"`
	NumVehicles  int           `json:"numVehicles"`
	MatrixSetID  string        `json:"matrixSetId,omitempty"`
	CallbackURL  string        `json:"callbackUrl,omitempty"`
	Result       *vrp.Solution `json:"result,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	FinishedAt   *time.Time    `json:"finishedAt,omitempty"`
	ElapsedMs    int64         `json:"elapsedMs,omitempty"`
}

// MatrixSet is a stored pair of cost and duration matrices that many
// solves can reference.
type MatrixSet struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Costs     [][]int64 `json:"costs"`
	Durations [][]int64 `json:"durations"`
	CreatedAt time.Time `json:"createdAt"`
}

// MatrixSetRequest creates a MatrixSet.
type MatrixSetRequest struct {
	Costs     [][]int64 `json:"costs"`
	Durations [][]int64 `json:"durations"`
}

// JobEvent is published to stream subscribers and webhook callbacks.
type JobEvent struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	TenantID string        `json:"tenantId"`
	JobID    string        `json:"jobId"`
	Status   JobStatus     `json:"status"`
	Error    string        `json:"error,omitempty"`
	Result   *vrp.Solution `json:"result,omitempty"`
	TS       string        `json:"ts"`
}

const (
	EventSolveStarted   = "solve.started"
	EventSolveCompleted = "solve.completed"
	EventSolveFailed    = "solve.failed"
)
