package vrp

import (
	"errors"
	"fmt"
)

// Reason is the externally reported failure category of a solve.
type Reason string

const (
	ReasonDimensionMismatch           Reason = "DimensionMismatch"
	ReasonLockCountMismatch           Reason = "LockCountMismatch"
	ReasonInvalidLockNode             Reason = "InvalidLockNode"
	ReasonPickupDeliveryArityMismatch Reason = "PickupDeliveryArityMismatch"
	ReasonCapacityCountMismatch       Reason = "CapacityCountMismatch"
	ReasonInvalidTimeWindow           Reason = "InvalidTimeWindow"
	ReasonInvalidPickupDelivery       Reason = "InvalidPickupDelivery"
	ReasonInvalidDepot                Reason = "InvalidDepot"
	ReasonInvalidLocks                Reason = "InvalidLocks"
	ReasonNoSolutionFound             Reason = "NoSolutionFound"
)

// Error carries a Reason plus a human readable detail. Two errors match
// under errors.Is when their reasons are equal.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrDimensionMismatch           = &Error{Reason: ReasonDimensionMismatch, Detail: "expected costs, durations, timeWindow and demand sizes to match numNodes"}
	ErrLockCountMismatch           = &Error{Reason: ReasonLockCountMismatch, Detail: "expected routeLocks size to match numVehicles"}
	ErrInvalidLockNode             = &Error{Reason: ReasonInvalidLockNode, Detail: "expected nodes in route locks to be in [0, numNodes - 1] and not the depot"}
	ErrPickupDeliveryArityMismatch = &Error{Reason: ReasonPickupDeliveryArityMismatch, Detail: "expected pickups and deliveries parallel array sizes to match"}
	ErrCapacityCountMismatch       = &Error{Reason: ReasonCapacityCountMismatch, Detail: "expected vehicleCapacities size to match numVehicles"}
	ErrInvalidTimeWindow           = &Error{Reason: ReasonInvalidTimeWindow, Detail: "expected time window start <= stop"}
	ErrInvalidPickupDelivery       = &Error{Reason: ReasonInvalidPickupDelivery, Detail: "expected pickup and delivery nodes in [0, numNodes - 1], distinct and not the depot"}
	ErrInvalidDepot                = &Error{Reason: ReasonInvalidDepot, Detail: "expected positive node and vehicle counts and depot in [0, numNodes - 1]"}
	ErrInvalidLocks                = &Error{Reason: ReasonInvalidLocks, Detail: "invalid locks"}
	ErrNoSolutionFound             = &Error{Reason: ReasonNoSolutionFound, Detail: "unable to find a solution"}
)

// Model lifecycle errors. These indicate misuse of the Model API rather
// than bad input.
var (
	ErrModelClosed      = errors.New("vrp: model is closed")
	ErrModelOpen        = errors.New("vrp: model is not closed")
	ErrDuplicateDim     = errors.New("vrp: dimension already exists")
	ErrUnknownDimension = errors.New("vrp: unknown dimension")
)

func reasonError(base *Error, format string, args ...any) *Error {
	return &Error{Reason: base.Reason, Detail: base.Detail + ": " + fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the Reason from err, or "" if err carries none.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
