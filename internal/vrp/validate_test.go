package vrp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsConsistentInput(t *testing.T) {
	in := testInput(5, 2)
	in.Pickups = []int{1, 3}
	in.Deliveries = []int{2, 4}
	in.RouteLocks = [][]int{{1}, {}}
	require.NoError(t, Validate(in))
}

func TestValidateReasons(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(in *Input)
		want   *Error
	}{
		{"cost dim", func(in *Input) { in.Costs, _ = NewCostMatrix(uniform(3, 1)) }, ErrDimensionMismatch},
		{"missing durations", func(in *Input) { in.Durations = nil }, ErrDimensionMismatch},
		{"windows size", func(in *Input) { in.TimeWindows = NewTimeWindows(nil) }, ErrDimensionMismatch},
		{"demand dim", func(in *Input) { in.Demands = NewDemandVector([]int64{0, 1}) }, ErrDimensionMismatch},
		{"lock count", func(in *Input) { in.RouteLocks = [][]int{{}} }, ErrLockCountMismatch},
		{"lock out of range", func(in *Input) { in.RouteLocks = [][]int{{7}, {}} }, ErrInvalidLockNode},
		{"lock negative", func(in *Input) { in.RouteLocks = [][]int{{}, {-1}} }, ErrInvalidLockNode},
		{"lock depot", func(in *Input) { in.RouteLocks = [][]int{{1, 0}, {}} }, ErrInvalidLockNode},
		{"pair arity", func(in *Input) { in.Pickups = []int{1}; in.Deliveries = nil }, ErrPickupDeliveryArityMismatch},
		{"capacity count", func(in *Input) { in.VehicleCapacities = []int64{10} }, ErrCapacityCountMismatch},
		{"inverted window", func(in *Input) {
			in.TimeWindows = NewTimeWindows([]Interval{{0, 100}, {5, 4}, {0, 100}, {0, 100}, {0, 100}})
		}, ErrInvalidTimeWindow},
		{"pickup is depot", func(in *Input) { in.Pickups = []int{0}; in.Deliveries = []int{1} }, ErrInvalidPickupDelivery},
		{"node in two pairs", func(in *Input) { in.Pickups = []int{1, 1}; in.Deliveries = []int{2, 3} }, ErrInvalidPickupDelivery},
		{"self pair", func(in *Input) { in.Pickups = []int{2}; in.Deliveries = []int{2} }, ErrInvalidPickupDelivery},
		{"depot out of range", func(in *Input) { in.VehicleDepot = 9 }, ErrInvalidDepot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := testInput(5, 2)
			tc.mutate(&in)
			err := Validate(in)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			require.Equal(t, tc.want.Reason, ReasonOf(err))
		})
	}
}

func TestValidateChecksInOrder(t *testing.T) {
	in := testInput(5, 2)
	in.Costs, _ = NewCostMatrix(uniform(4, 1))
	in.RouteLocks = nil
	in.Pickups = []int{1}
	require.ErrorIs(t, Validate(in), ErrDimensionMismatch)

	in = testInput(5, 2)
	in.RouteLocks = [][]int{{0}}
	require.ErrorIs(t, Validate(in), ErrLockCountMismatch)

	in = testInput(5, 2)
	in.RouteLocks = [][]int{{0}, {}}
	in.Pickups = []int{1}
	require.ErrorIs(t, Validate(in), ErrInvalidLockNode)
}

func TestRaggedMatrixIsDimensionMismatch(t *testing.T) {
	_, err := NewCostMatrix([][]int64{{0, 1}, {1}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDemandVectorTransit(t *testing.T) {
	d := NewDemandVector([]int64{0, 3, -3})
	require.Equal(t, 3, d.Dim())
	require.Equal(t, int64(3), d.At(1, 2))
	require.Equal(t, int64(-3), d.Transit()(2, 0))
	require.Equal(t, [][]int64{{0, 0, 0}, {3, 3, 3}, {-3, -3, -3}}, d.Rows())
}
