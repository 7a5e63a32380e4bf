package vrp_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"routeopt/internal/opt"
	"routeopt/internal/vrp"
)

func matrix(n int, f func(i, j int) int64) [][]int64 {
	rows := make([][]int64, n)
	for i := range rows {
		rows[i] = make([]int64, n)
		for j := range rows[i] {
			rows[i][j] = f(i, j)
		}
	}
	return rows
}

func ones(int, int) int64 { return 1 }

func scenario(t *testing.T, n, vehicles int, cost func(i, j int) int64) vrp.Input {
	t.Helper()
	costs, err := vrp.NewCostMatrix(matrix(n, cost))
	require.NoError(t, err)
	durations, err := vrp.NewDurationMatrix(matrix(n, ones))
	require.NoError(t, err)
	windows := make([]vrp.Interval, n)
	for i := range windows {
		windows[i] = vrp.Interval{Start: 0, Stop: 100}
	}
	caps := make([]int64, vehicles)
	for i := range caps {
		caps[i] = 10
	}
	return vrp.Input{
		Costs:             costs,
		Durations:         durations,
		TimeWindows:       vrp.NewTimeWindows(windows),
		Demands:           vrp.NewDemandVector(make([]int64, n)),
		NumNodes:          n,
		NumVehicles:       vehicles,
		TimeHorizon:       100,
		VehicleCapacities: caps,
		RouteLocks:        make([][]int, vehicles),
	}
}

func run(in vrp.Input, params vrp.SearchParameters) vrp.Result {
	w := &vrp.Worker{Input: in, Params: params, Solver: opt.NewBackend(zap.NewNop()), Logger: zap.NewNop()}
	return w.Run()
}

// requireValidSolution checks the structural properties every solution
// must have.
func requireValidSolution(t *testing.T, in vrp.Input, sol *vrp.Solution) {
	t.Helper()
	require.NotNil(t, sol)
	require.Len(t, sol.Routes, in.NumVehicles)
	require.Len(t, sol.Times, in.NumVehicles)
	require.Len(t, sol.CostDetails, in.NumVehicles)

	var total int64
	seen := map[int]int{}
	for v, route := range sol.Routes {
		require.Len(t, sol.Times[v], len(route))
		if len(route) == 0 {
			require.Empty(t, sol.CostDetails[v])
		} else {
			require.Len(t, sol.CostDetails[v], len(route)+1)
		}
		for _, c := range sol.CostDetails[v] {
			total += c
		}
		var load int64
		for k, node := range route {
			iv := sol.Times[v][k]
			require.LessOrEqual(t, iv.Start, iv.Stop)
			require.True(t, in.TimeWindows.At(node).Contains(iv), "node %d time %v outside window", node, iv)
			load += in.Demands.At(node, 0)
			require.LessOrEqual(t, load, in.VehicleCapacities[v])
			seen[node] = v
		}
	}
	require.Equal(t, sol.Cost, total)
	require.Len(t, seen, in.NumNodes-1)

	for i, p := range in.Pickups {
		d := in.Deliveries[i]
		require.Equal(t, seen[p], seen[d], "pair %d split", i)
		route := sol.Routes[seen[p]]
		pp, dp := indexOf(route, p), indexOf(route, d)
		require.Less(t, pp, dp)
		require.LessOrEqual(t, sol.Times[seen[p]][pp].Start, sol.Times[seen[d]][dp].Start)
	}
}

func indexOf(s []int, x int) int {
	for i, v := range s {
		if v == x {
			return i
		}
	}
	return -1
}

func TestFourNodeSingleVehicle(t *testing.T) {
	in := scenario(t, 4, 1, ones)
	res := run(in, vrp.SearchParameters{})
	require.NoError(t, res.Err)
	require.Equal(t, vrp.StatusSuccess, res.Status)
	requireValidSolution(t, in, res.Solution)
	require.Equal(t, int64(4), res.Solution.Cost, "three visits and the return leg")
	require.ElementsMatch(t, []int{1, 2, 3}, res.Solution.Routes[0])
}

func TestFourNodeFreeReturn(t *testing.T) {
	in := scenario(t, 4, 1, func(i, j int) int64 {
		if j == 0 {
			return 0
		}
		return 1
	})
	res := run(in, vrp.SearchParameters{Strategy: vrp.StrategyExact})
	require.NoError(t, res.Err)
	require.Equal(t, int64(3), res.Solution.Cost)
	requireValidSolution(t, in, res.Solution)
}

func TestUnreachableWindowHasNoSolution(t *testing.T) {
	in := scenario(t, 3, 1, ones)
	durations, err := vrp.NewDurationMatrix(matrix(3, func(int, int) int64 { return 5 }))
	require.NoError(t, err)
	in.Durations = durations
	in.TimeWindows = vrp.NewTimeWindows([]vrp.Interval{{Start: 0, Stop: 100}, {Start: 0, Stop: 100}, {Start: 0, Stop: 0}})

	for _, strategy := range []vrp.Strategy{vrp.StrategyAuto, vrp.StrategyALNS, vrp.StrategyGreedy} {
		res := run(in, vrp.SearchParameters{Strategy: strategy, IterationLimit: 50})
		require.ErrorIs(t, res.Err, vrp.ErrNoSolutionFound, "strategy %s", strategy)
		require.Nil(t, res.Solution)
		require.Equal(t, vrp.ReasonNoSolutionFound, vrp.ReasonOf(res.Err))
	}
}

func TestLateWindowBehindLongArcHasNoSolution(t *testing.T) {
	in := scenario(t, 4, 1, ones)
	durations, err := vrp.NewDurationMatrix(matrix(4, func(i, j int) int64 {
		if j == 1 && i != 1 {
			return 100
		}
		return 1
	}))
	require.NoError(t, err)
	in.Durations = durations
	in.TimeHorizon = 1000
	in.TimeWindows = vrp.NewTimeWindows([]vrp.Interval{
		{Start: 0, Stop: 1000}, {Start: 50, Stop: 60}, {Start: 0, Stop: 1000}, {Start: 0, Stop: 1000},
	})

	for _, strategy := range []vrp.Strategy{vrp.StrategyExact, vrp.StrategyALNS, vrp.StrategyGreedy} {
		res := run(in, vrp.SearchParameters{Strategy: strategy, IterationLimit: 50})
		require.ErrorIs(t, res.Err, vrp.ErrNoSolutionFound, "strategy %s", strategy)
		require.Nil(t, res.Solution)
	}
}

func TestHugeHorizonStaysFeasible(t *testing.T) {
	for _, h := range []int64{1 << 40, 1 << 62, math.MaxInt64} {
		in := scenario(t, 4, 1, ones)
		in.TimeHorizon = h
		windows := make([]vrp.Interval, 4)
		for i := range windows {
			windows[i] = vrp.Interval{Start: 0, Stop: h}
		}
		in.TimeWindows = vrp.NewTimeWindows(windows)

		res := run(in, vrp.SearchParameters{Strategy: vrp.StrategyExact})
		require.NoError(t, res.Err, "horizon %d", h)
		require.Equal(t, int64(4), res.Solution.Cost)
		requireValidSolution(t, in, res.Solution)

		wait := int64(math.MaxInt64)
		w := &vrp.Worker{Input: in, Params: vrp.SearchParameters{Strategy: vrp.StrategyALNS, IterationLimit: 20},
			Model: vrp.ModelParameters{MaxWaitTime: &wait}, Solver: opt.NewBackend(zap.NewNop()), Logger: zap.NewNop()}
		res = w.Run()
		require.NoError(t, res.Err, "horizon %d with unbounded wait", h)
	}
}

func TestValidationFailuresReachTheResult(t *testing.T) {
	in := scenario(t, 4, 2, ones)
	in.RouteLocks = [][]int{{1}}
	res := run(in, vrp.SearchParameters{})
	require.ErrorIs(t, res.Err, vrp.ErrLockCountMismatch)
	require.Equal(t, vrp.StatusInvalid, res.Status)
}

func TestConflictingLocksAreInvalid(t *testing.T) {
	in := scenario(t, 4, 2, ones)
	in.RouteLocks = [][]int{{1, 2}, {2}}
	res := run(in, vrp.SearchParameters{})
	require.ErrorIs(t, res.Err, vrp.ErrInvalidLocks)
}

func TestLocksAreHonoured(t *testing.T) {
	in := scenario(t, 6, 2, func(i, j int) int64 { return int64((i*7 + j*3) % 5) })
	in.RouteLocks = [][]int{{4, 2}, {}}
	res := run(in, vrp.SearchParameters{Strategy: vrp.StrategyALNS, IterationLimit: 100})
	require.NoError(t, res.Err)
	requireValidSolution(t, in, res.Solution)
	require.Equal(t, []int{4, 2}, res.Solution.Routes[0][:2])
}

func TestPickupDeliveryPairs(t *testing.T) {
	in := scenario(t, 7, 2, func(i, j int) int64 {
		d := int64(i - j)
		if d < 0 {
			d = -d
		}
		return d
	})
	in.Pickups = []int{4, 6}
	in.Deliveries = []int{1, 2}
	in.Demands = vrp.NewDemandVector([]int64{0, -3, -3, 0, 3, 0, 3})
	for _, strategy := range []vrp.Strategy{vrp.StrategyExact, vrp.StrategyALNS} {
		res := run(in, vrp.SearchParameters{Strategy: strategy, IterationLimit: 200})
		require.NoError(t, res.Err, "strategy %s", strategy)
		requireValidSolution(t, in, res.Solution)
	}
}

func TestCapacitySplitsRoutes(t *testing.T) {
	in := scenario(t, 5, 2, ones)
	in.Demands = vrp.NewDemandVector([]int64{0, 4, 4, 4, 4})
	in.VehicleCapacities = []int64{8, 8}
	res := run(in, vrp.SearchParameters{})
	require.NoError(t, res.Err)
	requireValidSolution(t, in, res.Solution)
	require.Len(t, res.Solution.Routes[0], 2)
	require.Len(t, res.Solution.Routes[1], 2)
	require.Equal(t, int64(6), res.Solution.Cost)
}

func TestUnusedVehicleHasEmptyLists(t *testing.T) {
	in := scenario(t, 3, 3, ones)
	res := run(in, vrp.SearchParameters{Strategy: vrp.StrategyExact})
	require.NoError(t, res.Err)
	requireValidSolution(t, in, res.Solution)
	require.Equal(t, int64(3), res.Solution.Cost)
	empty := 0
	for v := range res.Solution.Routes {
		if len(res.Solution.Routes[v]) == 0 {
			empty++
			require.Empty(t, res.Solution.Times[v])
			require.Empty(t, res.Solution.CostDetails[v])
		}
	}
	require.Equal(t, 2, empty)
}

func TestFixedSeedIsDeterministic(t *testing.T) {
	cost := func(i, j int) int64 { return int64((i*13+j*7)%11 + 1) }
	in := scenario(t, 12, 3, cost)
	in.Demands = vrp.NewDemandVector([]int64{0, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3})
	params := vrp.SearchParameters{Strategy: vrp.StrategyALNS, Seed: 42, IterationLimit: 60, TimeLimit: time.Minute}

	first := run(in, params)
	second := run(in, params)
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	requireValidSolution(t, in, first.Solution)
	require.Equal(t, first.Solution.Cost, second.Solution.Cost)
	require.Equal(t, first.Solution.Routes, second.Solution.Routes)
}

func TestDispatcherDeliversOneResultPerSubmission(t *testing.T) {
	d := vrp.NewDispatcher(2)
	var chans []<-chan vrp.Result
	for i := 0; i < 5; i++ {
		in := scenario(t, 4, 1, ones)
		chans = append(chans, d.Submit(context.Background(), &vrp.Worker{
			Input:  in,
			Solver: opt.NewBackend(nil),
		}))
	}
	d.Wait()
	for _, ch := range chans {
		select {
		case res := <-ch:
			require.NoError(t, res.Err)
			require.Equal(t, int64(4), res.Solution.Cost)
		default:
			t.Fatal("result missing after Wait")
		}
		select {
		case <-ch:
			t.Fatal("second result delivered")
		default:
		}
	}
}

func TestDispatcherCancelledBeforeSlot(t *testing.T) {
	d := vrp.NewDispatcher(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := <-d.Submit(ctx, &vrp.Worker{Input: scenario(t, 4, 1, ones), Solver: opt.NewBackend(nil)})
	require.ErrorIs(t, res.Err, context.Canceled)
}
