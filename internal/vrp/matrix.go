package vrp

import (
	"encoding/json"
	"fmt"
)

// matrix is an immutable square lookup table. Values are copied on
// construction so callers can share one matrix across concurrent solves.
type matrix struct {
	n    int
	data []int64
}

func newMatrix(rows [][]int64) (matrix, error) {
	n := len(rows)
	data := make([]int64, n*n)
	for i, row := range rows {
		if len(row) != n {
			return matrix{}, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), n, ErrDimensionMismatch)
		}
		copy(data[i*n:], row)
	}
	return matrix{n: n, data: data}, nil
}

// Dim returns the number of rows (and columns).
func (m matrix) Dim() int { return m.n }

// At returns the value for the arc from -> to.
func (m matrix) At(from, to int) int64 { return m.data[from*m.n+to] }

// Rows returns a copy of the matrix as nested slices.
func (m matrix) Rows() [][]int64 {
	out := make([][]int64, m.n)
	for i := range out {
		out[i] = append([]int64(nil), m.data[i*m.n:(i+1)*m.n]...)
	}
	return out
}

// CostMatrix holds the arc cost between every pair of nodes.
type CostMatrix struct{ matrix }

func NewCostMatrix(rows [][]int64) (*CostMatrix, error) {
	m, err := newMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("cost matrix: %w", err)
	}
	return &CostMatrix{m}, nil
}

// DurationMatrix holds the travel time between every pair of nodes.
type DurationMatrix struct{ matrix }

func NewDurationMatrix(rows [][]int64) (*DurationMatrix, error) {
	m, err := newMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("duration matrix: %w", err)
	}
	return &DurationMatrix{m}, nil
}

// DemandMatrix holds the demand transit of an arc. When built from a vector
// the transit of from -> to is the demand of from.
type DemandMatrix struct {
	matrix
	vector []int64
}

func NewDemandMatrix(rows [][]int64) (*DemandMatrix, error) {
	m, err := newMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("demand matrix: %w", err)
	}
	return &DemandMatrix{matrix: m}, nil
}

func NewDemandVector(demands []int64) *DemandMatrix {
	return &DemandMatrix{matrix: matrix{n: len(demands)}, vector: append([]int64(nil), demands...)}
}

func (d *DemandMatrix) At(from, to int) int64 {
	if d.vector != nil {
		return d.vector[from]
	}
	return d.matrix.At(from, to)
}

// Interval is a closed [Start, Stop] range. It encodes to JSON as a
// two element array.
type Interval struct {
	Start int64
	Stop  int64
}

func (iv Interval) Contains(o Interval) bool { return o.Start >= iv.Start && o.Stop <= iv.Stop }

func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{iv.Start, iv.Stop})
}

func (iv *Interval) UnmarshalJSON(b []byte) error {
	var pair []int64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("interval: want [start, stop], got %d values", len(pair))
	}
	iv.Start, iv.Stop = pair[0], pair[1]
	return nil
}

// TimeWindows holds one arrival interval per node.
type TimeWindows struct {
	windows []Interval
}

func NewTimeWindows(windows []Interval) *TimeWindows {
	return &TimeWindows{windows: append([]Interval(nil), windows...)}
}

func (tw *TimeWindows) Size() int { return len(tw.windows) }

func (tw *TimeWindows) At(node int) Interval { return tw.windows[node] }

// TransitFunc returns the quantity accumulated along the arc between two nodes.
type TransitFunc func(from, to int) int64

func (c *CostMatrix) Transit() TransitFunc     { return c.At }
func (d *DurationMatrix) Transit() TransitFunc { return d.At }
func (d *DemandMatrix) Transit() TransitFunc   { return d.At }

// Vector returns the per-node demands when d was built from a vector.
func (d *DemandMatrix) Vector() []int64 { return append([]int64(nil), d.vector...) }

func (d *DemandMatrix) Rows() [][]int64 {
	if d.vector == nil {
		return d.matrix.Rows()
	}
	out := make([][]int64, d.n)
	for i := range out {
		out[i] = make([]int64, d.n)
		for j := range out[i] {
			out[i][j] = d.vector[i]
		}
	}
	return out
}
