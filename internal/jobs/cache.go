package jobs

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"routeopt/internal/vrp"
)

// Matrices is an immutable cost/duration pair shared by every solve that
// references the same matrix set.
type Matrices struct {
	Costs     *vrp.CostMatrix
	Durations *vrp.DurationMatrix
}

// MatrixCache keeps recently used matrix sets in memory, keyed by tenant
// and id.
type MatrixCache struct {
	lru *lru.Cache[string, *Matrices]
}

func NewMatrixCache(size int) (*MatrixCache, error) {
	c, err := lru.New[string, *Matrices](size)
	if err != nil {
		return nil, err
	}
	return &MatrixCache{lru: c}, nil
}

func cacheKey(tenantID, id string) string { return tenantID + "/" + id }

func (c *MatrixCache) Get(tenantID, id string) (*Matrices, bool) {
	return c.lru.Get(cacheKey(tenantID, id))
}

func (c *MatrixCache) Add(tenantID, id string, m *Matrices) {
	c.lru.Add(cacheKey(tenantID, id), m)
}

func (c *MatrixCache) Len() int { return c.lru.Len() }
