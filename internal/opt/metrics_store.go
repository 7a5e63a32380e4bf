package opt

import lru "github.com/hashicorp/golang-lru/v2"

// recentSolves bounds how many solves keep their search metrics.
const recentSolves = 1024

var store, _ = lru.New[string, Metrics](recentSolves)

// RecordMetrics keeps the search metrics of one solve, keyed by job id.
func RecordMetrics(job string, m Metrics) {
	store.Add(job, m)
}

func GetMetrics(job string) (Metrics, bool) {
	return store.Get(job)
}

// RecentMetrics returns the metrics of the most recently recorded solves.
func RecentMetrics() map[string]Metrics {
	out := make(map[string]Metrics, store.Len())
	for _, k := range store.Keys() {
		if v, ok := store.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}
