package effect

import "github.com/cespare/xxhash/v2"

func laneIndex(key string, lanes int) int {
	switch {
	case lanes <= 0:
		panic("number of lanes cannot be 0")
	case lanes == 1:
		return 0
	default:
		return int(xxhash.Sum64String(key) % uint64(lanes))
	}
}

// lane tracks the invocations sharing one policy domain.
type lane[I any] struct {
	running map[uint64]*invocation[I]
	queue   []I
}

func newLane[I any]() *lane[I] {
	return &lane[I]{running: map[uint64]*invocation[I]{}}
}

func (l *lane[I]) busy() bool {
	return len(l.running) > 0
}
