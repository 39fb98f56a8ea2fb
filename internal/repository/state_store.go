package repository

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/repository"
)

const defaultShards = 32

type shard struct {
	mu     sync.RWMutex
	trains map[string]models.TrainState
}

// MemoryStateStore keeps the latest state per train. Train IDs hash onto
// shards, so writers for different trains rarely share a lock.
type MemoryStateStore struct {
	shards  []*shard
	version atomic.Uint64
}

// StoreOption configures MemoryStateStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	shards int
}

// WithShards sets the number of lock shards.
func WithShards(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore(opts ...StoreOption) *MemoryStateStore {
	cfg := &storeConfig{shards: defaultShards}
	for _, opt := range opts {
		opt(cfg)
	}
	s := &MemoryStateStore{shards: make([]*shard, cfg.shards)}
	for i := range s.shards {
		s.shards[i] = &shard{trains: make(map[string]models.TrainState)}
	}
	return s
}

func (s *MemoryStateStore) shardFor(trainID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trainID))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Update replaces the stored state if the report is strictly newer.
func (s *MemoryStateStore) Update(state models.TrainState) error {
	sh := s.shardFor(state.TrainID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.trains[state.TrainID]; ok && !state.Timestamp.After(cur.Timestamp) {
		return &models.StaleReportError{TrainID: state.TrainID, Stored: cur.Timestamp, Reported: state.Timestamp}
	}
	sh.trains[state.TrainID] = state.Clone()
	s.version.Add(1)
	return nil
}

// Get returns a copy of one train's state.
func (s *MemoryStateStore) Get(trainID string) (models.TrainState, bool) {
	sh := s.shardFor(trainID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.trains[trainID]
	if !ok {
		return models.TrainState{}, false
	}
	return st.Clone(), true
}

// Snapshot read-locks every shard in order and copies all states. Holding
// all read locks at once makes the copy a single point in time.
func (s *MemoryStateStore) Snapshot() models.Snapshot {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
	n := 0
	for _, sh := range s.shards {
		n += len(sh.trains)
	}
	out := models.Snapshot{
		Version: s.version.Load(),
		Trains:  make(map[string]models.TrainState, n),
	}
	for _, sh := range s.shards {
		for id, st := range sh.trains {
			out.Trains[id] = st.Clone()
		}
	}
	for i := len(s.shards) - 1; i >= 0; i-- {
		s.shards[i].mu.RUnlock()
	}
	return out
}

// Version returns the number of accepted updates so far.
func (s *MemoryStateStore) Version() uint64 { return s.version.Load() }

// Len returns the number of tracked trains.
func (s *MemoryStateStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.trains)
		sh.mu.RUnlock()
	}
	return n
}

var _ repository.StateStore = (*MemoryStateStore)(nil)
