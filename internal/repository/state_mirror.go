package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"TrainCtl/internal/domain/models"
	"TrainCtl/internal/domain/repository"
	"TrainCtl/pkg/cache"
	"TrainCtl/pkg/logger"
)

const mirrorKey = "trains:state"

type hashStore interface {
	HSetIfNewer(ctx context.Context, key, field string, value interface{}, version int64) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Close() error
}

// RedisStateMirror keeps the latest state per train in one Redis hash,
// field = train id. Writes are conditional on the report timestamp, so
// saves that reach Redis out of order never replace a newer state.
type RedisStateMirror struct {
	hash hashStore
	log  *logger.Logger
}

// NewRedisStateMirror wraps an existing Redis cache.
func NewRedisStateMirror(rc *cache.RedisCache, l *logger.Logger) repository.StateMirror {
	return newStateMirror(rc, l)
}

func newStateMirror(h hashStore, l *logger.Logger) *RedisStateMirror {
	if l == nil {
		l = logger.Nop()
	}
	return &RedisStateMirror{hash: h, log: l}
}

func (m *RedisStateMirror) Save(ctx context.Context, state models.TrainState) error {
	wrote, err := m.hash.HSetIfNewer(ctx, mirrorKey, state.TrainID, state, state.Timestamp.UnixMicro())
	if err != nil {
		return fmt.Errorf("mirror %s: %w", state.TrainID, err)
	}
	if !wrote {
		m.log.Debug("mirror kept newer state", logger.String("train_id", state.TrainID), logger.Time("reported", state.Timestamp))
	}
	return nil
}

// LoadAll returns every mirrored state. Undecodable entries are skipped.
func (m *RedisStateMirror) LoadAll(ctx context.Context) ([]models.TrainState, error) {
	raw, err := m.hash.HGetAll(ctx, mirrorKey)
	if err != nil {
		return nil, fmt.Errorf("load mirror: %w", err)
	}
	out := make([]models.TrainState, 0, len(raw))
	for id, data := range raw {
		if strings.HasSuffix(id, cache.VersionSuffix) {
			continue
		}
		var st models.TrainState
		if err := json.Unmarshal([]byte(data), &st); err != nil || st.TrainID != id {
			m.log.Warn("skip mirrored state", logger.String("train_id", id), logger.Error(err))
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *RedisStateMirror) Close() error {
	return nil // shared redis client
}
