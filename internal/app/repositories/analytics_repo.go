package repositories

import (
	"context"
	"sync"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/analytics"
)

// AnalyticsRepository persiste snapshots periódicos do agregador para
// que as métricas sobrevivam a um restart. LatestSnapshot devolve nil
// sem erro quando nenhum snapshot foi salvo.
type AnalyticsRepository interface {
	SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error
	LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error)
}

type inMemoryAnalyticsRepo struct {
	mu     sync.RWMutex
	latest *analytics.Snapshot
}

func NewInMemoryAnalyticsRepo() AnalyticsRepository {
	return &inMemoryAnalyticsRepo{}
}

func (r *inMemoryAnalyticsRepo) SaveSnapshot(ctx context.Context, snap analytics.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = &snap
	return nil
}

func (r *inMemoryAnalyticsRepo) LatestSnapshot(ctx context.Context) (*analytics.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil, nil
	}
	out := *r.latest
	return &out, nil
}
