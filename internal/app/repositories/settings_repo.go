package repositories

import (
	"context"
	"sync"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

// SettingsRepository guarda o bundle de configuração da conta. Get
// devolve nil sem erro quando nada foi salvo ainda.
type SettingsRepository interface {
	Get(ctx context.Context) (*settings.AutoReplySettings, error)
	Save(ctx context.Context, cfg *settings.AutoReplySettings) error
}

type inMemorySettingsRepo struct {
	mu      sync.RWMutex
	current *settings.AutoReplySettings
}

func NewInMemorySettingsRepo() SettingsRepository {
	return &inMemorySettingsRepo{}
}

func (r *inMemorySettingsRepo) Get(ctx context.Context) (*settings.AutoReplySettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, nil
	}
	out := *r.current
	return &out, nil
}

func (r *inMemorySettingsRepo) Save(ctx context.Context, cfg *settings.AutoReplySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *cfg
	r.current = &stored
	return nil
}
