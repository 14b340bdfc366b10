package repositories

import (
	"context"
	"sync"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

// memoryAutoReplyCap limita o log em memória de respostas automáticas.
const memoryAutoReplyCap = 1000

// AutoReplyRepository guarda o log de respostas automáticas emitidas.
// List devolve as mais recentes primeiro; limit <= 0 usa o default de 50.
type AutoReplyRepository interface {
	Save(ctx context.Context, rec *message.AutoReplyRecord) error
	List(ctx context.Context, limit int) ([]message.AutoReplyRecord, error)
}

type inMemoryAutoReplyRepo struct {
	mu      sync.RWMutex
	records []message.AutoReplyRecord
}

func NewInMemoryAutoReplyRepo() AutoReplyRepository {
	return &inMemoryAutoReplyRepo{}
}

func (r *inMemoryAutoReplyRepo) Save(ctx context.Context, rec *message.AutoReplyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	if len(r.records) > memoryAutoReplyCap {
		r.records = r.records[len(r.records)-memoryAutoReplyCap:]
	}
	return nil
}

func (r *inMemoryAutoReplyRepo) List(ctx context.Context, limit int) ([]message.AutoReplyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if limit > len(r.records) {
		limit = len(r.records)
	}
	// Mais recentes primeiro.
	out := make([]message.AutoReplyRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[i])
	}
	return out, nil
}
