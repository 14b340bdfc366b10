package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

var ErrMessageNotFound = errors.New("message not found")

// memoryMessageCap limita o histórico em memória; estourou, descarta a
// mensagem mais antiga.
const memoryMessageCap = 10000

// MessageQuery filtra a listagem. Campos vazios não filtram.
type MessageQuery struct {
	Chat      string
	Direction message.Direction
	Limit     int
	Offset    int
}

type MessageRepository interface {
	Save(ctx context.Context, msg *message.Message) error
	UpdateStatus(ctx context.Context, id string, status message.Status, at time.Time) error
	Get(ctx context.Context, id string) (*message.Message, error)
	List(ctx context.Context, q MessageQuery) ([]message.Message, error)
	Since(ctx context.Context, cutoff time.Time) ([]message.Message, error)
}

type inMemoryMessageRepo struct {
	mu       sync.RWMutex
	messages map[string]*message.Message
	order    []string
}

func NewInMemoryMessageRepo() MessageRepository {
	return &inMemoryMessageRepo{messages: make(map[string]*message.Message)}
}

func (r *inMemoryMessageRepo) Save(ctx context.Context, msg *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *msg
	if _, exists := r.messages[msg.ID]; !exists {
		r.order = append(r.order, msg.ID)
		if len(r.order) > memoryMessageCap {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.messages, oldest)
		}
	}
	r.messages[msg.ID] = &stored
	return nil
}

func (r *inMemoryMessageRepo) UpdateStatus(ctx context.Context, id string, status message.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	if status.Rank() <= msg.Status.Rank() {
		return nil
	}
	msg.Status = status
	msg.UpdatedAt = at
	return nil
}

func (r *inMemoryMessageRepo) Get(ctx context.Context, id string) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	out := *msg
	return &out, nil
}

func (r *inMemoryMessageRepo) List(ctx context.Context, q MessageQuery) ([]message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	// Mais recentes primeiro: percorre a ordem de chegada de trás pra frente.
	out := make([]message.Message, 0, limit)
	skipped := 0
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		msg, ok := r.messages[r.order[i]]
		if !ok {
			continue
		}
		if q.Chat != "" && msg.ChatID != q.Chat {
			continue
		}
		if q.Direction != "" && msg.Direction != q.Direction {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (r *inMemoryMessageRepo) Since(ctx context.Context, cutoff time.Time) ([]message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]message.Message, 0, len(r.order))
	for _, id := range r.order {
		msg, ok := r.messages[id]
		if !ok || msg.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}
