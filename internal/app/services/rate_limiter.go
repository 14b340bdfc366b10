package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// RateLimiter limita respostas automáticas por remetente por hora.
// Allow só consulta a quota; Record consome uma unidade e é chamado
// quando uma resposta de fato vai sair. Geração que falhou não é
// cobrada — o fallback correspondente sai de graça.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	buckets map[string]int
	now     func() time.Time
	log     waLog.Logger
}

func NewRateLimiter(limit int, log waLog.Logger) *RateLimiter {
	if log == nil {
		log = waLog.Noop
	}
	return &RateLimiter{
		limit:   limit,
		buckets: make(map[string]int),
		now:     time.Now,
		log:     log,
	}
}

// bucketKey prende o contador à hora-época: 14h de hoje e 14h de amanhã
// são baldes distintos.
func bucketKey(sender string, t time.Time) string {
	return fmt.Sprintf("%s|%d", sender, t.Unix()/3600)
}

// Allow informa se o remetente ainda tem quota na hora corrente, sem
// mutar estado. Limite <= 0 desativa o limitador.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit <= 0 {
		return true
	}
	return r.buckets[bucketKey(sender, r.now())] < r.limit
}

// Record consome uma unidade de quota do remetente na hora corrente.
func (r *RateLimiter) Record(sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit <= 0 {
		return
	}
	r.buckets[bucketKey(sender, r.now())]++
}

// SetLimit ajusta o limite em runtime. Baldes existentes são mantidos e
// reavaliados contra o novo limite na próxima consulta.
func (r *RateLimiter) SetLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit != r.limit {
		r.log.Infof("rate limit changed: %d -> %d msgs/hour", r.limit, limit)
	}
	r.limit = limit
}

func (r *RateLimiter) Limit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit
}

// Reset descarta todos os contadores.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string]int)
}

// PurgeStale remove baldes de horas já encerradas. Chamado num ticker
// pelo pipeline para o mapa não crescer sem limite.
func (r *RateLimiter) PurgeStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	suffix := fmt.Sprintf("|%d", r.now().Unix()/3600)
	removed := 0
	for key := range r.buckets {
		if !strings.HasSuffix(key, suffix) {
			delete(r.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debugf("purged %d stale rate buckets", removed)
	}
}
