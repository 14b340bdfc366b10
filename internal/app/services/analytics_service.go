package services

import (
	"sort"
	"sync"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/analytics"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
)

const (
	// errorLogCap limita o ring de erros; cheio, o mais antigo sai (FIFO).
	errorLogCap = 1000
	// contactCap limita o mapa de contatos; estourou, o mais ocioso sai.
	contactCap = 5000
)

// AnalyticsService agrega contadores de tráfego em memória. Mutação
// acontece só pelo pipeline; leitura é sempre via Snapshot, que devolve
// cópia destacada do estado interno.
type AnalyticsService interface {
	Record(msg message.Message)
	RecordError(detail, messageID, contact string)
	ComputeResponseTimes(msgs []message.Message) analytics.ResponseTimeStats
	Snapshot() analytics.Snapshot
	Restore(snap analytics.Snapshot)
	Reset()
}

type analyticsService struct {
	mu       sync.Mutex
	daily    map[string]*analytics.DailyStat
	hourly   analytics.HourlyDistribution
	contacts map[string]*analytics.ContactStat
	errors   []analytics.ErrorLogEntry
	errorPos int
	total    int
	loc      *time.Location
	now      func() time.Time
	log      waLog.Logger
}

func NewAnalyticsService(loc *time.Location, log waLog.Logger) AnalyticsService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = waLog.Noop
	}
	return &analyticsService{
		daily:    make(map[string]*analytics.DailyStat),
		contacts: make(map[string]*analytics.ContactStat),
		errors:   make([]analytics.ErrorLogEntry, 0, 64),
		loc:      loc,
		now:      time.Now,
		log:      log,
	}
}

func (s *analyticsService) Record(msg message.Message) {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	local := ts.In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++

	day := local.Format("2006-01-02")
	stat, ok := s.daily[day]
	if !ok {
		stat = &analytics.DailyStat{Date: day}
		s.daily[day] = stat
	}
	stat.Total++
	switch {
	case msg.Direction == message.DirectionIn:
		stat.Received++
	case msg.Status == message.StatusFailed:
		stat.Failed++
	default:
		stat.Sent++
	}

	s.hourly[local.Hour()]++

	contact := msg.Contact()
	if contact == "" {
		return
	}
	cs, ok := s.contacts[contact]
	if !ok {
		if len(s.contacts) >= contactCap {
			s.evictIdlestContact()
		}
		cs = &analytics.ContactStat{Contact: contact, FirstContact: ts}
		s.contacts[contact] = cs
	}
	cs.MessageCount++
	if msg.Direction == message.DirectionIn && msg.SenderName != "" {
		cs.Name = msg.SenderName
	}
	if ts.After(cs.LastActive) {
		cs.LastActive = ts
	}
}

// evictIdlestContact remove o contato com atividade mais antiga. Chamado
// com o lock tomado.
func (s *analyticsService) evictIdlestContact() {
	var victim string
	var oldest time.Time
	for key, cs := range s.contacts {
		if victim == "" || cs.LastActive.Before(oldest) {
			victim = key
			oldest = cs.LastActive
		}
	}
	if victim != "" {
		delete(s.contacts, victim)
	}
}

func (s *analyticsService) RecordError(detail, messageID, contact string) {
	entry := analytics.ErrorLogEntry{
		Timestamp: s.now(),
		Category:  analytics.Categorize(detail),
		Detail:    detail,
		MessageID: messageID,
		Contact:   contact,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) < errorLogCap {
		s.errors = append(s.errors, entry)
		return
	}
	// Ring cheio: sobrescreve a entrada mais antiga.
	s.errors[s.errorPos] = entry
	s.errorPos = (s.errorPos + 1) % errorLogCap
}

// errorEntries devolve o ring desenrolado, da mais antiga à mais recente.
// Chamado com o lock tomado.
func (s *analyticsService) errorEntries() []analytics.ErrorLogEntry {
	out := make([]analytics.ErrorLogEntry, 0, len(s.errors))
	if len(s.errors) < errorLogCap {
		return append(out, s.errors...)
	}
	out = append(out, s.errors[s.errorPos:]...)
	return append(out, s.errors[:s.errorPos]...)
}

// ComputeResponseTimes deriva tempos de resposta do histórico. As
// mensagens são separadas por contato e ordenadas por timestamp; cada
// par adjacente recebida->enviada vira uma amostra. Recebidas em
// sequência não acumulam (só a imediatamente anterior à resposta conta)
// e uma segunda enviada sem recebida no meio não gera amostra.
func (s *analyticsService) ComputeResponseTimes(msgs []message.Message) analytics.ResponseTimeStats {
	byContact := make(map[string][]message.Message)
	for _, msg := range msgs {
		contact := msg.Contact()
		if contact == "" {
			continue
		}
		byContact[contact] = append(byContact[contact], msg)
	}

	var stats analytics.ResponseTimeStats
	var totalSecs float64
	for _, conv := range byContact {
		sort.Slice(conv, func(i, j int) bool {
			return conv[i].Timestamp.Before(conv[j].Timestamp)
		})
		for i := 0; i+1 < len(conv); i++ {
			if conv[i].Direction != message.DirectionIn || conv[i+1].Direction != message.DirectionOut {
				continue
			}
			sample := conv[i+1].Timestamp.Sub(conv[i].Timestamp).Seconds()
			if sample < 0 {
				continue
			}
			stats.Samples++
			totalSecs += sample
			if stats.Samples == 1 || sample < stats.Fastest {
				stats.Fastest = sample
			}
			if sample > stats.Slowest {
				stats.Slowest = sample
			}
		}
	}
	if stats.Samples > 0 {
		stats.Average = totalSecs / float64(stats.Samples)
	}
	return stats
}

func (s *analyticsService) Snapshot() analytics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := analytics.Snapshot{
		Daily:         make([]analytics.DailyStat, 0, len(s.daily)),
		Hourly:        s.hourly,
		Contacts:      make([]analytics.ContactStat, 0, len(s.contacts)),
		Errors:        s.errorEntries(),
		TotalMessages: s.total,
		CapturedAt:    s.now(),
	}
	for _, stat := range s.daily {
		snap.Daily = append(snap.Daily, *stat)
	}
	sort.Slice(snap.Daily, func(i, j int) bool { return snap.Daily[i].Date < snap.Daily[j].Date })

	for _, cs := range s.contacts {
		snap.Contacts = append(snap.Contacts, *cs)
	}
	sort.Slice(snap.Contacts, func(i, j int) bool {
		if snap.Contacts[i].MessageCount != snap.Contacts[j].MessageCount {
			return snap.Contacts[i].MessageCount > snap.Contacts[j].MessageCount
		}
		return snap.Contacts[i].Contact < snap.Contacts[j].Contact
	})
	return snap
}

// Restore recarrega o estado a partir do último snapshot persistido.
// Usado no boot para os contadores sobreviverem a restart.
func (s *analyticsService) Restore(snap analytics.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.daily = make(map[string]*analytics.DailyStat, len(snap.Daily))
	for _, stat := range snap.Daily {
		copied := stat
		s.daily[stat.Date] = &copied
	}
	s.hourly = snap.Hourly
	s.contacts = make(map[string]*analytics.ContactStat, len(snap.Contacts))
	for _, cs := range snap.Contacts {
		copied := cs
		s.contacts[cs.Contact] = &copied
	}
	entries := snap.Errors
	if len(entries) > errorLogCap {
		entries = entries[len(entries)-errorLogCap:]
	}
	s.errors = make([]analytics.ErrorLogEntry, 0, 64)
	s.errors = append(s.errors, entries...)
	s.errorPos = 0
	s.total = snap.TotalMessages
	s.log.Infof("analytics restauradas: %d mensagens, %d contatos, %d erros", s.total, len(s.contacts), len(s.errors))
}

func (s *analyticsService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily = make(map[string]*analytics.DailyStat)
	s.hourly = analytics.HourlyDistribution{}
	s.contacts = make(map[string]*analytics.ContactStat)
	s.errors = s.errors[:0]
	s.errorPos = 0
	s.total = 0
	s.log.Infof("analytics zeradas")
}
