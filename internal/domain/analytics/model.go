package analytics

import (
	"strings"
	"time"
)

// DailyStat representa os contadores de um dia (chave YYYY-MM-DD).
type DailyStat struct {
	Date     string `json:"date" db:"date"`
	Total    int    `json:"total" db:"total"`
	Sent     int    `json:"sent" db:"sent"`
	Received int    `json:"received" db:"received"`
	Failed   int    `json:"failed" db:"failed"`
}

// HourlyDistribution acumula mensagens por hora local do dia (0-23).
type HourlyDistribution [24]int

// ContactStat representa a atividade agregada de um contato.
type ContactStat struct {
	Contact      string    `json:"contact" db:"contact"`
	Name         string    `json:"name,omitempty" db:"name"`
	MessageCount int       `json:"messageCount" db:"message_count"`
	FirstContact time.Time `json:"firstContact" db:"first_contact"`
	LastActive   time.Time `json:"lastActive" db:"last_active"`
}

// ErrorLogEntry é uma falha categorizada, mantida em buffer limitado.
type ErrorLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Detail    string    `json:"detail,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Contact   string    `json:"contact,omitempty"`
}

// ResponseTimeStats resume tempos de resposta em segundos.
type ResponseTimeStats struct {
	Average float64 `json:"average"`
	Fastest float64 `json:"fastest"`
	Slowest float64 `json:"slowest"`
	Samples int     `json:"samples"`
}

// Snapshot é a visão imutável do agregador, servida pela API e persistida
// periodicamente.
type Snapshot struct {
	Daily         []DailyStat        `json:"daily"`
	Hourly        HourlyDistribution `json:"hourly"`
	Contacts      []ContactStat      `json:"contacts"`
	Errors        []ErrorLogEntry    `json:"errors"`
	ResponseTimes ResponseTimeStats  `json:"responseTimes"`
	TotalMessages int                `json:"totalMessages"`
	CapturedAt    time.Time          `json:"capturedAt"`
}

const (
	CategoryNetwork       = "Network Error"
	CategoryAuth          = "Authentication Error"
	CategoryRateLimit     = "Rate Limit Error"
	CategoryMedia         = "Media Error"
	CategoryInvalidFormat = "Invalid Format Error"
	CategoryUnknown       = "Unknown Error"
)

// errorPatterns em ordem de prioridade: a primeira categoria cujo padrão
// aparecer no texto vence, mesmo que padrões de outras também apareçam.
var errorPatterns = []struct {
	category string
	keywords []string
}{
	{CategoryNetwork, []string{"network", "connection", "timeout", "dial", "unreachable"}},
	{CategoryAuth, []string{"auth", "login", "unauthorized", "401", "logged out"}},
	{CategoryRateLimit, []string{"rate", "limit", "too many", "429"}},
	{CategoryMedia, []string{"media", "download", "upload", "mime"}},
	{CategoryInvalidFormat, []string{"format", "invalid", "parse", "unmarshal"}},
}

// Categorize classifica o texto de um erro numa das categorias fixas.
// Comparação é case-insensitive por substring; sem match vira Unknown.
func Categorize(detail string) string {
	lowered := strings.ToLower(detail)
	for _, p := range errorPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lowered, kw) {
				return p.category
			}
		}
	}
	return CategoryUnknown
}
