package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidWindow      = errors.New("settings: invalid business hours window")
	ErrInvalidRateLimit   = errors.New("settings: rate limit must be >= 0")
	ErrInvalidTemperature = errors.New("settings: temperature must be between 0 and 2")
	ErrInvalidTimeout     = errors.New("settings: request timeout must be > 0")
	ErrUnknownProvider    = errors.New("settings: unknown llm provider")
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderCustom = "custom"
)

// BusinessHours delimita a janela de atendimento em hora local, formato
// HH:MM. Janelas que cruzam meia-noite não são suportadas: Start deve ser
// menor ou igual a End no mesmo dia.
type BusinessHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b BusinessHours) Defined() bool {
	return b.Start != "" || b.End != ""
}

// Contains verifica se t cai dentro da janela, inclusive nas duas bordas:
// 09:00 e 17:00 contam como dentro de 09:00-17:00. Janela não definida
// aceita qualquer horário.
func (b BusinessHours) Contains(t time.Time) bool {
	if !b.Defined() {
		return true
	}
	start, err := parseClock(b.Start)
	if err != nil {
		return true
	}
	end, err := parseClock(b.End)
	if err != nil {
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= start && minutes <= end
}

func (b BusinessHours) validate() error {
	if !b.Defined() {
		return nil
	}
	start, err := parseClock(b.Start)
	if err != nil {
		return fmt.Errorf("%w: start %q", ErrInvalidWindow, b.Start)
	}
	end, err := parseClock(b.End)
	if err != nil {
		return fmt.Errorf("%w: end %q", ErrInvalidWindow, b.End)
	}
	if start > end {
		return fmt.Errorf("%w: start %s after end %s", ErrInvalidWindow, b.Start, b.End)
	}
	return nil
}

// parseClock converte HH:MM em minutos desde meia-noite.
func parseClock(raw string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q: expected HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", raw)
	}
	return hour*60 + minute, nil
}

// LLMSettings configura o provedor de geração e os limites associados.
type LLMSettings struct {
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	APIKey            string  `json:"-"`
	BaseURL           string  `json:"baseUrl,omitempty"`
	SystemPrompt      string  `json:"systemPrompt"`
	FallbackMessage   string  `json:"fallbackMessage"`
	Temperature       float32 `json:"temperature"`
	MaxTokens         int     `json:"maxTokens"`
	RequestTimeoutMS  int     `json:"requestTimeoutMs"`
	RateLimitPerHour  int     `json:"rateLimitPerHour"`
	Enabled           bool    `json:"enabled"`
	AutoReply         bool    `json:"autoReply"`
	OnlyBusinessHours bool    `json:"onlyDuringBusinessHours"`
}

// Timeout devolve o timeout por requisição; 10s quando não configurado.
func (l LLMSettings) Timeout() time.Duration {
	if l.RequestTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(l.RequestTimeoutMS) * time.Millisecond
}

// ReinitRequired indica se a mudança exige reconstruir o cliente do
// provedor. Ajustes de prompt, temperatura e afins valem na próxima
// requisição sem reinicializar.
func (l LLMSettings) ReinitRequired(next LLMSettings) bool {
	return l.Provider != next.Provider ||
		l.Model != next.Model ||
		l.APIKey != next.APIKey ||
		l.BaseURL != next.BaseURL ||
		l.Enabled != next.Enabled
}

func (l LLMSettings) validate() error {
	if l.RateLimitPerHour < 0 {
		return ErrInvalidRateLimit
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if !l.Enabled {
		return nil
	}
	if l.RequestTimeoutMS < 0 {
		return ErrInvalidTimeout
	}
	switch l.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderCustom:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, l.Provider)
	}
}

// AutoReplySettings é o bundle completo de configuração do respondedor,
// editável em runtime via PATCH /settings.
type AutoReplySettings struct {
	Enabled           bool          `json:"enabled"`
	DefaultMessage    string        `json:"defaultMessage"`
	AfterHoursMessage string        `json:"afterHoursMessage"`
	AllowList         []string      `json:"allowList"`
	BlockList         []string      `json:"blockList"`
	BusinessHours     BusinessHours `json:"businessHours"`
	LLM               LLMSettings   `json:"llm"`
}

func (s AutoReplySettings) Validate() error {
	if err := s.BusinessHours.validate(); err != nil {
		return err
	}
	return s.LLM.validate()
}

// UpdateInput é o corpo do PATCH /settings. Ponteiro nil significa
// "mantém o valor atual"; a chave da API entra por aqui mas nunca sai
// em JSON de resposta.
type UpdateInput struct {
	Enabled           *bool          `json:"enabled,omitempty"`
	DefaultMessage    *string        `json:"defaultMessage,omitempty"`
	AfterHoursMessage *string        `json:"afterHoursMessage,omitempty"`
	AllowList         *[]string      `json:"allowList,omitempty"`
	BlockList         *[]string      `json:"blockList,omitempty"`
	BusinessHours     *BusinessHours `json:"businessHours,omitempty"`
	LLM               *LLMUpdate     `json:"llm,omitempty"`
}

type LLMUpdate struct {
	Provider          *string  `json:"provider,omitempty"`
	Model             *string  `json:"model,omitempty"`
	APIKey            *string  `json:"apiKey,omitempty"`
	BaseURL           *string  `json:"baseUrl,omitempty"`
	SystemPrompt      *string  `json:"systemPrompt,omitempty"`
	FallbackMessage   *string  `json:"fallbackMessage,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
	MaxTokens         *int     `json:"maxTokens,omitempty"`
	RequestTimeoutMS  *int     `json:"requestTimeoutMs,omitempty"`
	RateLimitPerHour  *int     `json:"rateLimitPerHour,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
	AutoReply         *bool    `json:"autoReply,omitempty"`
	OnlyBusinessHours *bool    `json:"onlyDuringBusinessHours,omitempty"`
}

// Merge aplica o patch por cima da configuração atual e devolve a nova.
// Listas são substituídas inteiras, nunca mescladas.
func (s AutoReplySettings) Merge(in UpdateInput) AutoReplySettings {
	next := s
	next.AllowList = append([]string(nil), s.AllowList...)
	next.BlockList = append([]string(nil), s.BlockList...)

	if in.Enabled != nil {
		next.Enabled = *in.Enabled
	}
	if in.DefaultMessage != nil {
		next.DefaultMessage = *in.DefaultMessage
	}
	if in.AfterHoursMessage != nil {
		next.AfterHoursMessage = *in.AfterHoursMessage
	}
	if in.AllowList != nil {
		next.AllowList = append([]string(nil), (*in.AllowList)...)
	}
	if in.BlockList != nil {
		next.BlockList = append([]string(nil), (*in.BlockList)...)
	}
	if in.BusinessHours != nil {
		next.BusinessHours = *in.BusinessHours
	}
	if in.LLM != nil {
		next.LLM = s.LLM.merge(*in.LLM)
	}
	return next
}

func (l LLMSettings) merge(in LLMUpdate) LLMSettings {
	next := l
	if in.Provider != nil {
		next.Provider = strings.ToLower(strings.TrimSpace(*in.Provider))
	}
	if in.Model != nil {
		next.Model = *in.Model
	}
	if in.APIKey != nil {
		next.APIKey = *in.APIKey
	}
	if in.BaseURL != nil {
		next.BaseURL = *in.BaseURL
	}
	if in.SystemPrompt != nil {
		next.SystemPrompt = *in.SystemPrompt
	}
	if in.FallbackMessage != nil {
		next.FallbackMessage = *in.FallbackMessage
	}
	if in.Temperature != nil {
		next.Temperature = *in.Temperature
	}
	if in.MaxTokens != nil {
		next.MaxTokens = *in.MaxTokens
	}
	if in.RequestTimeoutMS != nil {
		next.RequestTimeoutMS = *in.RequestTimeoutMS
	}
	if in.RateLimitPerHour != nil {
		next.RateLimitPerHour = *in.RateLimitPerHour
	}
	if in.Enabled != nil {
		next.Enabled = *in.Enabled
	}
	if in.AutoReply != nil {
		next.AutoReply = *in.AutoReply
	}
	if in.OnlyBusinessHours != nil {
		next.OnlyBusinessHours = *in.OnlyBusinessHours
	}
	return next
}

// Defaults devolve a configuração inicial usada quando nada foi persistido.
func Defaults() AutoReplySettings {
	return AutoReplySettings{
		Enabled:           true,
		DefaultMessage:    "Olá! Recebemos sua mensagem e vamos responder em breve.",
		AfterHoursMessage: "Olá! Estamos fora do horário de atendimento. Retornamos no próximo expediente.",
		BusinessHours:     BusinessHours{Start: "09:00", End: "18:00"},
		LLM: LLMSettings{
			Provider:          ProviderOpenAI,
			Model:             "gpt-4o-mini",
			SystemPrompt:      "Você é um assistente de atendimento no WhatsApp. Responda em tom educado, curto e objetivo.",
			FallbackMessage:   "Desculpe, não consegui processar sua mensagem agora. Tente novamente em instantes.",
			Temperature:       0.7,
			MaxTokens:         256,
			RequestTimeoutMS:  10000,
			RateLimitPerHour:  10,
			Enabled:           false,
			AutoReply:         true,
			OnlyBusinessHours: false,
		},
	}
}
