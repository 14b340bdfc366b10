package services

import (
	"context"
	"strings"
	"time"
	"unicode"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/llm"
)

// ResponseGenerator é o que o gate precisa do gerador de respostas.
type ResponseGenerator interface {
	Ready() bool
	Generate(ctx context.Context, userText string, rctx llm.ReplyContext) (string, error)
}

// ReplyDecision é o resultado positivo do gate: o texto a enviar e como
// ele foi produzido.
type ReplyDecision struct {
	Text         string
	Type         message.ResponseType
	WorkingHours bool
}

// AutoReplyService decide se uma mensagem recebida ganha resposta
// automática. Os predicados rodam em ordem fixa e curto-circuitam no
// primeiro que reprovar: feature ligada, não é eco nosso, janela de
// atendimento, allow-list, block-list e quota do remetente.
type AutoReplyService interface {
	Decide(ctx context.Context, msg message.Message, cfg settings.AutoReplySettings) (ReplyDecision, bool)
}

type autoReplyService struct {
	limiter   *RateLimiter
	generator ResponseGenerator
	loc       *time.Location
	now       func() time.Time
	log       waLog.Logger
}

func NewAutoReplyService(limiter *RateLimiter, generator ResponseGenerator, loc *time.Location, log waLog.Logger) AutoReplyService {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = waLog.Noop
	}
	return &autoReplyService{
		limiter:   limiter,
		generator: generator,
		loc:       loc,
		now:       time.Now,
		log:       log,
	}
}

func (s *autoReplyService) Decide(ctx context.Context, msg message.Message, cfg settings.AutoReplySettings) (ReplyDecision, bool) {
	if !cfg.Enabled {
		return ReplyDecision{}, false
	}
	// Nunca responder mensagem nossa, senão o bot conversa sozinho.
	if msg.FromMe {
		return ReplyDecision{}, false
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	within := cfg.BusinessHours.Contains(ts.In(s.loc))

	if cfg.LLM.OnlyBusinessHours && !within {
		s.log.Debugf("gate: fora do expediente, ignorando %s", msg.Sender)
		return ReplyDecision{}, false
	}

	sender := normalizeContact(msg.Sender)
	if len(cfg.AllowList) > 0 && !containsContact(cfg.AllowList, sender) {
		s.log.Debugf("gate: %s fora da allow-list", msg.Sender)
		return ReplyDecision{}, false
	}
	// Block-list vence mesmo para quem está na allow-list.
	if containsContact(cfg.BlockList, sender) {
		s.log.Debugf("gate: %s na block-list", msg.Sender)
		return ReplyDecision{}, false
	}

	if !s.limiter.Allow(msg.Sender) {
		// Skip silencioso: estourar quota não é erro.
		s.log.Debugf("gate: quota esgotada para %s", msg.Sender)
		return ReplyDecision{}, false
	}

	if cfg.LLM.Enabled && cfg.LLM.AutoReply && s.generator != nil && s.generator.Ready() {
		reply, err := s.generator.Generate(ctx, msg.Content, llm.ReplyContext{
			SenderID:      msg.Sender,
			SenderName:    msg.SenderName,
			IsGroup:       msg.IsGroup,
			BusinessHours: within,
		})
		if err == nil {
			s.limiter.Record(msg.Sender)
			return ReplyDecision{Text: reply, Type: message.ResponseLLM, WorkingHours: within}, true
		}
		// Fallback de geração falhada sai de graça: a tentativa não
		// consome quota.
		s.log.Warnf("gate: geração falhou para %s, usando fallback: %v", msg.Sender, err)
		return s.staticReply(cfg, within, true)
	}

	decision, ok := s.staticReply(cfg, within, false)
	if ok {
		s.limiter.Record(msg.Sender)
	}
	return decision, ok
}

// staticReply escolhe o texto fixo: fora da janela usa a mensagem de
// pós-expediente; falha de geração prefere o fallback configurado.
func (s *autoReplyService) staticReply(cfg settings.AutoReplySettings, within, generationFailed bool) (ReplyDecision, bool) {
	text := cfg.DefaultMessage
	typ := message.ResponseDefault
	if generationFailed && cfg.LLM.FallbackMessage != "" {
		text = cfg.LLM.FallbackMessage
	}
	if !within && cfg.AfterHoursMessage != "" {
		text = cfg.AfterHoursMessage
		typ = message.ResponseAfterHours
	}
	if strings.TrimSpace(text) == "" {
		return ReplyDecision{}, false
	}
	return ReplyDecision{Text: text, Type: typ, WorkingHours: within}, true
}

// normalizeContact reduz um JID ou telefone à parte numérica do usuário,
// descartando sufixo de servidor e device part.
func normalizeContact(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	userPart := trimmed
	if at := strings.Index(userPart, "@"); at != -1 {
		userPart = userPart[:at]
	}
	if colon := strings.Index(userPart, ":"); colon != -1 {
		userPart = userPart[:colon]
	}

	digits := strings.Builder{}
	for _, r := range userPart {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return strings.ToLower(strings.TrimSpace(userPart))
	}
	return digits.String()
}

func containsContact(list []string, normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, entry := range list {
		if normalizeContact(entry) == normalized {
			return true
		}
	}
	return false
}
