package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/message"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/llm"
)

type stubGenerator struct {
	ready bool
	reply string
	err   error
	calls int
	last  llm.ReplyContext
}

func (s *stubGenerator) Ready() bool { return s.ready }

func (s *stubGenerator) Generate(ctx context.Context, text string, rctx llm.ReplyContext) (string, error) {
	s.calls++
	s.last = rctx
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func gateSettings() settings.AutoReplySettings {
	s := settings.Defaults()
	// Janela aberta por padrão; testes de expediente definem a sua.
	s.BusinessHours = settings.BusinessHours{}
	return s
}

func inbound(sender string) message.Message {
	return message.Message{
		ID:        "m1",
		Sender:    sender,
		Content:   "oi, tudo bem?",
		Direction: message.DirectionIn,
		Timestamp: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newGate(limit int, gen ResponseGenerator) AutoReplyService {
	return NewAutoReplyService(NewRateLimiter(limit, nil), gen, time.UTC, nil)
}

func TestGateDisabled(t *testing.T) {
	cfg := gateSettings()
	cfg.Enabled = false
	if _, ok := newGate(10, nil).Decide(context.Background(), inbound("a@s.whatsapp.net"), cfg); ok {
		t.Fatalf("disabled gate must not reply")
	}
}

func TestGateIgnoresOwnMessages(t *testing.T) {
	msg := inbound("me@s.whatsapp.net")
	msg.FromMe = true
	if _, ok := newGate(10, nil).Decide(context.Background(), msg, gateSettings()); ok {
		t.Fatalf("fromMe message must never get a reply")
	}
}

func TestGateStaticReply(t *testing.T) {
	cfg := gateSettings()
	decision, ok := newGate(10, nil).Decide(context.Background(), inbound("a@s.whatsapp.net"), cfg)
	if !ok {
		t.Fatalf("expected a static reply")
	}
	if decision.Text != cfg.DefaultMessage {
		t.Fatalf("expected default message, got %q", decision.Text)
	}
	if decision.Type != message.ResponseDefault {
		t.Fatalf("expected default type, got %q", decision.Type)
	}
}

func TestGateOnlyBusinessHoursSkipsOutsideWindow(t *testing.T) {
	cfg := gateSettings()
	cfg.BusinessHours = settings.BusinessHours{Start: "09:00", End: "17:00"}
	cfg.LLM.OnlyBusinessHours = true

	msg := inbound("a@s.whatsapp.net")
	msg.Timestamp = time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	if _, ok := newGate(10, nil).Decide(context.Background(), msg, cfg); ok {
		t.Fatalf("gate must stay silent outside the window when restricted")
	}

	msg.Timestamp = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if _, ok := newGate(10, nil).Decide(context.Background(), msg, cfg); !ok {
		t.Fatalf("gate should reply inside the window")
	}
}

func TestGateAfterHoursMessage(t *testing.T) {
	cfg := gateSettings()
	cfg.BusinessHours = settings.BusinessHours{Start: "09:00", End: "17:00"}

	msg := inbound("a@s.whatsapp.net")
	msg.Timestamp = time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	decision, ok := newGate(10, nil).Decide(context.Background(), msg, cfg)
	if !ok {
		t.Fatalf("expected an after-hours reply")
	}
	if decision.Type != message.ResponseAfterHours {
		t.Fatalf("expected afterHours type, got %q", decision.Type)
	}
	if decision.Text != cfg.AfterHoursMessage {
		t.Fatalf("expected after-hours message, got %q", decision.Text)
	}
	if decision.WorkingHours {
		t.Fatalf("decision should flag out-of-hours")
	}
}

func TestGateAllowList(t *testing.T) {
	cfg := gateSettings()
	cfg.AllowList = []string{"5511999999999"}

	if _, ok := newGate(10, nil).Decide(context.Background(), inbound("5511888888888@s.whatsapp.net"), cfg); ok {
		t.Fatalf("sender outside the allow-list must be rejected")
	}
	// JID completo e número cru normalizam para o mesmo contato.
	if _, ok := newGate(10, nil).Decide(context.Background(), inbound("5511999999999:17@s.whatsapp.net"), cfg); !ok {
		t.Fatalf("allow-listed sender should pass, device suffix included")
	}
}

func TestGateBlockListBeatsAllowList(t *testing.T) {
	cfg := gateSettings()
	cfg.AllowList = []string{"5511999999999"}
	cfg.BlockList = []string{"5511999999999@s.whatsapp.net"}
	if _, ok := newGate(10, nil).Decide(context.Background(), inbound("5511999999999@s.whatsapp.net"), cfg); ok {
		t.Fatalf("block-list must win over allow-list")
	}
}

func TestGateStaticReplyConsumesQuota(t *testing.T) {
	gate := newGate(2, nil)
	cfg := gateSettings()
	msg := inbound("a@s.whatsapp.net")

	for i := 0; i < 2; i++ {
		if _, ok := gate.Decide(context.Background(), msg, cfg); !ok {
			t.Fatalf("reply %d should pass", i+1)
		}
	}
	if _, ok := gate.Decide(context.Background(), msg, cfg); ok {
		t.Fatalf("third reply should be rate limited")
	}
}

func TestGateLLMReply(t *testing.T) {
	gen := &stubGenerator{ready: true, reply: "resposta gerada"}
	gate := newGate(1, gen)
	cfg := gateSettings()
	cfg.LLM.Enabled = true

	msg := inbound("a@s.whatsapp.net")
	msg.IsGroup = true
	decision, ok := gate.Decide(context.Background(), msg, cfg)
	if !ok {
		t.Fatalf("expected llm reply")
	}
	if decision.Type != message.ResponseLLM || decision.Text != "resposta gerada" {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if !gen.last.IsGroup {
		t.Fatalf("reply context should carry the group flag")
	}

	// Sucesso consumiu a única unidade de quota.
	if _, ok := gate.Decide(context.Background(), msg, cfg); ok {
		t.Fatalf("quota should be exhausted after one llm reply")
	}
}

func TestGateGenerationFailureFallsBackUncharged(t *testing.T) {
	gen := &stubGenerator{ready: true, err: errors.New("provider down")}
	gate := newGate(1, gen)
	cfg := gateSettings()
	cfg.LLM.Enabled = true
	msg := inbound("a@s.whatsapp.net")

	decision, ok := gate.Decide(context.Background(), msg, cfg)
	if !ok {
		t.Fatalf("failure should fall back to static text, not silence")
	}
	if decision.Text != cfg.LLM.FallbackMessage {
		t.Fatalf("expected fallback message, got %q", decision.Text)
	}
	if decision.Type != message.ResponseDefault {
		t.Fatalf("fallback should report default type, got %q", decision.Type)
	}

	// A falha não cobrou quota: a próxima geração bem-sucedida ainda cabe.
	gen.err = nil
	gen.reply = "agora foi"
	decision, ok = gate.Decide(context.Background(), msg, cfg)
	if !ok || decision.Type != message.ResponseLLM {
		t.Fatalf("quota should still be available after an uncharged failure")
	}
}

func TestGateSkipsWhenGeneratorNotReady(t *testing.T) {
	gen := &stubGenerator{ready: false, reply: "nunca usado"}
	gate := newGate(10, gen)
	cfg := gateSettings()
	cfg.LLM.Enabled = true

	decision, ok := gate.Decide(context.Background(), inbound("a@s.whatsapp.net"), cfg)
	if !ok {
		t.Fatalf("expected static reply when generator is not ready")
	}
	if decision.Type != message.ResponseDefault {
		t.Fatalf("expected default type, got %q", decision.Type)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called when not ready")
	}
}

func TestNormalizeContact(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"5511999999999@s.whatsapp.net", "5511999999999"},
		{"5511999999999:42@s.whatsapp.net", "5511999999999"},
		{"+55 (11) 99999-9999", "5511999999999"},
		{"5511999999999", "5511999999999"},
		{"  Fulano  ", "fulano"},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalizeContact(c.raw); got != c.want {
			t.Fatalf("normalizeContact(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
