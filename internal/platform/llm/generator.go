package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
)

// ReplyContext descreve o interlocutor para a montagem do prompt.
type ReplyContext struct {
	SenderID      string
	SenderName    string
	IsGroup       bool
	BusinessHours bool
}

// Generator encapsula o provedor ativo. O backend é escolhido uma vez na
// configuração, nunca por request; troca de provedor/modelo/chave passa
// por Rebuild, ajustes de prompt e sampling passam por Update.
type Generator struct {
	mu       sync.RWMutex
	provider Provider
	cfg      settings.LLMSettings
	ready    bool
	log      waLog.Logger
}

func NewGenerator(ctx context.Context, cfg settings.LLMSettings, log waLog.Logger) *Generator {
	if log == nil {
		log = waLog.Noop
	}
	g := &Generator{cfg: cfg, log: log}
	if err := g.Rebuild(ctx, cfg); err != nil {
		// Sem provedor o gate responde com texto estático. Não é fatal.
		log.Warnf("llm generator indisponível: %v", err)
	}
	return g
}

func newProvider(cfg settings.LLMSettings) (Provider, error) {
	switch cfg.Provider {
	case settings.ProviderOpenAI, settings.ProviderCustom:
		return newOpenAIProvider(cfg)
	case settings.ProviderGemini:
		return newGeminiProvider(cfg)
	case settings.ProviderOllama:
		return newOllamaProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Rebuild recria o provedor e faz um probe de conectividade. Probe que
// falha deixa o generator fechado: melhor resposta estática do que
// timeout em cada mensagem recebida.
func (g *Generator) Rebuild(ctx context.Context, cfg settings.LLMSettings) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cfg = cfg
	g.ready = false
	g.provider = nil

	if !cfg.Enabled {
		return nil
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()
	if err := provider.Probe(probeCtx); err != nil {
		return fmt.Errorf("probe %s: %w", provider.Name(), err)
	}

	g.provider = provider
	g.ready = true
	g.log.Infof("llm provider pronto: %s model=%s", provider.Name(), cfg.Model)
	return nil
}

// Update absorve mudanças que não exigem reconstruir o cliente.
func (g *Generator) Update(cfg settings.LLMSettings) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

func (g *Generator) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready && g.provider != nil
}

// Generate produz uma resposta para o texto recebido. Qualquer falha,
// inclusive timeout e resposta vazia, sai normalizada como
// ErrGenerationFailed para o chamador decidir o fallback.
func (g *Generator) Generate(ctx context.Context, userText string, rctx ReplyContext) (string, error) {
	g.mu.RLock()
	provider := g.provider
	cfg := g.cfg
	ready := g.ready
	g.mu.RUnlock()

	if !ready || provider == nil {
		return "", ErrNotReady
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	reply, err := provider.Generate(callCtx, GenerateRequest{
		SystemPrompt: buildSystemPrompt(cfg.SystemPrompt, rctx),
		UserText:     userText,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		g.log.Warnf("geração falhou em %s: %v", provider.Name(), err)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, ErrEmptyResponse)
	}
	return reply, nil
}

// buildSystemPrompt anexa ao prompt base o contexto do interlocutor:
// nome, aviso de grupo e aviso de fora de expediente.
func buildSystemPrompt(base string, rctx ReplyContext) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(base))
	if rctx.SenderName != "" {
		fmt.Fprintf(&sb, "\nVocê está conversando com %s.", rctx.SenderName)
	}
	if rctx.IsGroup {
		sb.WriteString("\nA conversa acontece em um grupo. Responda de forma curta e só o que foi perguntado.")
	}
	if !rctx.BusinessHours {
		sb.WriteString("\nEstamos fora do horário de atendimento. Avise que um atendente humano retorna no próximo expediente.")
	}
	return sb.String()
}
