package services

import (
	"context"
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/app/repositories"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/domain/settings"
	"github.com/bhardwajdevesh092005/WhatsApp-Bot/internal/platform/llm"
)

// SettingsService guarda o bundle vigente de configuração e aplica os
// efeitos colaterais de um PATCH: persistir, reapontar o limite do rate
// limiter e reinicializar o generator quando a identidade do provedor
// mudou.
type SettingsService interface {
	Current() settings.AutoReplySettings
	Update(ctx context.Context, in settings.UpdateInput) (settings.AutoReplySettings, error)
}

type settingsService struct {
	mu        sync.RWMutex
	current   settings.AutoReplySettings
	repo      repositories.SettingsRepository
	limiter   *RateLimiter
	generator *llm.Generator
	emitter   Emitter
	log       waLog.Logger
}

func NewSettingsService(
	repo repositories.SettingsRepository,
	initial settings.AutoReplySettings,
	limiter *RateLimiter,
	generator *llm.Generator,
	emitter Emitter,
	log waLog.Logger,
) SettingsService {
	if log == nil {
		log = waLog.Noop
	}
	return &settingsService{
		current:   initial,
		repo:      repo,
		limiter:   limiter,
		generator: generator,
		emitter:   emitter,
		log:       log,
	}
}

// ResolveSettings combina o default vindo do ambiente com o que está
// persistido. A chave da API nunca vai ao banco (json:"-"), então a do
// ambiente é reaplicada por cima do registro salvo.
func ResolveSettings(ctx context.Context, repo repositories.SettingsRepository, fallback settings.AutoReplySettings) settings.AutoReplySettings {
	if repo == nil {
		return fallback
	}
	saved, err := repo.Get(ctx)
	if err != nil || saved == nil {
		return fallback
	}
	resolved := *saved
	if resolved.LLM.APIKey == "" {
		resolved.LLM.APIKey = fallback.LLM.APIKey
	}
	if err := resolved.Validate(); err != nil {
		return fallback
	}
	return resolved
}

func (s *settingsService) Current() settings.AutoReplySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *settingsService) Update(ctx context.Context, in settings.UpdateInput) (settings.AutoReplySettings, error) {
	s.mu.Lock()
	prev := s.current
	next := prev.Merge(in)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return settings.AutoReplySettings{}, err
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Save(ctx, &next); err != nil {
			return settings.AutoReplySettings{}, err
		}
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if s.limiter != nil && prev.LLM.RateLimitPerHour != next.LLM.RateLimitPerHour {
		s.limiter.SetLimit(next.LLM.RateLimitPerHour)
	}
	if s.generator != nil {
		if prev.LLM.ReinitRequired(next.LLM) {
			// Troca de provedor/modelo/chave: reconstrói o cliente. Falha
			// aqui não derruba o PATCH; o gate cai no texto estático.
			if err := s.generator.Rebuild(ctx, next.LLM); err != nil {
				s.log.Warnf("reinicialização do provedor llm falhou: %v", err)
			}
		} else {
			s.generator.Update(next.LLM)
		}
	}

	if s.emitter != nil {
		s.emitter.Emit("settings.updated", next)
	}
	s.log.Infof("settings atualizadas (autoReply=%v, llm=%v/%s)", next.Enabled, next.LLM.Enabled, next.LLM.Provider)
	return next, nil
}
