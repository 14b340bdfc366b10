package llm

import (
	"context"
	"errors"
)

var (
	// ErrGenerationFailed normaliza qualquer falha de geração (timeout,
	// erro de provedor, resposta vazia). É o único erro que o Generator
	// devolve para quem pede uma resposta.
	ErrGenerationFailed = errors.New("llm generation failed")

	ErrNotReady        = errors.New("llm provider not ready")
	ErrEmptyResponse   = errors.New("llm returned empty response")
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrMissingAPIKey   = errors.New("llm api key not configured")
)

// GenerateRequest carrega os parâmetros de uma chamada de geração. Os
// parâmetros de sampling vêm das settings correntes a cada chamada, então
// ajustes de temperatura valem sem reconstruir o provedor.
type GenerateRequest struct {
	SystemPrompt string
	UserText     string
	Temperature  float32
	MaxTokens    int
}

// Provider é um backend de geração de texto. Implementações devem
// respeitar o context recebido; o deadline vem do Generator.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Probe(ctx context.Context) error
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
