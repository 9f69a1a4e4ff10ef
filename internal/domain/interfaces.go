package domain

import (
	"context"
	"time"
)

// RateLimiterStorage define a interface para armazenamento dos contadores
// Implementa o Strategy Pattern (memória ou Redis)
type RateLimiterStorage interface {
	// Admit executa verificação e incremento como uma única seção crítica.
	// Retorna o registro após a decisão e se a requisição foi admitida.
	Admit(ctx context.Context, identity string, limit int, window time.Duration, now time.Time) (*RateLimitRecord, bool, error)

	// Get recupera o registro de uma identidade (nil se não existir)
	Get(ctx context.Context, identity string) (*RateLimitRecord, error)

	// Reset remove o registro de uma identidade
	Reset(ctx context.Context, identity string) error

	// Health verifica se o storage está saudável
	Health(ctx context.Context) error

	// Close libera os recursos do storage
	Close() error
}

// RateLimiterService define a interface para o serviço de rate limiting
type RateLimiterService interface {
	// CheckLimit decide se a requisição de uma identidade deve ser admitida
	CheckLimit(ctx context.Context, identity string) (*RateLimitResult, error)

	// GetStatus retorna o status atual de uma identidade (nil se não existir)
	GetStatus(ctx context.Context, identity string) (*RateLimitStatus, error)

	// Reset limpa os dados de rate limit de uma identidade
	Reset(ctx context.Context, identity string) error

	// Health verifica o storage subjacente
	Health(ctx context.Context) error
}

// CredentialVerifier valida um bearer token e extrai suas claims
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (*AuthPayload, error)
}

// UpstreamClient executa a chamada ao serviço de backend
type UpstreamClient interface {
	Do(ctx context.Context, req *ProxiedRequest) (*ProxiedResponse, error)
}

// Logger define a interface para logging estruturado
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
	WithContext(ctx context.Context) Logger
}
