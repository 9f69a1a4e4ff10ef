package service

import (
	"context"
	"fmt"
	"time"

	"edge-gatekeeper/internal/domain"
)

// RateLimiterService implementa a lógica de negócio do rate limiting
// Separada do middleware e do storage
type RateLimiterService struct {
	storage domain.RateLimiterStorage
	config  domain.RateLimitConfig
	logger  domain.Logger
	now     func() time.Time
}

// NewRateLimiterService cria uma nova instância do serviço.
// Valores não positivos na configuração assumem os padrões (100 por 15 minutos).
func NewRateLimiterService(
	storage domain.RateLimiterStorage,
	config domain.RateLimitConfig,
	logger domain.Logger,
) *RateLimiterService {
	if config.MaxRequests <= 0 {
		config.MaxRequests = domain.DefaultMaxRequests
	}
	if config.Window <= 0 {
		config.Window = domain.DefaultWindow
	}

	return &RateLimiterService{
		storage: storage,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock substitui o relógio do serviço (usado em testes)
func (s *RateLimiterService) WithClock(now func() time.Time) *RateLimiterService {
	s.now = now
	return s
}

// Config retorna a configuração efetiva
func (s *RateLimiterService) Config() domain.RateLimitConfig {
	return s.config
}

// CheckLimit decide se a identidade pode fazer mais uma requisição na janela atual
func (s *RateLimiterService) CheckLimit(ctx context.Context, identity string) (*domain.RateLimitResult, error) {
	now := s.now()

	record, allowed, err := s.storage.Admit(ctx, identity, s.config.MaxRequests, s.config.Window, now)
	if err != nil {
		s.logger.Error("Failed to check rate limit", err, map[string]interface{}{
			"identity": identity,
		})
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	remaining := s.config.MaxRequests - record.Count
	if remaining < 0 || !allowed {
		remaining = 0
	}

	result := &domain.RateLimitResult{
		Allowed:   allowed,
		Limit:     s.config.MaxRequests,
		Count:     record.Count,
		Remaining: remaining,
		ResetTime: record.WindowStart.Add(s.config.Window),
	}

	s.logger.Debug("Rate limit checked", map[string]interface{}{
		"identity":  identity,
		"allowed":   allowed,
		"count":     record.Count,
		"limit":     s.config.MaxRequests,
		"remaining": remaining,
	})

	return result, nil
}

// GetStatus retorna o status atual de uma identidade.
// Registros com janela vencida são reportados como inexistentes.
func (s *RateLimiterService) GetStatus(ctx context.Context, identity string) (*domain.RateLimitStatus, error) {
	record, err := s.storage.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	if record == nil || s.now().Sub(record.WindowStart) > s.config.Window {
		return nil, nil
	}

	remaining := s.config.MaxRequests - record.Count
	if remaining < 0 {
		remaining = 0
	}

	return &domain.RateLimitStatus{
		Identity:    identity,
		Count:       record.Count,
		Limit:       s.config.MaxRequests,
		Remaining:   remaining,
		WindowStart: record.WindowStart,
		ResetTime:   record.WindowStart.Add(s.config.Window),
		Exhausted:   record.Count >= s.config.MaxRequests,
	}, nil
}

// Reset limpa os dados de rate limit de uma identidade
func (s *RateLimiterService) Reset(ctx context.Context, identity string) error {
	if err := s.storage.Reset(ctx, identity); err != nil {
		return fmt.Errorf("failed to reset identity: %w", err)
	}

	s.logger.Info("Rate limit reset", map[string]interface{}{
		"identity": identity,
	})
	return nil
}

// Health verifica o storage subjacente
func (s *RateLimiterService) Health(ctx context.Context) error {
	return s.storage.Health(ctx)
}
