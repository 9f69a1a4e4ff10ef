package storage

import (
	"context"
	"sync"
	"time"

	"edge-gatekeeper/internal/domain"
)

// DefaultCleanupInterval é o intervalo padrão do janitor
const DefaultCleanupInterval = time.Minute

// MemoryStorage implementa domain.RateLimiterStorage em memória.
// A garantia é por processo: cada instância tem sua própria quota.
type MemoryStorage struct {
	data   map[string]*domain.RateLimitRecord
	mutex  sync.Mutex
	logger domain.Logger

	// maior janela vista em Admit; usada pelo janitor para decidir o que expirou
	window time.Duration

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStorage cria uma nova instância do MemoryStorage e inicia o janitor
func NewMemoryStorage(logger domain.Logger, cleanupInterval time.Duration) *MemoryStorage {
	storage := &MemoryStorage{
		data:   make(map[string]*domain.RateLimitRecord),
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go storage.cleanup(cleanupInterval)
	}

	if logger != nil {
		logger.Info("Memory storage initialized", map[string]interface{}{
			"cleanup_interval": cleanupInterval.String(),
		})
	}

	return storage
}

// Admit aplica a janela fixa sob o mutex:
// sem registro ou janela vencida -> reinicia com count=1 e admite;
// count >= limit -> rejeita sem alterar; caso contrário incrementa e admite.
func (m *MemoryStorage) Admit(ctx context.Context, identity string, limit int, window time.Duration, now time.Time) (*domain.RateLimitRecord, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if window > m.window {
		m.window = window
	}

	record, exists := m.data[identity]
	if !exists || now.Sub(record.WindowStart) > window {
		record = &domain.RateLimitRecord{
			Identity:    identity,
			Count:       1,
			WindowStart: now,
		}
		m.data[identity] = record
		m.logStorageOperation("ADMIT_NEW_WINDOW", identity, record.Count)
		result := *record
		return &result, true, nil
	}

	if record.Count >= limit {
		m.logStorageOperation("REJECT", identity, record.Count)
		result := *record
		return &result, false, nil
	}

	record.Count++
	m.logStorageOperation("ADMIT", identity, record.Count)
	result := *record
	return &result, true, nil
}

// Get recupera o registro de uma identidade
func (m *MemoryStorage) Get(ctx context.Context, identity string) (*domain.RateLimitRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, exists := m.data[identity]
	if !exists {
		return nil, nil
	}

	// Cria cópia para evitar modificações concorrentes
	result := *record
	return &result, nil
}

// Reset remove o registro de uma identidade
func (m *MemoryStorage) Reset(ctx context.Context, identity string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, identity)
	m.logStorageOperation("RESET", identity, 0)
	return nil
}

// Health verifica se o storage está saudável
func (m *MemoryStorage) Health(ctx context.Context) error {
	m.mutex.Lock()
	entries := len(m.data)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Debug("Memory storage health check", map[string]interface{}{
			"entries": entries,
		})
	}
	return nil
}

// Close para o janitor e descarta os registros
func (m *MemoryStorage) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mutex.Lock()
	m.data = make(map[string]*domain.RateLimitRecord)
	m.mutex.Unlock()

	if m.logger != nil {
		m.logger.Info("Memory storage closed", nil)
	}
	return nil
}

// Len retorna o número de identidades rastreadas
func (m *MemoryStorage) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.data)
}

// EvictExpired remove registros cuja janela já terminou e retorna quantos saíram
func (m *MemoryStorage) EvictExpired(now time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.window <= 0 {
		return 0
	}

	removed := 0
	for identity, record := range m.data {
		if now.Sub(record.WindowStart) > m.window {
			delete(m.data, identity)
			removed++
		}
	}
	return removed
}

// cleanup remove entradas expiradas periodicamente
func (m *MemoryStorage) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			removed := m.EvictExpired(m.now())
			if removed > 0 && m.logger != nil {
				m.logger.Debug("Memory storage cleanup completed", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}

// GetStats retorna estatísticas do storage em memória
func (m *MemoryStorage) GetStats() map[string]interface{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return map[string]interface{}{
		"entries": len(m.data),
		"type":    string(MemoryStorageType),
	}
}

// logStorageOperation registra operações de storage
func (m *MemoryStorage) logStorageOperation(operation, identity string, count int) {
	if m.logger == nil {
		return
	}
	m.logger.Debug("Storage operation completed", map[string]interface{}{
		"operation": operation,
		"identity":  identity,
		"count":     count,
	})
}
