package storage

import (
	"fmt"
	"strings"
	"time"

	"edge-gatekeeper/internal/domain"
)

// StorageType define os tipos de storage disponíveis
type StorageType string

const (
	RedisStorageType  StorageType = "redis"
	MemoryStorageType StorageType = "memory"
)

// StorageConfig contém configurações para criação de storage
type StorageConfig struct {
	Type            StorageType
	CleanupInterval time.Duration
	RedisConfig     *RedisConfig
}

// RedisConfig contém configurações específicas do Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	Database int
}

// StorageFactory cria instâncias de storage seguindo Strategy Pattern
type StorageFactory struct{}

// NewStorageFactory cria uma nova instância da factory
func NewStorageFactory() *StorageFactory {
	return &StorageFactory{}
}

// CreateStorage cria uma instância de storage baseada na configuração
func (f *StorageFactory) CreateStorage(config *StorageConfig, logger domain.Logger) (domain.RateLimiterStorage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch StorageType(strings.ToLower(string(config.Type))) {
	case RedisStorageType:
		storage, err := NewRedisStorage(
			config.RedisConfig.Host,
			config.RedisConfig.Port,
			config.RedisConfig.Password,
			config.RedisConfig.Database,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis storage: %w", err)
		}
		return storage, nil
	default:
		interval := config.CleanupInterval
		if interval <= 0 {
			interval = DefaultCleanupInterval
		}
		return NewMemoryStorage(logger, interval), nil
	}
}

// GetSupportedTypes retorna os tipos de storage suportados
func (f *StorageFactory) GetSupportedTypes() []StorageType {
	return []StorageType{RedisStorageType, MemoryStorageType}
}

// ValidateConfig valida uma configuração de storage
func (f *StorageFactory) ValidateConfig(config *StorageConfig) error {
	if config == nil {
		return fmt.Errorf("storage config cannot be nil")
	}

	switch StorageType(strings.ToLower(string(config.Type))) {
	case RedisStorageType:
		return f.validateRedisConfig(config.RedisConfig)
	case MemoryStorageType:
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// validateRedisConfig valida configuração do Redis
func (f *StorageFactory) validateRedisConfig(config *RedisConfig) error {
	if config == nil {
		return fmt.Errorf("redis config cannot be nil")
	}
	if config.Host == "" {
		return fmt.Errorf("redis host cannot be empty")
	}
	if config.Port == "" {
		return fmt.Errorf("redis port cannot be empty")
	}
	if config.Database < 0 || config.Database > 15 {
		return fmt.Errorf("redis database must be between 0 and 15, got: %d", config.Database)
	}
	return nil
}

// BuildStorageConfig constrói a configuração de storage a partir dos valores carregados
func BuildStorageConfig(storageType string, cleanupInterval time.Duration, redisHost, redisPort, redisPassword string, redisDB int) *StorageConfig {
	config := &StorageConfig{
		Type:            StorageType(strings.ToLower(storageType)),
		CleanupInterval: cleanupInterval,
	}

	if config.Type == RedisStorageType {
		config.RedisConfig = &RedisConfig{
			Host:     redisHost,
			Port:     redisPort,
			Password: redisPassword,
			Database: redisDB,
		}
	}

	return config
}
