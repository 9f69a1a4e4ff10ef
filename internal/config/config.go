package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"edge-gatekeeper/internal/domain"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret é o segredo de exemplo; qualquer deploy real precisa sobrescrevê-lo
const DefaultJWTSecret = "your-secret-key"

const (
	// DefaultMaxBodyBytes limita o corpo aceito dos clientes (1 MiB)
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultMaxResponseBytes limita o corpo lido do upstream (10 MiB)
	DefaultMaxResponseBytes int64 = 10 << 20
)

// Config representa todas as configurações da aplicação
type Config struct {
	// Server Configuration
	ServerPort     string
	GinMode        string
	TrustedProxies []string
	AdminToken     string
	MaxBodyBytes   int64

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Upstream Configuration
	BackendURL       string
	UpstreamTimeout  time.Duration
	MaxResponseBytes int64

	// Auth Configuration
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// Routing Configuration
	APIPrefix        string
	ProtectedRoutes  []string
	RouteMappingFile string
	RouteMapping     domain.RouteMapping

	// Rate Limiting Configuration
	RateLimit       domain.RateLimitConfig
	CleanupInterval time.Duration

	// Storage Configuration
	StorageType   string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

// AdminEnabled informa se as rotas /admin aceitam algum token
func (c *Config) AdminEnabled() bool {
	return c.AdminToken != ""
}

// UsesDefaultSecret informa se o segredo de exemplo continua em uso
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// RoutesFile representa a estrutura do arquivo routes.json
type RoutesFile struct {
	Routes map[string]string `json:"routes"`
}

// ConfigLoader carrega a configuração do .env e do ambiente
type ConfigLoader struct {
	config *Config
}

// NewConfigLoader cria uma nova instância do ConfigLoader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

// LoadConfig carrega as configurações do .env (se existir) e das variáveis de ambiente
func (c *ConfigLoader) LoadConfig() (*Config, error) {
	// Sem .env seguimos apenas com as variáveis do sistema
	_ = godotenv.Load()

	config, err := c.loadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	mapping, err := LoadRouteMapping(config.RouteMappingFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load route mapping: %w", err)
	}
	config.RouteMapping = mapping

	c.config = config
	return config, nil
}

// Reload recarrega todas as configurações
func (c *ConfigLoader) Reload() error {
	_, err := c.LoadConfig()
	return err
}

// GetConfig retorna a configuração atual
func (c *ConfigLoader) GetConfig() *Config {
	return c.config
}

// LoadRouteMapping lê o arquivo de mapeamento de rotas. Arquivo ausente resulta em mapa vazio.
func LoadRouteMapping(path string) (domain.RouteMapping, error) {
	mapping := make(domain.RouteMapping)
	if path == "" {
		return mapping, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return mapping, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read route mapping file: %w", err)
	}

	var routesFile RoutesFile
	if err := json.Unmarshal(data, &routesFile); err != nil {
		return nil, fmt.Errorf("failed to parse route mapping file: %w", err)
	}

	for from, to := range routesFile.Routes {
		if !strings.HasPrefix(from, "/") || !strings.HasPrefix(to, "/") {
			return nil, fmt.Errorf("invalid route mapping %q -> %q: paths must start with /", from, to)
		}
		mapping[from] = to
	}

	return mapping, nil
}

// loadFromEnv carrega configurações das variáveis de ambiente
func (c *ConfigLoader) loadFromEnv() (*Config, error) {
	config := &Config{
		ServerPort: getEnvWithDefault("SERVER_PORT", "8080"),
		GinMode:    getEnvWithDefault("GIN_MODE", "debug"),

		// Sem TRUSTED_PROXIES nenhum header de encaminhamento é considerado
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),

		BackendURL: strings.TrimRight(getEnvWithDefault("BACKEND_URL", "http://localhost:8000"), "/"),

		JWTSecret:   getEnvWithDefault("JWT_SECRET", DefaultJWTSecret),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		APIPrefix:        getEnvWithDefault("API_PREFIX", "/api"),
		ProtectedRoutes:  splitList(getEnvWithDefault("PROTECTED_ROUTES", "/chat,/orders,/user/profile")),
		RouteMappingFile: getEnvWithDefault("ROUTE_MAPPING_FILE", "internal/config/routes.json"),

		StorageType:   strings.ToLower(getEnvWithDefault("STORAGE_TYPE", "memory")),
		RedisHost:     getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvWithDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvWithDefault("REDIS_PASSWORD", ""),
	}

	redisDB, err := strconv.Atoi(getEnvWithDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB value: %w", err)
	}
	config.RedisDB = redisDB

	maxRequests, err := strconv.Atoi(getEnvWithDefault("RATE_MAX_REQUESTS", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_MAX_REQUESTS value: %w", err)
	}
	config.RateLimit.MaxRequests = maxRequests

	window, err := getEnvMillis("RATE_WINDOW_MS", 900000)
	if err != nil {
		return nil, err
	}
	config.RateLimit.Window = window

	upstreamTimeout, err := getEnvMillis("UPSTREAM_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	config.UpstreamTimeout = upstreamTimeout

	cleanupInterval, err := getEnvMillis("CLEANUP_INTERVAL_MS", 60000)
	if err != nil {
		return nil, err
	}
	config.CleanupInterval = cleanupInterval

	maxBodyBytes, err := getEnvInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes)
	if err != nil {
		return nil, err
	}
	config.MaxBodyBytes = maxBodyBytes

	maxResponseBytes, err := getEnvInt64("UPSTREAM_MAX_RESPONSE_BYTES", DefaultMaxResponseBytes)
	if err != nil {
		return nil, err
	}
	config.MaxResponseBytes = maxResponseBytes

	if err := c.validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateConfig valida se as configurações são válidas
func (c *ConfigLoader) validateConfig(config *Config) error {
	if config.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("RATE_MAX_REQUESTS must be greater than 0")
	}

	if config.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_WINDOW_MS must be greater than 0")
	}

	if config.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_MS must be greater than 0")
	}

	if config.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL_MS must be greater than 0")
	}

	backend, err := url.Parse(config.BackendURL)
	if err != nil || backend.Scheme == "" || backend.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", config.BackendURL)
	}

	if config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}

	if !strings.HasPrefix(config.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with /")
	}

	if config.StorageType != "memory" && config.StorageType != "redis" {
		return fmt.Errorf("STORAGE_TYPE must be memory or redis, got %q", config.StorageType)
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15")
	}

	if config.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be greater than 0")
	}

	if config.MaxResponseBytes <= 0 {
		return fmt.Errorf("UPSTREAM_MAX_RESPONSE_BYTES must be greater than 0")
	}

	for _, proxy := range config.TrustedProxies {
		if !isIPOrCIDR(proxy) {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}

	return nil
}

// getEnvWithDefault retorna o valor da variável de ambiente ou um valor padrão
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvMillis lê uma duração em milissegundos
func getEnvMillis(key string, defaultValue int) (time.Duration, error) {
	ms, err := strconv.Atoi(getEnvWithDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// getEnvInt64 lê um inteiro de 64 bits
func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value, err := strconv.ParseInt(getEnvWithDefault(key, strconv.FormatInt(defaultValue, 10)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return value, nil
}

func isIPOrCIDR(value string) bool {
	if _, _, err := net.ParseCIDR(value); err == nil {
		return true
	}
	return net.ParseIP(value) != nil
}

// splitList separa uma lista por vírgulas descartando itens vazios
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
