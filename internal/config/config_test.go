package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-gatekeeper/internal/domain"
)

func TestConfigLoader_LoadConfig(t *testing.T) {
	tests := []struct {
		name            string
		envVars         map[string]string
		expectError     bool
		expectedMax     int
		expectedWindow  time.Duration
		expectedTimeout time.Duration
		expectedStorage string
	}{
		{
			name:            "Default values",
			envVars:         map[string]string{},
			expectError:     false,
			expectedMax:     100,
			expectedWindow:  15 * time.Minute,
			expectedTimeout: 10 * time.Second,
			expectedStorage: "memory",
		},
		{
			name: "Custom values",
			envVars: map[string]string{
				"RATE_MAX_REQUESTS":   "5",
				"RATE_WINDOW_MS":      "30000",
				"UPSTREAM_TIMEOUT_MS": "2500",
				"STORAGE_TYPE":        "REDIS",
			},
			expectError:     false,
			expectedMax:     5,
			expectedWindow:  30 * time.Second,
			expectedTimeout: 2500 * time.Millisecond,
			expectedStorage: "redis",
		},
		{
			name: "Invalid max requests",
			envVars: map[string]string{
				"RATE_MAX_REQUESTS": "0",
			},
			expectError: true,
		},
		{
			name: "Non numeric window",
			envVars: map[string]string{
				"RATE_WINDOW_MS": "fifteen",
			},
			expectError: true,
		},
		{
			name: "Invalid upstream timeout",
			envVars: map[string]string{
				"UPSTREAM_TIMEOUT_MS": "-1",
			},
			expectError: true,
		},
		{
			name: "Relative backend url",
			envVars: map[string]string{
				"BACKEND_URL": "backend:8000",
			},
			expectError: true,
		},
		{
			name: "Unknown storage type",
			envVars: map[string]string{
				"STORAGE_TYPE": "memcached",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			loader := NewConfigLoader()
			config, err := loader.LoadConfig()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, config)

			assert.Equal(t, tt.expectedMax, config.RateLimit.MaxRequests)
			assert.Equal(t, tt.expectedWindow, config.RateLimit.Window)
			assert.Equal(t, tt.expectedTimeout, config.UpstreamTimeout)
			assert.Equal(t, tt.expectedStorage, config.StorageType)
			assert.Same(t, config, loader.GetConfig())
		})
	}
}

func TestConfigLoader_Defaults(t *testing.T) {
	config, err := NewConfigLoader().LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", config.ServerPort)
	assert.Equal(t, "http://localhost:8000", config.BackendURL)
	assert.Equal(t, "/api", config.APIPrefix)
	assert.Equal(t, []string{"/chat", "/orders", "/user/profile"}, config.ProtectedRoutes)
	assert.Equal(t, time.Minute, config.CleanupInterval)
	assert.True(t, config.UsesDefaultSecret())
	assert.Empty(t, config.JWTIssuer)
	assert.Empty(t, config.JWTAudience)
	assert.Empty(t, config.TrustedProxies)
	assert.False(t, config.AdminEnabled())
	assert.Equal(t, DefaultMaxBodyBytes, config.MaxBodyBytes)
	assert.Equal(t, DefaultMaxResponseBytes, config.MaxResponseBytes)
}

func TestConfigLoader_EdgeSettings(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")
	t.Setenv("ADMIN_TOKEN", "ops-token")
	t.Setenv("MAX_BODY_BYTES", "2048")
	t.Setenv("UPSTREAM_MAX_RESPONSE_BYTES", "4096")

	config, err := NewConfigLoader().LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, config.TrustedProxies)
	assert.True(t, config.AdminEnabled())
	assert.Equal(t, "ops-token", config.AdminToken)
	assert.Equal(t, int64(2048), config.MaxBodyBytes)
	assert.Equal(t, int64(4096), config.MaxResponseBytes)
}

func TestConfigLoader_CustomRouting(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend:9000/")
	t.Setenv("PROTECTED_ROUTES", " /admin , ,/billing ")
	t.Setenv("JWT_SECRET", "real-secret")

	config, err := NewConfigLoader().LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", config.BackendURL)
	assert.Equal(t, []string{"/admin", "/billing"}, config.ProtectedRoutes)
	assert.False(t, config.UsesDefaultSecret())
}

func TestLoadRouteMapping(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "routes.json")
	data := `{
		"routes": {
			"/user/profile": "/users/me",
			"/products": "/catalog/products"
		}
	}`
	require.NoError(t, os.WriteFile(file, []byte(data), 0644))

	mapping, err := LoadRouteMapping(file)
	require.NoError(t, err)

	assert.Equal(t, domain.RouteMapping{
		"/user/profile": "/users/me",
		"/products":     "/catalog/products",
	}, mapping)
}

func TestLoadRouteMapping_FileNotFound(t *testing.T) {
	mapping, err := LoadRouteMapping(filepath.Join(t.TempDir(), "missing.json"))

	require.NoError(t, err)
	assert.Empty(t, mapping)
}

func TestLoadRouteMapping_InvalidFiles(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name:     "Invalid JSON",
			content:  `{"routes": {"/a": invalid}}`,
			errorMsg: "failed to parse route mapping file",
		},
		{
			name:     "Relative target",
			content:  `{"routes": {"/a": "b"}}`,
			errorMsg: "paths must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "routes.json")
			require.NoError(t, os.WriteFile(file, []byte(tt.content), 0644))

			_, err := LoadRouteMapping(file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestConfigLoader_LoadsMappingFromEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"routes": {"/chat": "/v2/chat"}}`), 0644))
	t.Setenv("ROUTE_MAPPING_FILE", file)

	config, err := NewConfigLoader().LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/v2/chat", config.RouteMapping["/chat"])
}

func TestConfigLoader_ValidateConfig(t *testing.T) {
	loader := NewConfigLoader()

	valid := func() *Config {
		return &Config{
			BackendURL:       "http://localhost:8000",
			JWTSecret:        "secret",
			APIPrefix:        "/api",
			StorageType:      "memory",
			RateLimit:        domain.RateLimitConfig{MaxRequests: 100, Window: time.Minute},
			UpstreamTimeout:  time.Second,
			CleanupInterval:  time.Minute,
			MaxBodyBytes:     DefaultMaxBodyBytes,
			MaxResponseBytes: DefaultMaxResponseBytes,
			TrustedProxies:   []string{"10.0.0.0/8", "192.0.2.1"},
		}
	}

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "Valid config",
			mutate: func(c *Config) {},
		},
		{
			name:        "Invalid window",
			mutate:      func(c *Config) { c.RateLimit.Window = 0 },
			expectError: true,
			errorMsg:    "RATE_WINDOW_MS must be greater than 0",
		},
		{
			name:        "Invalid cleanup interval",
			mutate:      func(c *Config) { c.CleanupInterval = 0 },
			expectError: true,
			errorMsg:    "CLEANUP_INTERVAL_MS must be greater than 0",
		},
		{
			name:        "Empty secret",
			mutate:      func(c *Config) { c.JWTSecret = "" },
			expectError: true,
			errorMsg:    "JWT_SECRET cannot be empty",
		},
		{
			name:        "Prefix without slash",
			mutate:      func(c *Config) { c.APIPrefix = "api" },
			expectError: true,
			errorMsg:    "API_PREFIX must start with /",
		},
		{
			name:        "Invalid Redis DB",
			mutate:      func(c *Config) { c.RedisDB = 16 },
			expectError: true,
			errorMsg:    "REDIS_DB must be between 0 and 15",
		},
		{
			name:        "Zero body limit",
			mutate:      func(c *Config) { c.MaxBodyBytes = 0 },
			expectError: true,
			errorMsg:    "MAX_BODY_BYTES must be greater than 0",
		},
		{
			name:        "Negative response limit",
			mutate:      func(c *Config) { c.MaxResponseBytes = -1 },
			expectError: true,
			errorMsg:    "UPSTREAM_MAX_RESPONSE_BYTES must be greater than 0",
		},
		{
			name:        "Malformed trusted proxy",
			mutate:      func(c *Config) { c.TrustedProxies = []string{"proxy.internal"} },
			expectError: true,
			errorMsg:    `TRUSTED_PROXIES entry "proxy.internal" is not an IP or CIDR`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)

			err := loader.validateConfig(config)

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		expected     string
	}{
		{
			name:         "Environment variable exists",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			expected:     "custom",
		},
		{
			name:         "Environment variable does not exist",
			key:          "NON_EXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			expected:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			result := getEnvWithDefault(tt.key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}
