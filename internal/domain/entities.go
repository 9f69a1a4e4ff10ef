package domain

import (
	"net/http"
	"time"
)

// RateLimitRecord representa o contador de uma identidade dentro da janela ativa
type RateLimitRecord struct {
	Identity    string    `json:"identity"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"windowStart"`
}

// RateLimitResult representa o resultado de uma verificação de rate limit
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// RateLimitStatus representa o status atual de uma identidade (uso administrativo)
type RateLimitStatus struct {
	Identity    string    `json:"identity"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	WindowStart time.Time `json:"windowStart"`
	ResetTime   time.Time `json:"resetTime"`
	Exhausted   bool      `json:"exhausted"`
}

// RateLimitConfig representa a configuração da janela fixa
type RateLimitConfig struct {
	MaxRequests int           `json:"maxRequests"`
	Window      time.Duration `json:"window"`
}

// Valores padrão do rate limiter: 100 requisições a cada 15 minutos
const (
	DefaultMaxRequests = 100
	DefaultWindow      = 15 * time.Minute
)

// AuthPayload contém as claims de um token verificado
type AuthPayload struct {
	UserID  string                 `json:"userId"`
	Subject string                 `json:"subject"`
	Claims  map[string]interface{} `json:"claims"`
}

// RouteMapping mapeia caminhos externos para caminhos do upstream.
// Imutável após o carregamento da configuração.
type RouteMapping map[string]string

// ProxiedRequest descreve a requisição encaminhada ao upstream
type ProxiedRequest struct {
	Method  string
	Path    string // caminho traduzido, já com a query string
	Header  http.Header
	Body    interface{}
	HasBody bool
}

// ProxiedResponse descreve a resposta 2xx recebida do upstream
type ProxiedResponse struct {
	StatusCode  int
	ContentType string
	Body        interface{} // JSON decodificado ou texto puro
}

// GatekeeperStats são os contadores acumulados do gatekeeper desde o start
type GatekeeperStats struct {
	Admitted         int64 `json:"admitted"`
	RateLimited      int64 `json:"rate_limited"`
	Preflight        int64 `json:"preflight"`
	Unauthorized     int64 `json:"unauthorized"`
	Proxied          int64 `json:"proxied"`
	UpstreamFailures int64 `json:"upstream_failures"`
}
