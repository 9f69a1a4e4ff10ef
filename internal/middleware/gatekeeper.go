package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"edge-gatekeeper/internal/domain"
	"edge-gatekeeper/internal/logger"
	"edge-gatekeeper/internal/service"
)

const (
	corsAllowOrigin  = "*"
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"

	// unknownClientIP identifica clientes sem nenhum endereço observável
	unknownClientIP = "unknown"

	// DefaultMaxBodyBytes é o maior corpo aceito de um cliente (1 MiB)
	DefaultMaxBodyBytes int64 = 1 << 20

	bearerScheme = "Bearer"
)

// Gatekeeper intercepta as requisições sob o prefixo da API:
// rate limit, preflight, autenticação, tradução de rota e encaminhamento ao upstream.
type Gatekeeper struct {
	limiter  domain.RateLimiterService
	verifier domain.CredentialVerifier
	upstream domain.UpstreamClient
	routes   *service.RouteTable
	logger   domain.Logger

	maxBodyBytes int64

	// rejectionLog amostra os logs de 429 durante rajadas
	rejectionLog *rate.Sometimes

	admitted         atomic.Int64
	rateLimited      atomic.Int64
	preflight        atomic.Int64
	unauthorized     atomic.Int64
	proxied          atomic.Int64
	upstreamFailures atomic.Int64
}

// NewGatekeeper cria uma nova instância do gatekeeper
func NewGatekeeper(
	limiter domain.RateLimiterService,
	verifier domain.CredentialVerifier,
	upstream domain.UpstreamClient,
	routes *service.RouteTable,
	logger domain.Logger,
) *Gatekeeper {
	return &Gatekeeper{
		limiter:      limiter,
		verifier:     verifier,
		upstream:     upstream,
		routes:       routes,
		logger:       logger,
		maxBodyBytes: DefaultMaxBodyBytes,
		rejectionLog: &rate.Sometimes{First: 10, Interval: time.Second},
	}
}

// WithMaxBodyBytes altera o limite do corpo aceito. Valores não positivos são ignorados.
func (g *Gatekeeper) WithMaxBodyBytes(limit int64) *Gatekeeper {
	if limit > 0 {
		g.maxBodyBytes = limit
	}
	return g
}

// Handler retorna o middleware para o gin
func (g *Gatekeeper) Handler() gin.HandlerFunc {
	return g.Handle
}

// Stats retorna um snapshot dos contadores
func (g *Gatekeeper) Stats() domain.GatekeeperStats {
	return domain.GatekeeperStats{
		Admitted:         g.admitted.Load(),
		RateLimited:      g.rateLimited.Load(),
		Preflight:        g.preflight.Load(),
		Unauthorized:     g.unauthorized.Load(),
		Proxied:          g.proxied.Load(),
		UpstreamFailures: g.upstreamFailures.Load(),
	}
}

// Handle é o handler principal do middleware
func (g *Gatekeeper) Handle(c *gin.Context) {
	path := c.Request.URL.Path

	// Fora do prefixo da API a requisição segue intocada
	if !g.routes.Match(path) {
		c.Next()
		return
	}

	requestID := getRequestID(c)
	c.Header("X-Request-ID", requestID)
	setCORSHeaders(c)

	clientIP := ExtractClientIP(c)
	userAgent := c.GetHeader("User-Agent")
	identity := BuildIdentity(clientIP, userAgent)

	ctx := logger.ContextWithRequestInfo(c.Request.Context(), requestID, clientIP, identity, userAgent)
	c.Request = c.Request.WithContext(ctx)
	log := g.logger.WithContext(ctx)

	log.Debug("Gatekeeper intercepted request", map[string]interface{}{
		"method": c.Request.Method,
		"path":   path,
	})

	// Rate limit vale para todos os métodos, inclusive OPTIONS
	result, err := g.limiter.CheckLimit(ctx, identity)
	if err != nil {
		g.abortWithError(c, domain.NewInternalError(err))
		return
	}
	setRateLimitHeaders(c, result)

	if !result.Allowed {
		g.rateLimited.Add(1)
		g.rejectionLog.Do(func() {
			log.Warn("Rate limit exceeded", map[string]interface{}{
				"limit":      result.Limit,
				"count":      result.Count,
				"reset_time": result.ResetTime.Unix(),
			})
		})
		g.abortWithError(c, domain.NewRateLimitExceededError())
		return
	}
	g.admitted.Add(1)

	if c.Request.Method == http.MethodOptions {
		g.preflight.Add(1)
		c.AbortWithStatus(http.StatusOK)
		return
	}

	apiPath := g.routes.Resolve(path)
	upstreamPath := g.routes.Translate(path, c.Request.URL.RawQuery)

	header := http.Header{}
	header.Set("X-Request-ID", requestID)

	if g.routes.IsProtected(apiPath) {
		authorization := c.GetHeader("Authorization")
		token, ok := ExtractBearerToken(authorization)
		if !ok {
			g.unauthorized.Add(1)
			log.Info("Missing bearer token on protected route", map[string]interface{}{
				"path": apiPath,
			})
			g.abortWithError(c, domain.NewAuthenticationRequiredError())
			return
		}

		payload, err := g.verifier.Verify(ctx, token)
		if err != nil {
			g.unauthorized.Add(1)
			log.Warn("Token verification failed", map[string]interface{}{
				"path":  apiPath,
				"token": logger.MaskToken(token),
				"error": err.Error(),
			})
			var gwErr *domain.GatewayError
			if !errors.As(err, &gwErr) {
				err = domain.NewInvalidCredentialError(err)
			}
			g.abortWithError(c, err)
			return
		}

		header.Set("Authorization", authorization)
		header.Set("X-User-ID", payload.UserID)
	}

	proxied := &domain.ProxiedRequest{
		Method: c.Request.Method,
		Path:   upstreamPath,
		Header: header,
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodDelete {
		proxied.Body, proxied.HasBody, err = decodeLenientBody(c.Writer, c.Request, g.maxBodyBytes)
		if err != nil {
			log.Warn("Request body rejected", map[string]interface{}{
				"path":  apiPath,
				"limit": g.maxBodyBytes,
			})
			g.abortWithError(c, err)
			return
		}
	}

	resp, err := g.upstream.Do(ctx, proxied)
	if err != nil {
		g.upstreamFailures.Add(1)
		g.abortWithError(c, err)
		return
	}
	g.proxied.Add(1)

	log.Debug("Upstream response relayed", map[string]interface{}{
		"upstream_path": upstreamPath,
		"status":        resp.StatusCode,
	})

	writeResponse(c, resp)
}

// abortWithError escreve o corpo {"error": msg}. Erros sem tipo viram 500 genérico.
func (g *Gatekeeper) abortWithError(c *gin.Context, err error) {
	gwErr := domain.AsGatewayError(err)
	if gwErr.Kind == domain.KindInternalError {
		g.logger.WithContext(c.Request.Context()).Error("Request failed", err, nil)
	}
	c.AbortWithStatusJSON(gwErr.Status, gin.H{"error": gwErr.Message})
}

// writeResponse repassa status e corpo do upstream ao cliente
func writeResponse(c *gin.Context, resp *domain.ProxiedResponse) {
	if text, ok := resp.Body.(string); resp.Body == nil || (ok && text == "") ||
		resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		c.AbortWithStatus(resp.StatusCode)
		return
	}
	c.AbortWithStatusJSON(resp.StatusCode, resp.Body)
}

// decodeLenientBody lê o corpo como JSON. Corpo vazio ou inválido é tratado como ausente;
// apenas um corpo acima de limit resulta em erro (413).
func decodeLenientBody(w http.ResponseWriter, r *http.Request, limit int64) (interface{}, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}
	if r.ContentLength > limit {
		return nil, false, domain.NewPayloadTooLargeError(&http.MaxBytesError{Limit: limit})
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, domain.NewPayloadTooLargeError(err)
		}
		return nil, false, nil
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false, nil
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false, nil
	}
	return body, true, nil
}

// Recovery converte panics no corpo 500 padrão
func Recovery(log domain.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithContext(c.Request.Context()).Error("Panic recovered", nil, map[string]interface{}{
			"panic":  recovered,
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		setCORSHeaders(c)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": domain.MsgInternalError})
	})
}

// ExtractClientIP devolve o IP de origem resolvido pelo gin. X-Forwarded-For e X-Real-IP
// só valem quando o peer está em engine.SetTrustedProxies.
func ExtractClientIP(c *gin.Context) string {
	if clientIP := c.ClientIP(); clientIP != "" {
		return clientIP
	}
	return unknownClientIP
}

// ConfigureTrustedProxies aplica a lista de proxies confiáveis ao router.
// Lista vazia desliga os headers de encaminhamento.
func ConfigureTrustedProxies(router *gin.Engine, proxies []string) error {
	if len(proxies) == 0 {
		return router.SetTrustedProxies(nil)
	}
	return router.SetTrustedProxies(proxies)
}

// BuildIdentity compõe a identidade "<ip>-<user agent>"
func BuildIdentity(clientIP, userAgent string) string {
	return clientIP + "-" + userAgent
}

// ExtractBearerToken valida o esquema "Bearer". O token pode vir vazio;
// cabe ao verificador recusá-lo.
func ExtractBearerToken(authorization string) (string, bool) {
	if authorization == bearerScheme {
		return "", true
	}
	if !strings.HasPrefix(authorization, bearerScheme+" ") {
		return "", false
	}
	return authorization[len(bearerScheme)+1:], true
}

// setCORSHeaders aplica os headers CORS permissivos
func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", corsAllowOrigin)
	c.Header("Access-Control-Allow-Methods", corsAllowMethods)
	c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
}

// setRateLimitHeaders define headers informativos de rate limiting
func setRateLimitHeaders(c *gin.Context, result *domain.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

	if !result.Allowed {
		if retryAfter := int(time.Until(result.ResetTime).Seconds()); retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

// getRequestID reaproveita o X-Request-ID recebido ou gera um novo
func getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	return uuid.New().String()
}
