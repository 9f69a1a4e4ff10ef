package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"edge-gatekeeper/internal/domain"
)

const (
	// DefaultTimeout é o prazo padrão de uma chamada ao upstream
	DefaultTimeout = 10 * time.Second
	// DefaultMaxResponseBytes é o maior corpo de resposta lido do upstream
	DefaultMaxResponseBytes int64 = 10 << 20
)

// ErrResponseTooLarge indica resposta do upstream acima do limite
var ErrResponseTooLarge = errors.New("upstream response exceeds size limit")

// HTTPClient implementa domain.UpstreamClient sobre net/http
type HTTPClient struct {
	baseURL          string
	timeout          time.Duration
	maxResponseBytes int64
	client           *http.Client
	logger           domain.Logger
}

// NewHTTPClient cria o cliente do upstream. Timeout não positivo assume o padrão.
func NewHTTPClient(baseURL string, timeout time.Duration, logger domain.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPClient{
		baseURL:          strings.TrimRight(baseURL, "/"),
		timeout:          timeout,
		maxResponseBytes: DefaultMaxResponseBytes,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// WithMaxResponseBytes altera o limite de leitura das respostas. Valores não positivos são ignorados.
func (c *HTTPClient) WithMaxResponseBytes(limit int64) *HTTPClient {
	if limit > 0 {
		c.maxResponseBytes = limit
	}
	return c
}

// BaseURL retorna a URL base do upstream
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Do encaminha a requisição e traduz falhas em *domain.GatewayError
func (c *HTTPClient) Do(ctx context.Context, req *domain.ProxiedRequest) (*domain.ProxiedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + req.Path

	var body io.Reader
	if req.HasBody {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, domain.NewInternalError(fmt.Errorf("failed to encode upstream body: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to build upstream request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	c.logger.Info("Calling upstream", map[string]interface{}{
		"method": req.Method,
		"url":    url,
	})

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, req, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, c.transportError(ctx, req, url, err)
	}
	if int64(len(raw)) > c.maxResponseBytes {
		c.logger.Error("Upstream response exceeds size limit", ErrResponseTooLarge, map[string]interface{}{
			"method": req.Method,
			"url":    url,
			"status": resp.StatusCode,
			"limit":  c.maxResponseBytes,
		})
		return nil, domain.NewUpstreamUnreachableError(ErrResponseTooLarge)
	}

	contentType := resp.Header.Get("Content-Type")
	data, err := decodeBody(contentType, raw)
	if err != nil {
		c.logger.Error("Upstream returned an unreadable body", err, map[string]interface{}{
			"method": req.Method,
			"url":    url,
			"status": resp.StatusCode,
		})
		return nil, domain.NewUpstreamUnreachableError(err)
	}

	c.logger.Debug("Upstream responded", map[string]interface{}{
		"method":     req.Method,
		"url":        url,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Seconds() * 1000,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Upstream returned an error status", map[string]interface{}{
			"method": req.Method,
			"url":    url,
			"status": resp.StatusCode,
			"body":   string(raw),
		})
		return nil, domain.NewUpstreamError(resp.StatusCode, errorMessage(data))
	}

	return &domain.ProxiedResponse{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        data,
	}, nil
}

// transportError distingue prazo esgotado de upstream inalcançável.
// A causa real só vai para o log.
func (c *HTTPClient) transportError(ctx context.Context, req *domain.ProxiedRequest, url string, err error) error {
	fields := map[string]interface{}{
		"method":  req.Method,
		"url":     url,
		"timeout": c.timeout.String(),
	}

	if isTimeout(ctx, err) {
		c.logger.Error("Upstream call timed out", err, fields)
		return domain.NewUpstreamTimeoutError(err)
	}

	c.logger.Error("Backend connection error", err, fields)
	return domain.NewUpstreamUnreachableError(err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// decodeBody decodifica JSON quando o content type indica JSON; senão devolve o texto
func decodeBody(contentType string, raw []byte) (interface{}, error) {
	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return string(raw), nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON from upstream: %w", err)
	}
	return data, nil
}

// errorMessage extrai "detail" ou "message" do corpo de erro do upstream
func errorMessage(data interface{}) string {
	obj, ok := data.(map[string]interface{})
	if !ok {
		return domain.MsgUpstreamError
	}

	for _, field := range []string{"detail", "message"} {
		switch v := obj[field].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		default:
			encoded, err := json.Marshal(v)
			if err == nil {
				return string(encoded)
			}
		}
	}

	return domain.MsgUpstreamError
}
