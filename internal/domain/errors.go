package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifica as falhas que terminam uma requisição no gatekeeper
type ErrorKind string

const (
	KindRateLimitExceeded      ErrorKind = "rate_limit_exceeded"
	KindAuthenticationRequired ErrorKind = "authentication_required"
	KindInvalidCredential      ErrorKind = "invalid_credential"
	KindPayloadTooLarge        ErrorKind = "payload_too_large"
	KindUpstreamUnreachable    ErrorKind = "upstream_unreachable"
	KindUpstreamTimeout        ErrorKind = "upstream_timeout"
	KindUpstreamError          ErrorKind = "upstream_error"
	KindInternalError          ErrorKind = "internal_error"
)

// Mensagens expostas ao cliente
const (
	MsgRateLimitExceeded      = "Rate limit exceeded. Please try again later."
	MsgAuthenticationRequired = "Authentication required"
	MsgInvalidCredential      = "Invalid authentication token"
	MsgPayloadTooLarge        = "Request body too large"
	MsgUpstreamUnreachable    = "Failed to connect to backend service"
	MsgUpstreamTimeout        = "Backend service timed out"
	MsgUpstreamError          = "Backend error"
	MsgInternalError          = "Internal server error"
)

// GatewayError é um erro com status HTTP associado.
// Message é o texto devolvido ao cliente; Err guarda a causa real, que só vai para o log.
type GatewayError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewRateLimitExceededError cria o erro de quota excedida (429)
func NewRateLimitExceededError() *GatewayError {
	return &GatewayError{Kind: KindRateLimitExceeded, Status: http.StatusTooManyRequests, Message: MsgRateLimitExceeded}
}

// NewAuthenticationRequiredError cria o erro de credencial ausente ou malformada (401)
func NewAuthenticationRequiredError() *GatewayError {
	return &GatewayError{Kind: KindAuthenticationRequired, Status: http.StatusUnauthorized, Message: MsgAuthenticationRequired}
}

// NewInvalidCredentialError cria o erro de token inválido (401)
func NewInvalidCredentialError(cause error) *GatewayError {
	return &GatewayError{Kind: KindInvalidCredential, Status: http.StatusUnauthorized, Message: MsgInvalidCredential, Err: cause}
}

// NewPayloadTooLargeError cria o erro de corpo acima do limite configurado (413)
func NewPayloadTooLargeError(cause error) *GatewayError {
	return &GatewayError{Kind: KindPayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Message: MsgPayloadTooLarge, Err: cause}
}

// NewUpstreamUnreachableError cria o erro de falha de rede com o upstream (500)
func NewUpstreamUnreachableError(cause error) *GatewayError {
	return &GatewayError{Kind: KindUpstreamUnreachable, Status: http.StatusInternalServerError, Message: MsgUpstreamUnreachable, Err: cause}
}

// NewUpstreamTimeoutError cria o erro de prazo esgotado com o upstream (504)
func NewUpstreamTimeoutError(cause error) *GatewayError {
	return &GatewayError{Kind: KindUpstreamTimeout, Status: http.StatusGatewayTimeout, Message: MsgUpstreamTimeout, Err: cause}
}

// NewUpstreamError cria o erro que repassa o status não-2xx do upstream
func NewUpstreamError(status int, message string) *GatewayError {
	if message == "" {
		message = MsgUpstreamError
	}
	return &GatewayError{Kind: KindUpstreamError, Status: status, Message: message}
}

// NewInternalError cria o erro genérico (500)
func NewInternalError(cause error) *GatewayError {
	return &GatewayError{Kind: KindInternalError, Status: http.StatusInternalServerError, Message: MsgInternalError, Err: cause}
}

// AsGatewayError converte qualquer erro em *GatewayError; erros não tipados viram internal_error
func AsGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return NewInternalError(err)
}
