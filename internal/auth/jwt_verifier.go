// Package auth valida os bearer tokens das rotas protegidas.
package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"edge-gatekeeper/internal/domain"
)

// VerifierConfig configura a verificação dos tokens.
// Issuer e Audience só são exigidos quando preenchidos.
type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// JWTVerifier implementa domain.CredentialVerifier com tokens HMAC
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier cria o verificador
func NewJWTVerifier(cfg VerifierConfig) (*JWTVerifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTVerifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify valida assinatura e claims; qualquer falha vira invalid_credential
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*domain.AuthPayload, error) {
	claims := jwt.MapClaims{}

	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, domain.NewInvalidCredentialError(errors.Wrap(err, "parse token"))
	}
	if !parsed.Valid {
		return nil, domain.NewInvalidCredentialError(errors.New("token is invalid"))
	}

	subject, _ := claims.GetSubject()

	return &domain.AuthPayload{
		UserID:  userIDFromClaims(claims, subject),
		Subject: subject,
		Claims:  claims,
	}, nil
}

// userIDFromClaims lê "user_id" (texto ou número) e cai para "sub"
func userIDFromClaims(claims jwt.MapClaims, subject string) string {
	switch v := claims["user_id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return subject
}
