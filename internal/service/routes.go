package service

import (
	"strings"

	"edge-gatekeeper/internal/domain"
)

// DefaultAPIPrefix é o prefixo interceptado pelo gatekeeper
const DefaultAPIPrefix = "/api"

// DefaultProtectedRoutes são os prefixos que exigem bearer token
var DefaultProtectedRoutes = []string{"/chat", "/orders", "/user/profile"}

// RouteTable traduz caminhos externos em caminhos do upstream.
// É imutável depois de criada.
type RouteTable struct {
	prefix    string
	mapping   domain.RouteMapping
	protected []string
}

// NewRouteTable cria a tabela de rotas. Prefixo vazio assume "/api".
func NewRouteTable(prefix string, mapping domain.RouteMapping, protected []string) *RouteTable {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	copied := make(domain.RouteMapping, len(mapping))
	for from, to := range mapping {
		copied[from] = to
	}

	return &RouteTable{
		prefix:    prefix,
		mapping:   copied,
		protected: append([]string(nil), protected...),
	}
}

// Prefix retorna o prefixo da API
func (t *RouteTable) Prefix() string {
	return t.prefix
}

// Match informa se o caminho está sob o prefixo da API ("/api" ou "/api/...")
func (t *RouteTable) Match(path string) bool {
	if !strings.HasPrefix(path, t.prefix) {
		return false
	}
	rest := path[len(t.prefix):]
	return rest == "" || rest[0] == '/'
}

// Resolve remove o prefixo e aplica o mapeamento exato.
// Sem mapeamento o caminho segue inalterado.
func (t *RouteTable) Resolve(path string) string {
	apiPath := strings.TrimPrefix(path, t.prefix)
	if mapped, ok := t.mapping[apiPath]; ok {
		return mapped
	}
	return apiPath
}

// Translate resolve o caminho e acrescenta a query string original
func (t *RouteTable) Translate(path, rawQuery string) string {
	upstreamPath := t.Resolve(path)
	if upstreamPath == "" {
		upstreamPath = "/"
	}
	if rawQuery != "" {
		upstreamPath += "?" + rawQuery
	}
	return upstreamPath
}

// IsProtected informa se o caminho (já sem prefixo) exige autenticação
func (t *RouteTable) IsProtected(apiPath string) bool {
	for _, route := range t.protected {
		if strings.HasPrefix(apiPath, route) {
			return true
		}
	}
	return false
}
