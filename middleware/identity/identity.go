// Package identity é a fronteira com o provedor de autenticação.
//
// O gateway não verifica tokens: um proxy autenticador na frente dele anexa
// o e-mail verificado num header, e este pacote só transporta esse valor até
// os handlers. Ausência de identidade é decidida pelo handler.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Identity é o e-mail verificado do usuário dono da requisição.
type Identity string

func (id Identity) Email() string { return string(id) }

// Resolver extrai a identidade verificada de uma requisição.
type Resolver interface {
	Resolve(r *http.Request) (Identity, bool)
}

type ResolverFunc func(r *http.Request) (Identity, bool)

func (f ResolverFunc) Resolve(r *http.Request) (Identity, bool) { return f(r) }

// DefaultHeader é o header usado por oauth2-proxy e afins.
const DefaultHeader = "X-Auth-Request-Email"

// HeaderResolver confia no header preenchido pelo proxy autenticador.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) Resolve(r *http.Request) (Identity, bool) {
	name := h.Header
	if name == "" {
		name = DefaultHeader
	}
	return Normalize(r.Header.Get(name))
}

// Normalize limpa um e-mail vindo de fora. Valores sem "@" ou com espaços
// internos não são identidade.
func Normalize(raw string) (Identity, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	at := strings.IndexByte(v, '@')
	if at <= 0 || at == len(v)-1 || strings.ContainsAny(v, " \t\r\n") {
		return "", false
	}
	return Identity(v), true
}

type ctxKey struct{}

// WithIdentity devolve um ctx carregando id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retorna a identidade anexada pelo Middleware, se houver.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id != ""
}

// Middleware anexa a identidade resolvida ao contexto. Nunca rejeita.
func Middleware(resolver Resolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver != nil {
				if id, ok := resolver.Resolve(r); ok {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
