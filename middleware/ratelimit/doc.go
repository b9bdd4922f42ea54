// Package ratelimit fornece os adapters HTTP (net/http) do throttle e do
// limite de concorrência que ficam na frente de /api.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (janela, política, decisão) sem net/http
//   - application: casos de uso (passa/atrasa/bloqueia, acquire/timeout)
//   - infra: janelas em memória ou Redis, estatísticas, semáforo
//   - ratelimit (este pacote): middlewares + extração de chave + status/headers
//
// Fluxo por requisição:
//
//  1. Extrai a chave do cliente (header/XFF/IP)
//  2. Conta a requisição na janela e obtém a decisão
//  3. Bloqueado: 429 com Retry-After, antes de identidade ou validação
//  4. Atrasado: espera Decision.Delay (ou aborta se o cliente desistir)
//  5. Chama o próximo handler
package ratelimit
